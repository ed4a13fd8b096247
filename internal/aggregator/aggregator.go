// Package aggregator runs the loop that owns a reporting session: it merges
// ingest messages into the session and answers queries from it.
package aggregator

import (
	"context"
	"time"

	"codeberg.org/mutker/anemone/internal/endpoint"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/internal/queue"
	"codeberg.org/mutker/anemone/internal/report"
	"codeberg.org/mutker/anemone/internal/stats"
	"codeberg.org/mutker/anemone/pkg/protocol"
)

// Message is one data point on its way into the session
type Message struct {
	Name  string
	Kind  report.Kind
	Point report.Point
}

type Config struct {
	Program  string
	Analysis string
	// StatsInterval enables periodic session statistics when positive
	StatsInterval time.Duration
}

type Aggregator struct {
	cfg      Config
	queue    *queue.Queue[Message]
	endpoint endpoint.Endpoint
	session  *report.Session
	metrics  *stats.Metrics
}

func New(cfg Config, q *queue.Queue[Message], ep endpoint.Endpoint, metrics *stats.Metrics) *Aggregator {
	if metrics == nil {
		metrics = stats.New()
	}
	metrics.ObserveQueue(q)

	return &Aggregator{
		cfg:      cfg,
		queue:    q,
		endpoint: ep,
		session:  report.NewSession(),
		metrics:  metrics,
	}
}

// Run blocks until ctx is done. The session is only touched from this
// goroutine.
func (a *Aggregator) Run(ctx context.Context) error {
	var statsC <-chan time.Time
	if a.cfg.StatsInterval > 0 {
		ticker := time.NewTicker(a.cfg.StatsInterval)
		defer ticker.Stop()
		statsC = ticker.C
	}

	ingest := a.queue.C()
	requests := a.endpoint.Requests()

	logger.Debug().
		Str("program", a.cfg.Program).
		Str("analysis", a.cfg.Analysis).
		Str("address", a.endpoint.Addr()).
		Int("queue_capacity", a.queue.Cap()).
		Msg("Aggregation loop started")

	for {
		select {
		case <-ctx.Done():
			a.logSession("Aggregation loop stopped")
			return nil
		case msg, ok := <-ingest:
			if !ok {
				ingest = nil
				continue
			}
			a.queue.Ack()
			a.apply(msg)
		case ex, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			a.serve(ex)
		case <-statsC:
			a.logSession("Session statistics")
		}
	}
}

func (a *Aggregator) apply(msg Message) {
	created, err := a.session.Apply(msg.Name, msg.Kind, msg.Point)
	if err != nil {
		a.metrics.IngestRejected.Inc()
		logger.Debug().Err(err).Str("report", msg.Name).Msg("Ingest message rejected")
		return
	}

	a.metrics.PointsIngested.Inc()
	if created {
		a.metrics.ReportsCreated.Inc()
		a.metrics.SessionReports.Set(float64(a.session.Len()))
		logger.Debug().Str("report", msg.Name).Str("kind", msg.Kind.String()).Msg("Report created")
	}
	a.metrics.SessionPoints.Set(float64(a.session.Points()))
}

// drainBacklog applies what was queued before a query arrived, so a producer
// sees its own earlier reports. The bound keeps a busy producer from
// delaying the reply indefinitely.
func (a *Aggregator) drainBacklog() {
	for n := a.queue.Len(); n > 0; n-- {
		msg, ok := a.queue.TryPop()
		if !ok {
			return
		}
		a.apply(msg)
	}
}

func (a *Aggregator) serve(ex *endpoint.Exchange) {
	start := time.Now()
	a.drainBacklog()

	resp := a.answer(ex.Frame)
	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		logger.Error().Err(err).Str("kind", string(resp.Kind)).Msg("Failed to encode response")
		frame, _ = protocol.EncodeResponse(a.fail(protocol.ErrInternal))
	}

	ex.Reply(frame)
	a.metrics.QueryDuration.Observe(time.Since(start).Seconds())
}

func (a *Aggregator) answer(frame []byte) *protocol.Response {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		// Never reaches the session. The peer still gets a reply so a strict
		// REQ socket is not left waiting.
		a.metrics.DecodeFailures.Inc()
		logger.Warn().Err(err).Int("bytes", len(frame)).Msg("Discarding undecodable request")
		return protocol.ErrorResponse(protocol.ErrUnknownCommand)
	}

	return a.respond(req.Args)
}
