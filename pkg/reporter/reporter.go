// Package reporter is the entry point for instrumented programs. A Reporter
// collects named data series in a background aggregation loop and serves
// them to remote inspectors over a request/reply endpoint.
//
//	r := reporter.New("simulator", "convergence")
//	if err := r.Start("tcp://127.0.0.1:5556"); err != nil {
//		return err
//	}
//	defer r.Stop()
//	r.Report2DPlot("residual", float64(step), residual)
package reporter

import (
	"context"
	"net/http"
	"sync"

	"codeberg.org/mutker/anemone/internal/aggregator"
	"codeberg.org/mutker/anemone/internal/endpoint"
	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/internal/queue"
	"codeberg.org/mutker/anemone/internal/report"
	"codeberg.org/mutker/anemone/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ErrAlreadyStarted = errors.ErrorCode("reporter_already_started")
	ErrStartFailed    = errors.ErrStartReporter
	ErrStopFailed     = errors.ErrStopReporter
)

type Reporter struct {
	program  string
	analysis string
	opts     options
	queue    *queue.Queue[aggregator.Message]
	metrics  *stats.Metrics

	mu       sync.Mutex
	started  bool
	endpoint endpoint.Endpoint
	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error
}

// New creates a Reporter. Points reported before Start are buffered.
func New(programName, analysisName string, opts ...Option) *Reporter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// capacity is always positive after option handling
	q, _ := queue.New[aggregator.Message](o.queueCapacity)

	metrics := stats.New()
	if o.registerer != nil {
		gatherer, ok := o.registerer.(prometheus.Gatherer)
		if !ok {
			gatherer = prometheus.DefaultGatherer
		}
		labels := prometheus.Labels{"program": programName, "analysis": analysisName}
		metrics = stats.NewWith(prometheus.WrapRegistererWith(labels, o.registerer), gatherer)
	}

	return &Reporter{
		program:  programName,
		analysis: analysisName,
		opts:     o,
		queue:    q,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

// Start binds bindAddress and runs the aggregation loop in the background.
// Bind failures are returned; everything after that is asynchronous.
func (r *Reporter) Start(bindAddress string) error {
	return r.StartContext(context.Background(), bindAddress)
}

// StartContext is Start with a parent context: cancelling ctx stops the loop.
func (r *Reporter) StartContext(ctx context.Context, bindAddress string) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errFactory.WithData(ErrAlreadyStarted, r.endpoint.Addr())
	}

	runCtx, cancel := context.WithCancel(ctx)
	ep, err := endpoint.Listen(runCtx, bindAddress)
	if err != nil {
		cancel()
		return errFactory.Wrap(ErrStartFailed, err)
	}

	agg := aggregator.New(aggregator.Config{
		Program:       r.program,
		Analysis:      r.analysis,
		StatsInterval: r.opts.statsInterval,
	}, r.queue, ep, r.metrics)

	r.started = true
	r.endpoint = ep
	r.cancel = cancel

	go r.run(runCtx, agg, ep)

	logger.Info().
		Str("program", r.program).
		Str("analysis", r.analysis).
		Str("address", ep.Addr()).
		Msg("Reporter started")

	return nil
}

func (r *Reporter) run(ctx context.Context, agg *aggregator.Aggregator, ep endpoint.Endpoint) {
	defer close(r.done)

	err := agg.Run(ctx)
	if cerr := ep.Close(); cerr != nil {
		logger.Warn().Err(cerr).Str("address", r.address(ep)).Msg("Failed to close query endpoint")
	}
	r.queue.Close()

	if err != nil {
		logger.Error().Err(err).Msg("Aggregation loop ended with error")
	}

	r.mu.Lock()
	r.runErr = err
	r.mu.Unlock()
}

func (r *Reporter) address(ep endpoint.Endpoint) string {
	if ep == nil {
		return ""
	}
	return ep.Addr()
}

// Report2DPlot records one point of the named TwoDPlot report. It never
// blocks on the network and never fails; see Dropped.
func (r *Reporter) Report2DPlot(name string, x, y float64) {
	r.queue.Push(aggregator.Message{
		Name:  name,
		Kind:  report.TwoDPlot,
		Point: report.Point{X: x, Y: y},
	})
}

// Dropped returns the number of points lost because the queue was full or
// the reporter was stopped.
func (r *Reporter) Dropped() uint64 {
	return r.queue.Dropped()
}

// Addr returns the bound endpoint address, resolved when the port was 0
func (r *Reporter) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.address(r.endpoint)
}

// Done is closed once the aggregation loop has exited
func (r *Reporter) Done() <-chan struct{} {
	return r.done
}

// MetricsHandler serves the reporter's Prometheus metrics
func (r *Reporter) MetricsHandler() http.Handler {
	return r.metrics.Handler()
}

// Stop ends the aggregation loop and releases the endpoint. The session is
// discarded. Stop on a reporter that was never started is a no-op.
func (r *Reporter) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runErr != nil {
		return errors.New().Wrap(ErrStopFailed, r.runErr)
	}

	logger.Info().Str("program", r.program).Msg("Reporter stopped")
	return nil
}
