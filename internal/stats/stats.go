// Package stats exposes aggregation loop activity as Prometheus metrics.
package stats

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anemone"

type Metrics struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	PointsIngested prometheus.Counter
	ReportsCreated prometheus.Counter
	IngestRejected prometheus.Counter
	Queries        *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec
	DecodeFailures prometheus.Counter
	QueryDuration  prometheus.Histogram
	SessionReports prometheus.Gauge
	SessionPoints  prometheus.Gauge

	queueOnce sync.Once
}

// New registers every collector on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers every collector on reg. Handler serves g, which must
// gather what reg registers. Registering twice on the same reg panics.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registerer: reg,
		gatherer:   g,
		PointsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_ingested_total",
			Help:      "Data points merged into the session",
		}),
		ReportsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_created_total",
			Help:      "Reports created on their first data point",
		}),
		IngestRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rejected_total",
			Help:      "Ingest messages the session refused",
		}),
		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries answered, by command",
		}, []string{"command"}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Error responses sent, by message",
		}, []string{"message"}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Request frames that could not be decoded",
		}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent answering a query",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		SessionReports: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_reports",
			Help:      "Reports held in the session",
		}),
		SessionPoints: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_points",
			Help:      "Data points held in the session",
		}),
	}
}

// QueueSource is the view of the ingest queue the metrics read
type QueueSource interface {
	Len() int
	Cap() int
	Dropped() uint64
}

// ObserveQueue exports depth, capacity and drops of q. Only the first call
// registers collectors.
func (m *Metrics) ObserveQueue(q QueueSource) {
	m.queueOnce.Do(func() {
		factory := promauto.With(m.registerer)
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Messages waiting in the ingest queue",
		}, func() float64 { return float64(q.Len()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_capacity",
			Help:      "Capacity of the ingest queue",
		}, func() float64 { return float64(q.Cap()) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_dropped_total",
			Help:      "Data points dropped because the ingest queue was full",
		}, func() float64 { return float64(q.Dropped()) })
	})
}

// Handler serves the gatherer in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
