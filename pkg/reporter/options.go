package reporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultQueueCapacity = 4096
	DefaultStatsInterval = 10 * time.Second
)

type options struct {
	queueCapacity int
	statsInterval time.Duration
	registerer    prometheus.Registerer
}

// Option configures a Reporter
type Option func(*options)

// WithQueueCapacity bounds the number of points buffered between producers
// and the aggregation loop. Points reported while the buffer is full are
// dropped. Values below 1 keep the default.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueCapacity = n
		}
	}
}

// WithStatsInterval sets how often session statistics are logged at debug
// level. Zero disables them.
func WithStatsInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.statsInterval = d
		}
	}
}

// WithRegisterer registers the reporter's metrics on reg, labelled with the
// program and analysis names. MetricsHandler then serves reg when it is also
// a prometheus.Gatherer and the default gatherer otherwise. Two reporters
// with the same names must not share reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func defaultOptions() options {
	return options{
		queueCapacity: DefaultQueueCapacity,
		statsInterval: DefaultStatsInterval,
	}
}
