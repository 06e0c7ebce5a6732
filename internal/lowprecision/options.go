package lowprecision

import (
	"time"

	"github.com/cuongbtq/delayq/internal/metrics"
)

type options struct {
	now     func() time.Time
	metrics metrics.Sink
}

// Option configures a store.
type Option func(*options)

// WithClock replaces the clock used for createdAt and executedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics sets the metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(o *options) { o.metrics = sink }
}

func applyOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		metrics: metrics.NewNoopSink(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
