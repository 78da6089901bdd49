package reminder

import (
	"log/slog"
	"time"

	"github.com/ecociel/remind/metrics"
)

type options struct {
	metrics metrics.ReminderMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Scheduler, Handler or Sweeper.
type Option func(*options)

func WithMetrics(m metrics.ReminderMetrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{
		metrics: metrics.Nop{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
