package observer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/metrics"
)

type publisher interface {
	PublishSync(ctx context.Context, job domain.Job) error
}

type store interface {
	ClaimDueJobs(ctx context.Context, limit int) ([]domain.Job, error)
	MarkPublished(ctx context.Context, id string) error
	RevertToPending(ctx context.Context, id string) error
	ResetStuckPublishing(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Runner relays due jobs from the job table to the job topic.
// Several runners may share one table.
type Runner struct {
	limit        int
	interval     time.Duration
	reclaimAfter time.Duration
	store        store
	publisher    publisher
	metrics      metrics.RelayMetrics
	logger       *slog.Logger
}

type Option func(*Runner)

// WithReclaimAfter resets jobs stuck in publishing for longer than d on every pass.
func WithReclaimAfter(d time.Duration) Option {
	return func(r *Runner) { r.reclaimAfter = d }
}

func WithMetrics(m metrics.RelayMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func New(limit int, interval time.Duration, store store, publisher publisher, opts ...Option) *Runner {
	r := &Runner{
		limit:     limit,
		interval:  interval,
		store:     store,
		publisher: publisher,
		metrics:   metrics.Nop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
			if err := r.process(ctx); err != nil {
				r.logger.Error("relay process error", "error", err)
			}
		}
	}
}

func (r *Runner) process(ctx context.Context) error {
	if r.reclaimAfter > 0 {
		n, err := r.store.ResetStuckPublishing(ctx, r.reclaimAfter)
		if err != nil {
			return fmt.Errorf("reclaiming stuck jobs: %w", err)
		}
		if n > 0 {
			r.metrics.JobsReclaimed(int(n))
			r.logger.Warn("reclaimed stuck jobs", "count", n)
		}
	}

	jobs, err := r.store.ClaimDueJobs(ctx, r.limit)
	if err != nil {
		return fmt.Errorf("fetching due jobs: %w", err)
	}
	r.metrics.JobsClaimed(len(jobs))
	if len(jobs) > 0 {
		r.logger.Debug("claimed due jobs", "count", len(jobs))
	}

	for _, job := range jobs {
		start := time.Now()
		if err := r.publisher.PublishSync(ctx, job); err != nil {
			r.metrics.JobPublishFailed()
			r.logger.Error("publish failed", "job_id", job.ID, "error", err)
			if err := r.store.RevertToPending(ctx, job.ID); err != nil {
				r.logger.Error("revert to pending failed", "job_id", job.ID, "error", err)
			}
			continue
		}
		r.metrics.PublishLatency(time.Since(start))
		r.metrics.JobPublished()
		if err := r.store.MarkPublished(ctx, job.ID); err != nil {
			return fmt.Errorf("mark published failed for %s: %w", job.ID, err)
		}
	}
	return nil
}
