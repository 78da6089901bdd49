package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/notify"
	"github.com/ecociel/remind/metrics"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

type sweepStore interface {
	notificationStore
	OverdueUnnotified(ctx context.Context, now time.Time, limit int) ([]domain.Task, error)
}

type SweeperConfig struct {
	// Schedule is a cron expression, e.g. "@every 1m".
	Schedule string
	// Limit caps the tasks examined per pass.
	Limit int
	// SendsPerSecond paces deliveries. Zero or less means unlimited.
	SendsPerSecond float64
}

// Result summarizes one sweep pass.
type Result struct {
	Found   int `json:"found"`
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Sweeper delivers reminders of overdue tasks that were never notified,
// recovering jobs that were lost or never submitted.
type Sweeper struct {
	deliverer
	tasks    sweepStore
	schedule string
	limit    int
}

func NewSweeper(store sweepStore, sender notify.Sender, cfg SweeperConfig, opts ...Option) *Sweeper {
	limit := rate.Inf
	if cfg.SendsPerSecond > 0 {
		limit = rate.Limit(cfg.SendsPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	return &Sweeper{
		deliverer: deliverer{
			store:   store,
			sender:  sender,
			pace:    limiter.Wait,
			options: newOptions(opts),
		},
		tasks:    store,
		schedule: cfg.Schedule,
		limit:    cfg.Limit,
	}
}

// Sweep runs one pass. Each task is claimed before it is sent, so
// concurrent passes never deliver the same task twice. Per-task failures
// are counted and leave the task for the next pass.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	tasks, err := s.tasks.OverdueUnnotified(ctx, s.now().UTC(), s.limit)
	if err != nil {
		return res, fmt.Errorf("query overdue tasks: %w", err)
	}
	res.Found = len(tasks)
	s.metrics.SweepFound(res.Found)

	for _, task := range tasks {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		claimed, err := s.deliver(ctx, task.ID, notify.Message{
			To:        task.OwnerEmail,
			Title:     task.Title,
			Notes:     task.Notes,
			TimeLabel: task.DueAt.UTC().Format(TimeLabelLayout),
		}, metrics.PathSweep)
		if claimed {
			res.Claimed++
		}
		if err != nil {
			res.Failed++
			s.logger.Warn("sweep delivery failed", "task_id", task.ID, "error", err)
			continue
		}
		if claimed {
			res.Sent++
		}
	}
	if res.Found > 0 {
		s.logger.Info("sweep done", "found", res.Found, "claimed", res.Claimed, "sent", res.Sent, "failed", res.Failed)
	}
	return res, nil
}

// Run sweeps on the configured schedule until ctx is done. A pass still
// running when the next one is due makes that one skip.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
