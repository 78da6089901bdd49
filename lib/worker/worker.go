package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/observer/kafka"
	"github.com/ecociel/remind/metrics"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"
)

// Handler runs the body of a job. A non-nil error requests another attempt.
type Handler func(ctx context.Context, job domain.Job) error

type consumer interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

type store interface {
	Reschedule(ctx context.Context, job domain.Job) error
	MarkDone(ctx context.Context, id string) error
	Abandon(ctx context.Context, id string, reason string) error
}

// RetryPolicy bounds how often and how late a failed job is attempted again.
type RetryPolicy struct {
	MaxAttempts uint16
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Worker subscribes to the job topic and executes the corresponding handlers.
// Workers can be run in parallel.
type Worker struct {
	client      consumer
	store       store
	handlers    map[string]Handler
	retry       RetryPolicy
	concurrency int
	metrics     metrics.WorkerMetrics
	logger      *slog.Logger
	now         func() time.Time
	// storeRetry is the first pause before writing a failed outcome again.
	storeRetry time.Duration
}

const maxStoreRetry = 30 * time.Second

type Option func(*Worker)

// WithConcurrency sets how many records of one fetch are handled at once.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithMetrics(m metrics.WorkerMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

func New(client consumer, store store, retry RetryPolicy, opts ...Option) *Worker {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}
	w := &Worker{
		client:      client,
		store:       store,
		handlers:    make(map[string]Handler),
		retry:       retry,
		concurrency: 1,
		metrics:     metrics.Nop{},
		logger:      slog.Default(),
		now:         time.Now,
		storeRetry:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) RegisterHandler(name string, hdl Handler) {
	w.handlers[name] = hdl
}

func (w *Worker) Run(ctx context.Context) {
	for {
		fetches := w.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			w.logger.Info("consuming client closed, returning")
			return
		}
		if ctx.Err() != nil {
			return
		}
		fetches.EachError(func(t string, p int32, err error) {
			w.logger.Error("fetch error", "topic", t, "partition", p, "error", err)
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}
		handled := make([]bool, len(records))
		var g errgroup.Group
		g.SetLimit(w.concurrency)
		for i, record := range records {
			g.Go(func() error {
				if err := w.handle(ctx, record); err != nil {
					w.logger.Error("record left uncommitted", "offset", record.Offset, "error", err)
					return nil
				}
				handled[i] = true
				return nil
			})
		}
		_ = g.Wait()

		commit := committable(records, handled)
		if len(commit) == 0 {
			continue
		}
		// Commit what was recorded even when shutdown canceled ctx.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		err := w.client.CommitRecords(commitCtx, commit...)
		cancel()
		if err != nil {
			w.logger.Error("commit records", "count", len(commit), "error", err)
		}
	}
}

// committable returns the handled records that precede the first unhandled
// record of their partition. Committing a later offset would also commit the
// unhandled one.
func committable(records []*kgo.Record, handled []bool) []*kgo.Record {
	type partition struct {
		topic string
		id    int32
	}
	blocked := make(map[partition]bool)
	commit := make([]*kgo.Record, 0, len(records))
	for i, record := range records {
		p := partition{record.Topic, record.Partition}
		if !handled[i] {
			blocked[p] = true
			continue
		}
		if !blocked[p] {
			commit = append(commit, record)
		}
	}
	return commit
}

// persist writes a job outcome, retrying with doubling pauses until it
// succeeds or ctx is done.
func (w *Worker) persist(ctx context.Context, job domain.Job, op func(ctx context.Context) error) error {
	delay := w.storeRetry
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		w.logger.Warn("storing job outcome failed, retrying", "job_id", job.ID, "in", delay, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay = min(delay*2, maxStoreRetry)
	}
}

// handle runs one record. It returns an error only when the outcome could
// not be recorded, in which case the record must not be committed.
func (w *Worker) handle(ctx context.Context, record *kgo.Record) error {
	job := kafka.RecToJob(record)
	hdl, ok := w.handlers[job.Name]
	if !ok {
		w.logger.Warn("unknown job", "job_id", job.ID, "job_name", job.Name)
		return nil
	}

	err := hdl(ctx, job)
	if err == nil {
		w.metrics.JobSucceeded(job.Name)
		if err := w.persist(ctx, job, func(ctx context.Context) error { return w.store.MarkDone(ctx, job.ID) }); err != nil {
			return fmt.Errorf("mark done %s/%s: %w", job.Name, job.ID, err)
		}
		return nil
	}

	attempt := job.RetryCount + 1
	if attempt >= w.retry.MaxAttempts {
		w.metrics.JobAbandoned(job.Name)
		w.logger.Error("job abandoned", "job_id", job.ID, "job_name", job.Name, "attempts", attempt, "error", err)
		reason := err.Error()
		if err := w.persist(ctx, job, func(ctx context.Context) error { return w.store.Abandon(ctx, job.ID, reason) }); err != nil {
			return fmt.Errorf("abandon %s/%s: %w", job.Name, job.ID, err)
		}
		return nil
	}

	w.logger.Warn("job failed, retrying", "job_id", job.ID, "job_name", job.Name, "attempt", attempt, "error", err)
	setReschedule(&job, w.now(), err, w.retry)
	if err := w.persist(ctx, job, func(ctx context.Context) error { return w.store.Reschedule(ctx, job) }); err != nil {
		return fmt.Errorf("reschedule %s/%s: %w", job.Name, job.ID, err)
	}
	w.metrics.JobRetried(job.Name)
	return nil
}

func setReschedule(job *domain.Job, now time.Time, err error, retry RetryPolicy) {
	job.RetryCount++
	job.RetryReason = err.Error()
	job.Due = now.Add(calculateBackoff(job.RetryCount, retry.BaseDelay, retry.MaxDelay))
}

// calculateBackoff doubles baseDelay per retry and applies equal jitter:
// the result lies in [delay/2, delay], capped at maxDelay.
func calculateBackoff(retryCount uint16, baseDelay, maxDelay time.Duration) time.Duration {
	if retryCount == 0 {
		retryCount = 1
	}

	expFactor := math.Pow(2, float64(retryCount-1))
	delay := time.Duration(float64(baseDelay) * expFactor)

	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + time.Duration(rand.Int64N(int64(half)+1))
}
