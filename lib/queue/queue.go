package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecociel/remind/lib/domain"
)

type store interface {
	Insert(ctx context.Context, job domain.Job) (bool, error)
}

// Handle identifies a submitted job.
// Created is false when a job with the same dedup id already existed.
type Handle struct {
	ID      string
	Due     time.Time
	Created bool
}

// Queue adds jobs to the job table to be published on the job topic
// once due.
type Queue struct {
	store  store
	logger *slog.Logger
	now    func() time.Time
}

func New(store store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, logger: logger, now: time.Now}
}

// Submit stores a job that runs no earlier than delay from now.
// dedupID is the job id; resubmitting the same id does not create a second job.
func (q *Queue) Submit(ctx context.Context, name string, args []byte, delay time.Duration, dedupID string) (Handle, error) {
	job := domain.Job{
		ID:           dedupID,
		Name:         name,
		PartitionKey: domain.PartitionKeyNone,
		Args:         args,
		Due:          q.now().UTC().Add(delay),
	}
	created, err := q.store.Insert(ctx, job)
	if err != nil {
		return Handle{}, fmt.Errorf("submit %s/%s: %w", name, dedupID, err)
	}
	if !created {
		q.logger.Info("job already submitted", "job_id", dedupID, "job_name", name)
	} else {
		q.logger.Info("job submitted", "job_id", dedupID, "job_name", name, "due", job.Due)
	}
	return Handle{ID: dedupID, Due: job.Due, Created: created}, nil
}
