package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("job not found")

// JobRepo is the durable half of the deferred execution queue.
type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Insert adds a pending job. It reports false if a job with the same id already exists.
func (repo *JobRepo) Insert(ctx context.Context, job domain.Job) (bool, error) {
	const q = `
        INSERT INTO job
          (id, name, partition_key, args, due)
        VALUES
          ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO NOTHING
        `
	tag, err := repo.pool.Exec(ctx, q, job.ID, job.Name, job.PartitionKey, job.Args, job.Due.UTC())
	if err != nil {
		return false, fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimDueJobs moves up to limit due pending jobs to publishing and returns them.
// Concurrent relays never receive the same row.
func (repo *JobRepo) ClaimDueJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	const q = `
    UPDATE job
    SET state = 'publishing', claimed_at = now(), updated_at = now()
    WHERE id IN (
      SELECT id FROM job
      WHERE state = 'pending' AND due <= now()
      ORDER BY due
      LIMIT $1
      FOR UPDATE SKIP LOCKED
    )
    RETURNING id, name, partition_key, args, due, state, retry_count, retry_reason
     `
	rows, err := repo.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows claim due jobs: %w", err)
	}
	return jobs, nil
}

func (repo *JobRepo) MarkPublished(ctx context.Context, id string) error {
	const q = `
      UPDATE job
      SET state = 'published', updated_at = now()
      WHERE id = $1 AND state = 'publishing'`
	if _, err := repo.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark published for %s: %w", id, err)
	}
	return nil
}

// RevertToPending returns a job whose publish failed to the pending state.
func (repo *JobRepo) RevertToPending(ctx context.Context, id string) error {
	const q = `
      UPDATE job
      SET state = 'pending', claimed_at = NULL, updated_at = now()
      WHERE id = $1 AND state = 'publishing'`
	if _, err := repo.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("revert to pending for %s: %w", id, err)
	}
	return nil
}

// ResetStuckPublishing returns jobs left in publishing by a crashed relay to pending.
func (repo *JobRepo) ResetStuckPublishing(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
      UPDATE job
      SET state = 'pending', claimed_at = NULL, updated_at = now()
      WHERE state = 'publishing' AND claimed_at < now() - make_interval(secs => $1)`
	tag, err := repo.pool.Exec(ctx, q, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reset stuck publishing: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Reschedule puts a failed job back to pending with its new due time and retry bookkeeping.
func (repo *JobRepo) Reschedule(ctx context.Context, job domain.Job) error {
	const q = `
      UPDATE job
      SET state = 'pending', due = $2, retry_count = $3, retry_reason = $4, claimed_at = NULL, updated_at = now()
      WHERE id = $1`
	if _, err := repo.pool.Exec(ctx, q, job.ID, job.Due.UTC(), int32(job.RetryCount), job.RetryReason); err != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, err)
	}
	return nil
}

func (repo *JobRepo) MarkDone(ctx context.Context, id string) error {
	const q = `
      UPDATE job
      SET state = 'done', updated_at = now()
      WHERE id = $1`
	if _, err := repo.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark done for %s: %w", id, err)
	}
	return nil
}

// Abandon records that a job exhausted its attempts. It is never run again.
func (repo *JobRepo) Abandon(ctx context.Context, id string, reason string) error {
	const q = `
      UPDATE job
      SET state = 'abandoned', retry_reason = $2, updated_at = now()
      WHERE id = $1`
	if _, err := repo.pool.Exec(ctx, q, id, reason); err != nil {
		return fmt.Errorf("abandon job %s: %w", id, err)
	}
	return nil
}

func (repo *JobRepo) Get(ctx context.Context, id string) (domain.Job, error) {
	const q = `
    SELECT id, name, partition_key, args, due, state, retry_count, retry_reason
    FROM job
    WHERE id = $1`
	job, err := scanJob(repo.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return job, fmt.Errorf("get job %s: %w", id, ErrJobNotFound)
	}
	return job, err
}

func scanJob(row pgx.Row) (job domain.Job, err error) {
	var (
		state      string
		retryCount int32
	)
	if err = row.Scan(&job.ID, &job.Name, &job.PartitionKey, &job.Args, &job.Due, &state, &retryCount, &job.RetryReason); err != nil {
		return job, fmt.Errorf("scan job: %w", err)
	}
	job.State = domain.JobState(state)
	job.RetryCount = uint16(retryCount)
	job.Due = job.Due.UTC()
	return job, nil
}
