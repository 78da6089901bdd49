package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotFinalized is returned by Finalize when the task is missing or already notified.
	ErrNotFinalized = errors.New("task not found or already notified")
)

// TaskRepo persists tasks and implements the claim primitives on their flags.
// Every claim is one conditional UPDATE; the affected row count decides the winner.
type TaskRepo struct {
	pool     *pgxpool.Pool
	claimTTL time.Duration
}

// NewTaskRepo returns a TaskRepo. A notification claim older than claimTTL
// is considered abandoned and may be claimed again.
func NewTaskRepo(pool *pgxpool.Pool, claimTTL time.Duration) *TaskRepo {
	return &TaskRepo{pool: pool, claimTTL: claimTTL}
}

func (repo *TaskRepo) ClaimForScheduling(ctx context.Context, id int64) (bool, error) {
	const q = `
      UPDATE tasks
      SET scheduled = TRUE
      WHERE id = $1 AND scheduled = FALSE`
	tag, err := repo.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("claim scheduling for %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimForNotification takes the delivery lease of an unnotified, uncompleted task.
// The notified flag itself is only written by Finalize.
func (repo *TaskRepo) ClaimForNotification(ctx context.Context, id int64) (bool, error) {
	const q = `
      UPDATE tasks
      SET notify_claimed_at = now()
      WHERE id = $1
        AND notified = FALSE
        AND completed = FALSE
        AND (notify_claimed_at IS NULL OR notify_claimed_at < now() - make_interval(secs => $2))`
	tag, err := repo.pool.Exec(ctx, q, id, repo.claimTTL.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim notification for %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseNotification drops the delivery lease after a failed send.
func (repo *TaskRepo) ReleaseNotification(ctx context.Context, id int64) error {
	const q = `
      UPDATE tasks
      SET notify_claimed_at = NULL
      WHERE id = $1 AND notified = FALSE`
	if _, err := repo.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("release notification for %d: %w", id, err)
	}
	return nil
}

// UpdateTask overwrites the given flags. Setting notified also sets completed,
// and completed stays true on a row that is already notified.
func (repo *TaskRepo) UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) error {
	var (
		sets []string
		args = []any{id}
	)
	if upd.Notified != nil {
		args = append(args, *upd.Notified)
		sets = append(sets, fmt.Sprintf("notified = $%d", len(args)), "notify_claimed_at = NULL")
	}
	switch {
	case upd.Notified != nil && *upd.Notified:
		sets = append(sets, "completed = TRUE")
	case upd.Completed != nil:
		args = append(args, *upd.Completed)
		sets = append(sets, fmt.Sprintf("completed = ($%d OR notified)", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	q := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := repo.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %d: %w", id, ErrTaskNotFound)
	}
	return nil
}

// Finalize marks an unnotified task notified and completed. Call it only after a confirmed send.
func (repo *TaskRepo) Finalize(ctx context.Context, id int64) error {
	const q = `
      UPDATE tasks
      SET notified = TRUE, completed = TRUE, notify_claimed_at = NULL
      WHERE id = $1 AND notified = FALSE`
	tag, err := repo.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("finalize task %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize task %d: %w", id, ErrNotFinalized)
	}
	return nil
}

// OverdueUnnotified returns tasks due at or before now that are neither
// notified nor completed, joined with the owner's email.
func (repo *TaskRepo) OverdueUnnotified(ctx context.Context, now time.Time, limit int) ([]domain.Task, error) {
	const q = `
    SELECT t.id, t.user_id, u.email, t.title, t.notes, t.due_at, t.priority, t.category,
           t.completed, t.notified, t.scheduled
    FROM tasks t
    JOIN users u ON u.id = t.user_id
    WHERE t.due_at <= $1 AND t.notified = FALSE AND t.completed = FALSE
    ORDER BY t.due_at
    LIMIT $2
     `
	rows, err := repo.pool.Query(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overdue task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows overdue tasks: %w", err)
	}
	return tasks, nil
}

func (repo *TaskRepo) Get(ctx context.Context, id int64) (domain.Task, error) {
	const q = `
    SELECT t.id, t.user_id, u.email, t.title, t.notes, t.due_at, t.priority, t.category,
           t.completed, t.notified, t.scheduled
    FROM tasks t
    JOIN users u ON u.id = t.user_id
    WHERE t.id = $1`
	task, err := scanTask(repo.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return task, fmt.Errorf("get task %d: %w", id, ErrTaskNotFound)
	}
	if err != nil {
		return task, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// Insert stores a new task with all flags cleared and returns its id.
func (repo *TaskRepo) Insert(ctx context.Context, task domain.Task) (id int64, err error) {
	const q = `
        INSERT INTO tasks
          (user_id, title, notes, due_at, priority, category)
        VALUES
          ($1, $2, $3, $4, $5, $6)
        RETURNING id
        `
	err = repo.pool.QueryRow(ctx, q, task.UserID, task.Title, task.Notes, task.DueAt.UTC(), task.Priority, task.Category).Scan(&id)
	if err != nil {
		return id, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// EnsureUser returns the id of the user with the given email, creating it if needed.
func (repo *TaskRepo) EnsureUser(ctx context.Context, email string) (id int64, err error) {
	const q = `
        INSERT INTO users (email)
        VALUES ($1)
        ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
        RETURNING id
        `
	if err = repo.pool.QueryRow(ctx, q, email).Scan(&id); err != nil {
		return id, fmt.Errorf("ensure user %s: %w", email, err)
	}
	return id, nil
}

func scanTask(row pgx.Row) (task domain.Task, err error) {
	err = row.Scan(&task.ID, &task.UserID, &task.OwnerEmail, &task.Title, &task.Notes, &task.DueAt,
		&task.Priority, &task.Category, &task.Completed, &task.Notified, &task.Scheduled)
	task.DueAt = task.DueAt.UTC()
	return task, err
}
