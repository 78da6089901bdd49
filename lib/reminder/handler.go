package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/notify"
	"github.com/ecociel/remind/metrics"
)

type notificationStore interface {
	ClaimForNotification(ctx context.Context, taskID int64) (bool, error)
	ReleaseNotification(ctx context.Context, taskID int64) error
	Finalize(ctx context.Context, taskID int64) error
}

// deliverer runs claim, send and finalize for one task.
type deliverer struct {
	store  notificationStore
	sender notify.Sender
	// pace, if set, is waited on between claim and send.
	pace func(ctx context.Context) error
	options
}

// deliver reports whether the notification claim was won. A returned error
// after a won claim means the send did not happen and the claim was released.
func (d *deliverer) deliver(ctx context.Context, taskID int64, msg notify.Message, path string) (bool, error) {
	log := d.logger.With("task_id", taskID, "path", path)

	ok, err := d.store.ClaimForNotification(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("claim notification for task %d: %w", taskID, err)
	}
	if !ok {
		log.Debug("notification owned elsewhere or task done")
		return false, nil
	}

	if d.pace != nil {
		if err := d.pace(ctx); err != nil {
			d.release(ctx, taskID, log)
			return true, err
		}
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.NotificationFailed(path)
		d.release(ctx, taskID, log)
		return true, fmt.Errorf("send reminder for task %d: %w", taskID, err)
	}
	d.metrics.NotificationSent(path)

	// The email is out. A failed finalize is logged only; retrying would send again.
	if err := d.store.Finalize(ctx, taskID); err != nil {
		log.Error("reminder sent but task not finalized", "error", err)
		return true, nil
	}
	log.Info("reminder delivered", "to", msg.To)
	return true, nil
}

func (d *deliverer) release(ctx context.Context, taskID int64, log *slog.Logger) {
	// Release even when ctx was canceled mid-send.
	if err := d.store.ReleaseNotification(context.WithoutCancel(ctx), taskID); err != nil {
		log.Error("release notification", "error", err)
	}
}

// Handler is the body of the send_task_email job.
type Handler struct {
	deliverer
}

func NewHandler(store notificationStore, sender notify.Sender, opts ...Option) *Handler {
	return &Handler{deliverer{store: store, sender: sender, options: newOptions(opts)}}
}

// Run delivers the reminder carried by job. A non-nil error asks the queue
// for another attempt.
func (h *Handler) Run(ctx context.Context, job domain.Job) error {
	var args domain.ReminderArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		return fmt.Errorf("decode reminder args of job %s: %w", job.ID, err)
	}
	_, err := h.deliver(ctx, args.TaskID, notify.Message{
		To:        args.To,
		Title:     args.Title,
		Notes:     args.Notes,
		TimeLabel: args.TimeLabel,
	}, metrics.PathJob)
	return err
}
