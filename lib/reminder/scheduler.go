// Package reminder schedules and delivers one-time task reminders.
//
// A reminder reaches a task through two paths: the deferred job submitted by
// the Scheduler and executed by the Handler, and the Sweeper that recovers
// overdue tasks whose job was lost. Both paths take the task's notification
// claim before sending, so at most one of them delivers.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/queue"
)

type schedulingClaimer interface {
	ClaimForScheduling(ctx context.Context, taskID int64) (bool, error)
}

type submitter interface {
	Submit(ctx context.Context, name string, args []byte, delay time.Duration, dedupID string) (queue.Handle, error)
}

// Request asks for the reminder of a stored task.
type Request struct {
	TaskID int64  `json:"task_id"`
	Email  string `json:"email"`
	Title  string `json:"title"`
	Notes  string `json:"notes,omitempty"`
	Due    string `json:"due"`
}

type Scheduler struct {
	claims   schedulingClaimer
	queue    submitter
	minDelay time.Duration
	options
}

// NewScheduler returns a Scheduler. Reminders already due are submitted with minDelay.
func NewScheduler(claims schedulingClaimer, queue submitter, minDelay time.Duration, opts ...Option) *Scheduler {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	return &Scheduler{claims: claims, queue: queue, minDelay: minDelay, options: newOptions(opts)}
}

// Schedule submits the reminder job for req.TaskID once per task. A lost
// scheduling claim is not an error: another caller already scheduled it.
// Unparseable due text returns a *ParseError and leaves the task claimed
// without a job.
func (s *Scheduler) Schedule(ctx context.Context, req Request) error {
	log := s.logger.With("task_id", req.TaskID)

	ok, err := s.claims.ClaimForScheduling(ctx, req.TaskID)
	if err != nil {
		return fmt.Errorf("claim scheduling for task %d: %w", req.TaskID, err)
	}
	if !ok {
		s.metrics.ReminderDuplicate()
		log.Info("reminder already scheduled")
		return nil
	}

	due, err := ParseDue(req.Due)
	if err != nil {
		s.metrics.ReminderParseFailed()
		log.Error("reminder not scheduled", "due", req.Due, "error", err)
		return err
	}

	delay := due.Sub(s.now().UTC())
	if delay <= 0 {
		delay = s.minDelay
	}

	args, err := json.Marshal(domain.ReminderArgs{
		TaskID:    req.TaskID,
		To:        req.Email,
		Title:     req.Title,
		Notes:     req.Notes,
		TimeLabel: due.Format(TimeLabelLayout),
	})
	if err != nil {
		return fmt.Errorf("encode reminder args: %w", err)
	}

	h, err := s.queue.Submit(ctx, domain.JobSendTaskEmail, args, delay, domain.TaskJobID(req.TaskID))
	if err != nil {
		return fmt.Errorf("submit reminder for task %d: %w", req.TaskID, err)
	}
	if !h.Created {
		s.metrics.ReminderDuplicate()
		return nil
	}
	s.metrics.ReminderScheduled()
	log.Info("reminder scheduled", "job_id", h.ID, "due", due, "delay", delay)
	return nil
}

// ScheduleTask schedules the reminder of a stored task.
func (s *Scheduler) ScheduleTask(ctx context.Context, task domain.Task) error {
	return s.Schedule(ctx, Request{
		TaskID: task.ID,
		Email:  task.OwnerEmail,
		Title:  task.Title,
		Notes:  task.Notes,
		Due:    FormatDue(task.DueAt),
	})
}
