package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ecociel/remind/lib/domain"
)

func reminderJob(t *testing.T, args domain.ReminderArgs) domain.Job {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	return domain.Job{ID: domain.TaskJobID(args.TaskID), Name: domain.JobSendTaskEmail, Args: b}
}

func TestHandler_SendsAndFinalizes(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 1, Scheduled: true})
	sender := &mockSender{}
	h := NewHandler(tasks, sender)

	job := reminderJob(t, domain.ReminderArgs{TaskID: 1, To: "ada@example.com", Title: "Pay rent", TimeLabel: "2025-10-20 03:30 PM UTC"})
	if err := h.Run(context.Background(), job); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "ada@example.com" || sender.sent[0].TimeLabel != "2025-10-20 03:30 PM UTC" {
		t.Fatalf("unexpected sends %+v", sender.sent)
	}
	task := tasks.get(1)
	if !task.Notified || !task.Completed {
		t.Errorf("expected task finalized, got %+v", task)
	}
}

func TestHandler_FailedSendReleasesClaim(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 1})
	sender := &mockSender{failFn: func(int) error { return errors.New("503") }}
	h := NewHandler(tasks, sender)
	job := reminderJob(t, domain.ReminderArgs{TaskID: 1})

	if err := h.Run(context.Background(), job); err == nil {
		t.Fatal("expected send error, got nil")
	}
	if task := tasks.get(1); task.Notified || task.Completed {
		t.Errorf("failed send must not finalize, got %+v", task)
	}
	if ok, _ := tasks.ClaimForNotification(context.Background(), 1); !ok {
		t.Error("expected claim to be released after a failed send")
	}
}

func TestHandler_SkipsDoneTasks(t *testing.T) {
	tests := []struct {
		name string
		task domain.Task
	}{
		{"already notified", domain.Task{ID: 1, Notified: true, Completed: true}},
		{"completed by the user", domain.Task{ID: 1, Completed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{}
			h := NewHandler(newMemTasks(tt.task), sender)
			if err := h.Run(context.Background(), reminderJob(t, domain.ReminderArgs{TaskID: 1})); err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if calls, _ := sender.counts(); calls != 0 {
				t.Errorf("expected no send, got %d", calls)
			}
		})
	}
}

func TestHandler_CanceledContextStillReleases(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 1})
	ctx, cancel := context.WithCancel(context.Background())
	sender := &mockSender{failFn: func(int) error {
		cancel()
		return context.Canceled
	}}
	h := NewHandler(tasks, sender)

	if err := h.Run(ctx, reminderJob(t, domain.ReminderArgs{TaskID: 1})); err == nil {
		t.Fatal("expected error, got nil")
	}
	if ok, _ := tasks.ClaimForNotification(context.Background(), 1); !ok {
		t.Error("expected claim to be released")
	}
}

func TestHandler_BadArgs(t *testing.T) {
	h := NewHandler(newMemTasks(), &mockSender{})
	err := h.Run(context.Background(), domain.Job{ID: "task-email-1", Args: []byte("{")})
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

func TestHandler_StoreError(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 1, DueAt: time.Now()})
	tasks.claimErr = errors.New("database down")
	sender := &mockSender{}

	if err := NewHandler(tasks, sender).Run(context.Background(), reminderJob(t, domain.ReminderArgs{TaskID: 1})); err == nil {
		t.Fatal("expected store error, got nil")
	}
	if calls, _ := sender.counts(); calls != 0 {
		t.Errorf("expected no send, got %d", calls)
	}
}
