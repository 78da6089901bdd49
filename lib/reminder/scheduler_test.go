package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/queue"
)

type submission struct {
	name    string
	args    domain.ReminderArgs
	delay   time.Duration
	dedupID string
}

// mockSubmitter records submissions and dedups on id like the job table.
type mockSubmitter struct {
	mu        sync.Mutex
	submitErr error
	subs      []submission
	seen      map[string]bool
}

func (m *mockSubmitter) Submit(_ context.Context, name string, args []byte, delay time.Duration, dedupID string) (queue.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return queue.Handle{}, m.submitErr
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[dedupID] {
		return queue.Handle{ID: dedupID}, nil
	}
	m.seen[dedupID] = true
	var a domain.ReminderArgs
	_ = json.Unmarshal(args, &a)
	m.subs = append(m.subs, submission{name: name, args: a, delay: delay, dedupID: dedupID})
	return queue.Handle{ID: dedupID, Created: true}, nil
}

var fixedNow = time.Date(2025, 10, 20, 15, 0, 0, 0, time.UTC)

func newTestScheduler(tasks *memTasks, sub *mockSubmitter) *Scheduler {
	s := NewScheduler(tasks, sub, time.Second)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSchedule_SubmitsJob(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 7})
	sub := &mockSubmitter{}
	s := newTestScheduler(tasks, sub)

	err := s.Schedule(context.Background(), Request{
		TaskID: 7, Email: "ada@example.com", Title: "Pay rent", Notes: "landlord", Due: "2025-10-20 15:30",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(sub.subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(sub.subs))
	}
	got := sub.subs[0]
	if got.name != domain.JobSendTaskEmail || got.dedupID != "task-email-7" {
		t.Errorf("unexpected submission %+v", got)
	}
	if got.delay != 30*time.Minute {
		t.Errorf("expected delay 30m, got %v", got.delay)
	}
	want := domain.ReminderArgs{TaskID: 7, To: "ada@example.com", Title: "Pay rent", Notes: "landlord", TimeLabel: "2025-10-20 03:30 PM UTC"}
	if got.args != want {
		t.Errorf("expected args %+v, got %+v", want, got.args)
	}
	if !tasks.get(7).Scheduled {
		t.Error("expected task to be claimed for scheduling")
	}
}

func TestSchedule_PastDueIsClamped(t *testing.T) {
	sub := &mockSubmitter{}
	s := newTestScheduler(newMemTasks(domain.Task{ID: 1}), sub)

	if err := s.Schedule(context.Background(), Request{TaskID: 1, Due: "2025-10-19 08:00"}); err != nil {
		t.Fatalf("expected overdue task to be scheduled, got: %v", err)
	}
	if len(sub.subs) != 1 || sub.subs[0].delay != time.Second {
		t.Fatalf("expected one submission with minimal delay, got %+v", sub.subs)
	}
}

func TestSchedule_PreClaimedSubmitsNothing(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 1, Scheduled: true})
	sub := &mockSubmitter{}
	s := newTestScheduler(tasks, sub)

	if err := s.Schedule(context.Background(), Request{TaskID: 1, Due: "2025-10-20 15:30"}); err != nil {
		t.Fatalf("expected duplicate to be a success, got: %v", err)
	}
	if len(sub.subs) != 0 {
		t.Errorf("expected no submission, got %d", len(sub.subs))
	}
}

func TestSchedule_BadFormatSubmitsNothing(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 1})
	sub := &mockSubmitter{}
	s := newTestScheduler(tasks, sub)

	err := s.Schedule(context.Background(), Request{TaskID: 1, Due: "next tuesday"})
	if !errors.Is(err, ErrUnparseableDue) {
		t.Fatalf("expected ErrUnparseableDue, got %v", err)
	}
	if len(sub.subs) != 0 {
		t.Errorf("expected no submission, got %d", len(sub.subs))
	}
	if !tasks.get(1).Scheduled {
		t.Error("expected task to stay claimed without a job")
	}

	// the claim is spent; a second call is a duplicate, not a retry
	if err := s.Schedule(context.Background(), Request{TaskID: 1, Due: "2025-10-20 15:30"}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(sub.subs) != 0 {
		t.Errorf("expected no submission after the claim is spent, got %d", len(sub.subs))
	}
}

func TestSchedule_ConcurrentCallersSubmitOnce(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 3})
	sub := &mockSubmitter{}
	s := newTestScheduler(tasks, sub)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Schedule(context.Background(), Request{TaskID: 3, Due: "2025-10-20 15:30"}); err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		}()
	}
	wg.Wait()
	if len(sub.subs) != 1 {
		t.Errorf("expected exactly 1 submission, got %d", len(sub.subs))
	}
}

func TestSchedule_StoreErrorIsReturned(t *testing.T) {
	tasks := newMemTasks(domain.Task{ID: 1})
	tasks.claimErr = errors.New("connection refused")
	sub := &mockSubmitter{}

	if err := newTestScheduler(tasks, sub).Schedule(context.Background(), Request{TaskID: 1, Due: "2025-10-20 15:30"}); err == nil {
		t.Fatal("expected store error, got nil")
	}
	if len(sub.subs) != 0 {
		t.Errorf("expected no submission, got %d", len(sub.subs))
	}
}

func TestSchedule_SubmitErrorIsReturned(t *testing.T) {
	sub := &mockSubmitter{submitErr: errors.New("queue down")}
	err := newTestScheduler(newMemTasks(domain.Task{ID: 1}), sub).Schedule(context.Background(), Request{TaskID: 1, Due: "2025-10-20 15:30"})
	if err == nil {
		t.Fatal("expected submit error, got nil")
	}
}

func TestScheduleTask(t *testing.T) {
	due := fixedNow.Add(2 * time.Hour)
	tasks := newMemTasks(domain.Task{ID: 9})
	sub := &mockSubmitter{}

	err := newTestScheduler(tasks, sub).ScheduleTask(context.Background(), domain.Task{
		ID: 9, OwnerEmail: "ada@example.com", Title: "Call mom", DueAt: due,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(sub.subs) != 1 || sub.subs[0].delay != 2*time.Hour || sub.subs[0].args.To != "ada@example.com" {
		t.Errorf("unexpected submissions %+v", sub.subs)
	}
}
