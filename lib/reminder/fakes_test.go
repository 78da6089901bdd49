package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ecociel/remind/lib/domain"
	"github.com/ecociel/remind/lib/notify"
)

// memTasks is an in-memory task store whose claims are atomic under one mutex,
// like the single conditional UPDATE of the database store.
type memTasks struct {
	mu       sync.Mutex
	tasks    map[int64]*domain.Task
	leased   map[int64]bool
	claimErr error
}

func newMemTasks(tasks ...domain.Task) *memTasks {
	m := &memTasks{tasks: make(map[int64]*domain.Task), leased: make(map[int64]bool)}
	for i := range tasks {
		t := tasks[i]
		m.tasks[t.ID] = &t
	}
	return m
}

func (m *memTasks) ClaimForScheduling(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	t, ok := m.tasks[id]
	if !ok || t.Scheduled {
		return false, nil
	}
	t.Scheduled = true
	return true, nil
}

func (m *memTasks) ClaimForNotification(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	t, ok := m.tasks[id]
	if !ok || t.Notified || t.Completed || m.leased[id] {
		return false, nil
	}
	m.leased[id] = true
	return true, nil
}

func (m *memTasks) ReleaseNotification(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leased, id)
	return nil
}

func (m *memTasks) Finalize(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		t.Notified = true
		t.Completed = true
	}
	delete(m.leased, id)
	return nil
}

func (m *memTasks) OverdueUnnotified(_ context.Context, now time.Time, limit int) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if !t.DueAt.After(now) && !t.Notified && !t.Completed && len(out) < limit {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTasks) get(id int64) domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tasks[id]
}

// mockSender counts sends and fails while failFn says so.
type mockSender struct {
	mu     sync.Mutex
	sent   []notify.Message
	calls  int
	failFn func(call int) error
}

func (m *mockSender) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failFn != nil {
		if err := m.failFn(m.calls); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockSender) counts() (calls, sent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, len(m.sent)
}

// waitFor polls cond until it holds or timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
