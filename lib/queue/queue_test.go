package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecociel/remind/lib/domain"
)

// mockStore keeps inserted jobs keyed by id, like the job table's primary key.
type mockStore struct {
	insertErr error
	jobs      map[string]domain.Job
	calls     int
}

func (m *mockStore) Insert(_ context.Context, job domain.Job) (bool, error) {
	m.calls++
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.jobs == nil {
		m.jobs = make(map[string]domain.Job)
	}
	if _, ok := m.jobs[job.ID]; ok {
		return false, nil
	}
	m.jobs[job.ID] = job
	return true, nil
}

func TestSubmit_ComputesDue(t *testing.T) {
	store := &mockStore{}
	q := New(store, nil)
	now := time.Date(2025, 10, 20, 15, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	h, err := q.Submit(context.Background(), domain.JobSendTaskEmail, []byte(`{}`), 90*time.Second, "task-email-7")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !h.Created {
		t.Error("expected job to be created")
	}
	if want := now.Add(90 * time.Second); !h.Due.Equal(want) {
		t.Errorf("expected due %v, got %v", want, h.Due)
	}
	job := store.jobs["task-email-7"]
	if job.Name != domain.JobSendTaskEmail || job.PartitionKey != domain.PartitionKeyNone {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestSubmit_SameDedupIDIsIdempotent(t *testing.T) {
	store := &mockStore{}
	q := New(store, nil)

	first, err := q.Submit(context.Background(), domain.JobSendTaskEmail, []byte(`{}`), time.Second, "task-email-1")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := q.Submit(context.Background(), domain.JobSendTaskEmail, []byte(`{}`), time.Second, "task-email-1")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !first.Created || second.Created {
		t.Errorf("expected created=true then false, got %v then %v", first.Created, second.Created)
	}
	if len(store.jobs) != 1 {
		t.Errorf("expected 1 stored job, got %d", len(store.jobs))
	}
}

func TestSubmit_StoreError(t *testing.T) {
	expectedErr := errors.New("database connection failed")
	q := New(&mockStore{insertErr: expectedErr}, nil)

	_, err := q.Submit(context.Background(), domain.JobSendTaskEmail, nil, time.Second, "task-email-2")
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected error to wrap %v, got %v", expectedErr, err)
	}
}
