package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics_Counters(t *testing.T) {
	m := NewPromMetrics(prometheus.NewRegistry())

	m.JobsClaimed(3)
	m.JobPublished()
	m.JobAbandoned("send_task_email")
	m.NotificationSent(PathSweep)
	m.NotificationSent(PathSweep)
	m.PublishLatency(20 * time.Millisecond)

	if got := testutil.ToFloat64(m.claimed); got != 3 {
		t.Errorf("expected 3 claimed, got %v", got)
	}
	if got := testutil.ToFloat64(m.published); got != 1 {
		t.Errorf("expected 1 published, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsAbandoned.WithLabelValues("send_task_email")); got != 1 {
		t.Errorf("expected 1 abandoned, got %v", got)
	}
	if got := testutil.ToFloat64(m.notificationSent.WithLabelValues(PathSweep)); got != 2 {
		t.Errorf("expected 2 sweep sends, got %v", got)
	}
	if got := testutil.ToFloat64(m.notificationSent.WithLabelValues(PathJob)); got != 0 {
		t.Errorf("expected 0 job sends, got %v", got)
	}
}

func TestNop_ImplementsAll(t *testing.T) {
	var _ RelayMetrics = Nop{}
	var _ WorkerMetrics = Nop{}
	var _ ReminderMetrics = Nop{}
	var _ RelayMetrics = (*PromMetrics)(nil)
	var _ WorkerMetrics = (*PromMetrics)(nil)
	var _ ReminderMetrics = (*PromMetrics)(nil)
}
