package metrics

import "time"

// Delivery paths reported with notification metrics.
const (
	PathJob   = "job"
	PathSweep = "sweep"
)

// RelayMetrics is reported by the observer that moves due jobs onto the job topic.
type RelayMetrics interface {
	JobsClaimed(n int)
	JobPublished()
	JobPublishFailed()
	JobsReclaimed(n int)
	PublishLatency(d time.Duration)
}

// WorkerMetrics is reported by the job consumer.
type WorkerMetrics interface {
	JobSucceeded(name string)
	JobRetried(name string)
	JobAbandoned(name string)
}

// ReminderMetrics is reported by the reminder scheduler, job handler and sweeper.
type ReminderMetrics interface {
	ReminderScheduled()
	ReminderDuplicate()
	ReminderParseFailed()
	NotificationSent(path string)
	NotificationFailed(path string)
	SweepFound(n int)
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) JobsClaimed(int)              {}
func (Nop) JobPublished()                {}
func (Nop) JobPublishFailed()            {}
func (Nop) JobsReclaimed(int)            {}
func (Nop) PublishLatency(time.Duration) {}
func (Nop) JobSucceeded(string)          {}
func (Nop) JobRetried(string)            {}
func (Nop) JobAbandoned(string)          {}
func (Nop) ReminderScheduled()           {}
func (Nop) ReminderDuplicate()           {}
func (Nop) ReminderParseFailed()         {}
func (Nop) NotificationSent(string)      {}
func (Nop) NotificationFailed(string)    {}
func (Nop) SweepFound(int)               {}
