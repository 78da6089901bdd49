package domain

import (
	"strconv"
	"time"
)

// PartitionKeyNone indicates that partition is not relevant
// because sort order of jobs is not important.
const PartitionKeyNone = "-"

const HeaderID = "id"
const HeaderName = "name"
const HeaderRetryCount = "retry_count"
const HeaderRetryReason = "retry_reason"

// JobSendTaskEmail is the handler name of the reminder delivery job.
const JobSendTaskEmail = "send_task_email"

const jobIDPrefix = "task-email-"

// TaskJobID returns the deterministic job id of the reminder for taskID.
// Submitting twice with the same id is a no-op at the queue layer.
func TaskJobID(taskID int64) string {
	return jobIDPrefix + strconv.FormatInt(taskID, 10)
}

// Task is a user task carrying a one-time reminder.
type Task struct {
	ID         int64
	UserID     int64
	OwnerEmail string
	Title      string
	Notes      string
	DueAt      time.Time
	Priority   string
	Category   string
	Completed  bool
	Notified   bool
	Scheduled  bool
}

// TaskUpdate lists the flags to overwrite. Nil fields are left untouched.
type TaskUpdate struct {
	Completed *bool
	Notified  *bool
}

type JobState string

const (
	JobPending    JobState = "pending"
	JobPublishing JobState = "publishing"
	JobPublished  JobState = "published"
	JobDone       JobState = "done"
	JobAbandoned  JobState = "abandoned"
)

// Job is a unit of deferred work executed no earlier than Due.
type Job struct {
	ID           string
	Name         string
	PartitionKey string
	Args         []byte
	Due          time.Time
	State        JobState
	RetryCount   uint16
	RetryReason  string
}

// ReminderArgs is the payload of a JobSendTaskEmail job.
type ReminderArgs struct {
	TaskID    int64  `json:"task_id"`
	To        string `json:"to"`
	Title     string `json:"title"`
	Notes     string `json:"notes,omitempty"`
	TimeLabel string `json:"time_label,omitempty"`
}
