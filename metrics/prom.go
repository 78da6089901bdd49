package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "remind"

const (
	LabelJobName = "job_name"
	LabelPath    = "path"
)

type PromMetrics struct {
	claimed        prometheus.Counter
	published      prometheus.Counter
	publishFailed  prometheus.Counter
	reclaimed      prometheus.Counter
	publishLatency prometheus.Histogram

	jobsSucceeded *prometheus.CounterVec
	jobsRetried   *prometheus.CounterVec
	jobsAbandoned *prometheus.CounterVec

	scheduled          prometheus.Counter
	duplicates         prometheus.Counter
	parseFailed        prometheus.Counter
	notificationSent   *prometheus.CounterVec
	notificationFailed *prometheus.CounterVec
	sweepFound         prometheus.Counter
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {

	m := &PromMetrics{
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_jobs_claimed_total",
			Help:      "Number of due jobs claimed by the relay",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_jobs_published_total",
			Help:      "Number of jobs published to the job topic",
		}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_jobs_publish_failed_total",
			Help:      "Number of job publishes that failed",
		}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_jobs_reclaimed_total",
			Help:      "Number of jobs reset after being stuck in publishing",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "relay_publish_latency_seconds",
			Help:      "Latency of job publishes",
			Buckets:   prometheus.DefBuckets,
		}),
		jobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "worker_jobs_succeeded_total",
			Help:      "Number of job runs that succeeded",
		}, []string{LabelJobName}),
		jobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "worker_jobs_retried_total",
			Help:      "Number of failed job runs scheduled for another attempt",
		}, []string{LabelJobName}),
		jobsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "worker_jobs_abandoned_total",
			Help:      "Number of jobs abandoned after exhausting their attempts",
		}, []string{LabelJobName}),
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reminders_scheduled_total",
			Help:      "Number of reminders submitted to the queue",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reminders_duplicate_total",
			Help:      "Number of scheduling requests suppressed by the scheduling claim",
		}),
		parseFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reminders_parse_failed_total",
			Help:      "Number of scheduling requests with an unparseable due time",
		}),
		notificationSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_sent_total",
			Help:      "Number of reminder emails accepted by the transport",
		}, []string{LabelPath}),
		notificationFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_failed_total",
			Help:      "Number of reminder email sends that failed",
		}, []string{LabelPath}),
		sweepFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sweep_overdue_found_total",
			Help:      "Number of overdue unnotified tasks found by the sweeper",
		}),
	}
	reg.MustRegister(m.claimed, m.published, m.publishFailed, m.reclaimed, m.publishLatency,
		m.jobsSucceeded, m.jobsRetried, m.jobsAbandoned,
		m.scheduled, m.duplicates, m.parseFailed, m.notificationSent, m.notificationFailed, m.sweepFound)
	return m
}

func (m *PromMetrics) JobsClaimed(n int) {
	m.claimed.Add(float64(n))
}
func (m *PromMetrics) JobPublished() {
	m.published.Inc()
}
func (m *PromMetrics) JobPublishFailed() {
	m.publishFailed.Inc()
}
func (m *PromMetrics) JobsReclaimed(n int) {
	m.reclaimed.Add(float64(n))
}
func (m *PromMetrics) PublishLatency(d time.Duration) {
	m.publishLatency.Observe(d.Seconds())
}
func (m *PromMetrics) JobSucceeded(name string) {
	m.jobsSucceeded.WithLabelValues(name).Inc()
}
func (m *PromMetrics) JobRetried(name string) {
	m.jobsRetried.WithLabelValues(name).Inc()
}
func (m *PromMetrics) JobAbandoned(name string) {
	m.jobsAbandoned.WithLabelValues(name).Inc()
}
func (m *PromMetrics) ReminderScheduled() {
	m.scheduled.Inc()
}
func (m *PromMetrics) ReminderDuplicate() {
	m.duplicates.Inc()
}
func (m *PromMetrics) ReminderParseFailed() {
	m.parseFailed.Inc()
}
func (m *PromMetrics) NotificationSent(path string) {
	m.notificationSent.WithLabelValues(path).Inc()
}
func (m *PromMetrics) NotificationFailed(path string) {
	m.notificationFailed.WithLabelValues(path).Inc()
}
func (m *PromMetrics) SweepFound(n int) {
	m.sweepFound.Add(float64(n))
}
