// Package metrics exposes Prometheus collectors for jobs, locks and track resolution.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jellysync"

var (
	registerOnce sync.Once

	jobStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_started_total",
		Help:      "Total number of job runs that acquired their lock",
	}, []string{"job"})
	jobSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_skipped_total",
		Help:      "Total number of job runs skipped because another instance held the lock",
	}, []string{"job"})
	jobCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_completed_total",
		Help:      "Total number of job runs that processed their whole batch",
	}, []string{"job"})
	jobAborted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_aborted_total",
		Help:      "Total number of job runs aborted by a batch-fatal failure",
	}, []string{"job"})
	entityFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_entity_failures_total",
		Help:      "Total number of per-entity failures recorded by jobs",
	}, []string{"job"})
	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Histogram of job run durations in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"job"})
	jobProgress = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "job_progress_percent",
		Help:      "Progress of the current or last run of each job",
	}, []string{"job"})

	lockAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_attempts_total",
		Help:      "Lock acquisition attempts by outcome (acquired, held, error)",
	}, []string{"lock", "outcome"})

	resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "track_resolutions_total",
		Help:      "Track identity resolutions by method, or none",
	}, []string{"method"})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(jobStarted, jobSkipped, jobCompleted, jobAborted, entityFailed,
			jobDuration, jobProgress, lockAttempts, resolutions)
	})
}

// Job lifecycle helpers
func IncJobStarted(job string)   { jobStarted.WithLabelValues(job).Inc() }
func IncJobSkipped(job string)   { jobSkipped.WithLabelValues(job).Inc() }
func IncJobCompleted(job string) { jobCompleted.WithLabelValues(job).Inc() }
func IncJobAborted(job string)   { jobAborted.WithLabelValues(job).Inc() }
func IncEntityFailed(job string) { entityFailed.WithLabelValues(job).Inc() }
func SetJobProgress(job string, percent float64) {
	jobProgress.WithLabelValues(job).Set(percent)
}
func ObserveJobDuration(job string, d time.Duration) {
	jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// IncLockAttempt records a try-acquire outcome: "acquired", "held" or "error".
func IncLockAttempt(lock, outcome string) { lockAttempts.WithLabelValues(lock, outcome).Inc() }

// IncResolution records how a track was resolved; method is "none" when nothing matched.
func IncResolution(method string) { resolutions.WithLabelValues(method).Inc() }
