package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueuedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarm_queue",
			Name:      "jobs_enqueued_total",
			Help:      "Total alarm jobs written to the queue.",
		},
	)

	jobTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarm_queue",
			Name:      "job_transitions_total",
			Help:      "Total job status transitions written to the queue.",
		},
		[]string{"to_status"},
	)

	corruptRecordsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarm_queue",
			Name:      "corrupt_records_total",
			Help:      "Queue records skipped because they could not be decoded.",
		},
	)

	lockContentionCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarm_queue",
			Name:      "lock_contention_total",
			Help:      "Queue operations aborted because the lock was not acquired in time.",
		},
	)

	lockWaitDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alarm_queue",
			Name:      "lock_wait_duration_seconds",
			Help:      "Time spent waiting for the queue lock.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func newLockWaitTimer() *prometheus.Timer {
	return prometheus.NewTimer(lockWaitDurationHist)
}
