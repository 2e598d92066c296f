package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarm_dispatch",
			Name:      "jobs_processed_total",
			Help:      "Total alarm jobs finalized by the dispatcher.",
		},
		[]string{"status"}, // "completed", "failed", "error_finalize"
	)

	jobProcessingDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alarm_dispatch",
			Name:      "job_processing_duration_seconds",
			Help:      "Duration of alarm job processing, resolution through finalization.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	deliveryAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarm_dispatch",
			Name:      "delivery_attempts_total",
			Help:      "Total per-recipient delivery attempts.",
		},
		[]string{"provider_name", "status"}, // status: "SUCCESS", "FAILED"
	)

	auditFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarm_dispatch",
			Name:      "audit_failures_total",
			Help:      "Delivery attempts whose audit record could not be written.",
		},
	)

	restrictedResolutionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarm_dispatch",
			Name:      "recipient_resolutions_total",
			Help:      "Recipient resolutions by restricted-day source.",
		},
		[]string{"source", "restricted"}, // source: "override", "calendar"
	)
)
