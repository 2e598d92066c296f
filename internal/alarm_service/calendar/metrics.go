package calendar

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	restrictedLookupsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_restricted_lookups_total",
			Help: "Restricted-day lookups by result.",
		},
		[]string{"result"}, // "restricted", "open"
	)

	lookupFallbacksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_lookup_fallbacks_total",
			Help: "Restricted-day lookups answered by the missing-day policy.",
		},
		[]string{"reason"}, // "missing", "error"
	)

	seededDaysCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calendar_seeded_days_total",
			Help: "Date dimension rows written by the seeder.",
		},
	)
)
