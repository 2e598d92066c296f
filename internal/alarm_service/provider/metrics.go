package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sms_gateway_request_duration_seconds",
			Help:    "Histogram of SMS gateway request latencies.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider_name"},
	)

	gatewayRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_gateway_requests_total",
			Help: "Total SMS gateway requests by outcome.",
		},
		[]string{"provider_name", "outcome"}, // "success", "rejected", "http_error", "error"
	)
)
