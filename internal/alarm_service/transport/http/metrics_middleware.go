package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarm_api",
			Name:      "http_requests_total",
			Help:      "Total number of alarm API requests by operation.",
		},
		[]string{"operation", "method", "status_code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "alarm_api",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of alarm API requests by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	rejectedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarm_api",
			Name:      "rejected_requests_total",
			Help:      "Alarm API requests turned away, by operation and reason.",
		},
		[]string{"operation", "reason"},
	)
)

// routeOperations names each route after what it does to the alarm queue.
var routeOperations = map[string]string{
	http.MethodPost + " /api/v1/alarms":           "enqueue_alarm",
	http.MethodGet + " /api/v1/alarms":            "list_alarms",
	http.MethodGet + " /api/v1/alarms/{id}":       "get_alarm",
	http.MethodGet + " /api/v1/alarms/{id}/audit": "get_alarm_audit",
	http.MethodGet + " /healthz":                  "health",
	http.MethodGet + " /metrics":                  "metrics",
}

func operationFor(method, pattern string) string {
	if op, ok := routeOperations[method+" "+pattern]; ok {
		return op
	}
	return "unknown"
}

// rejectReason classifies the statuses the alarm handlers answer with when
// they do not serve a request. Other statuses are not rejections.
func rejectReason(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "unknown_alarm"
	case http.StatusServiceUnavailable:
		return "queue_busy"
	}
	return ""
}

// PrometheusMetricsMiddleware records request counts and latencies per alarm
// API operation, and counts rejected requests by reason.
func PrometheusMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			pattern = rctx.RoutePattern()
		}
		operation := operationFor(r.Method, pattern)
		statusCode := ww.Status()
		if statusCode == 0 {
			statusCode = http.StatusOK
		}

		httpRequestDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(operation, r.Method, strconv.Itoa(statusCode)).Inc()
		if reason := rejectReason(statusCode); reason != "" {
			rejectedRequestsTotal.WithLabelValues(operation, reason).Inc()
		}
	})
}
