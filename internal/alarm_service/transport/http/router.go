package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// RouterConfig configures the HTTP API.
type RouterConfig struct {
	// JWTSecret enables bearer token auth on /api/v1 when non-empty.
	JWTSecret string `mapstructure:"JWT_SECRET"`
}

// NewRouter wires the alarm API, health check and metrics endpoint.
func NewRouter(cfg RouterConfig, queue domain.JobQueue, audit domain.AuditRepository, trigger DispatchTrigger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	alarmHandler := NewAlarmHandler(queue, audit, trigger, logger, validator.New())
	r.Route("/api/v1", func(v1 chi.Router) {
		// Inline so auth runs after routing and metrics see the route pattern.
		if cfg.JWTSecret != "" {
			v1 = v1.With(AuthMiddleware([]byte(cfg.JWTSecret), logger))
		} else {
			logger.Warn("JWT_SECRET not set, alarm API is unauthenticated")
		}
		alarmHandler.RegisterRoutes(v1)
	})
	return r
}
