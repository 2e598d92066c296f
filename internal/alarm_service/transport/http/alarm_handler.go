package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// DispatchTrigger asks the background worker to drain the queue.
type DispatchTrigger interface {
	Trigger()
}

type AlarmHandler struct {
	queue    domain.JobQueue
	audit    domain.AuditRepository
	trigger  DispatchTrigger
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAlarmHandler(queue domain.JobQueue, audit domain.AuditRepository, trigger DispatchTrigger, logger *slog.Logger, validate *validator.Validate) *AlarmHandler {
	return &AlarmHandler{
		queue:    queue,
		audit:    audit,
		trigger:  trigger,
		logger:   logger.With("component", "alarm_handler"),
		validate: validate,
	}
}

func (h *AlarmHandler) RegisterRoutes(r chi.Router) {
	r.Post("/alarms", h.EnqueueAlarm)
	r.Get("/alarms", h.ListAlarms)
	r.Get("/alarms/{id}", h.GetAlarm)
	r.Get("/alarms/{id}/audit", h.GetAlarmAudit)
}

func (h *AlarmHandler) EnqueueAlarm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reqDTO EnqueueAlarmRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body for EnqueueAlarm", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Validation failed for EnqueueAlarm", "error", err)
		http.Error(w, fmt.Sprintf("Validation error: %s", err.Error()), http.StatusBadRequest)
		return
	}

	id, err := h.queue.Enqueue(ctx, reqDTO.Description, reqDTO.GroupID, reqDTO.RestrictedDay)
	if err != nil {
		h.writeQueueError(w, r, err, "EnqueueAlarm", "")
		return
	}
	h.logger.InfoContext(ctx, "Alarm enqueued via API", "job_id", id, "group_id", reqDTO.GroupID)
	if h.trigger != nil {
		h.trigger.Trigger()
	}

	writeJSON(w, h.logger, r, http.StatusAccepted, EnqueueAlarmResponseDTO{JobID: id, Status: domain.StatusPending})
}

func (h *AlarmHandler) ListAlarms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := domain.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, fmt.Sprintf("Unknown status %q", status), http.StatusBadRequest)
		return
	}

	jobs, err := h.queue.List(ctx, status)
	if err != nil {
		h.writeQueueError(w, r, err, "ListAlarms", "")
		return
	}

	res := ListAlarmsResponseDTO{Alarms: make([]AlarmJobDTO, 0, len(jobs)), Total: len(jobs)}
	for _, j := range jobs {
		res.Alarms = append(res.Alarms, toAlarmJobDTO(j))
	}
	writeJSON(w, h.logger, r, http.StatusOK, res)
}

func (h *AlarmHandler) GetAlarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.queue.Get(r.Context(), id)
	if err != nil {
		h.writeQueueError(w, r, err, "GetAlarm", id)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, toAlarmJobDTO(job))
}

func (h *AlarmHandler) GetAlarmAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.queue.Get(ctx, id); err != nil {
		h.writeQueueError(w, r, err, "GetAlarmAudit", id)
		return
	}

	records, err := h.audit.ListByJob(ctx, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list audit records", "job_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	res := AuditResponseDTO{JobID: id, Records: make([]AuditRecordDTO, 0, len(records))}
	for _, rec := range records {
		res.Records = append(res.Records, toAuditRecordDTO(rec))
	}
	writeJSON(w, h.logger, r, http.StatusOK, res)
}

// writeQueueError maps queue errors to HTTP status codes.
func (h *AlarmHandler) writeQueueError(w http.ResponseWriter, r *http.Request, err error, operation, jobID string) {
	logEntry := h.logger.With("operation", operation, "job_id", jobID, "error", err)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logEntry.WarnContext(r.Context(), "Alarm not found")
		http.Error(w, "Alarm not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidJob):
		logEntry.WarnContext(r.Context(), "Invalid alarm")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrLockContention):
		logEntry.WarnContext(r.Context(), "Queue busy")
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Queue busy, retry later", http.StatusServiceUnavailable)
	default:
		logEntry.ErrorContext(r.Context(), "Unhandled queue error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorContext(r.Context(), "Failed to encode response", "path", r.URL.Path, "error", err)
	}
}
