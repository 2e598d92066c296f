package http

import (
	"time"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// EnqueueAlarmRequestDTO is the body of POST /api/v1/alarms.
type EnqueueAlarmRequestDTO struct {
	Description   string `json:"description" validate:"required,max=1000"`
	GroupID       int    `json:"group_id" validate:"required,min=1"`
	RestrictedDay *bool  `json:"restricted_day,omitempty"`
}

type EnqueueAlarmResponseDTO struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

type AlarmJobDTO struct {
	ID            string           `json:"id"`
	Description   string           `json:"description"`
	GroupID       int              `json:"group_id"`
	RestrictedDay *bool            `json:"restricted_day"`
	Status        domain.JobStatus `json:"status"`
	Error         *string          `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ClaimedAt     *time.Time       `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	FailedAt      *time.Time       `json:"failed_at,omitempty"`
}

type ListAlarmsResponseDTO struct {
	Alarms []AlarmJobDTO `json:"alarms"`
	Total  int           `json:"total"`
}

type AuditRecordDTO struct {
	ID            int64                 `json:"id"`
	RecipientID   int                   `json:"recipient_id"`
	PhoneNumber   string                `json:"phone_number"`
	Status        domain.DeliveryStatus `json:"status"`
	GatewayStatus string                `json:"gateway_status,omitempty"`
	Response      string                `json:"response,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

type AuditResponseDTO struct {
	JobID   string           `json:"job_id"`
	Records []AuditRecordDTO `json:"records"`
}

func toAlarmJobDTO(j *domain.AlarmJob) AlarmJobDTO {
	return AlarmJobDTO{
		ID:            j.ID,
		Description:   j.Description,
		GroupID:       j.GroupID,
		RestrictedDay: j.RestrictedDay,
		Status:        j.Status,
		Error:         j.Error,
		CreatedAt:     j.CreatedAt,
		ClaimedAt:     j.ClaimedAt,
		CompletedAt:   j.CompletedAt,
		FailedAt:      j.FailedAt,
	}
}

func toAuditRecordDTO(r *domain.AuditRecord) AuditRecordDTO {
	return AuditRecordDTO{
		ID:            r.ID,
		RecipientID:   r.RecipientID,
		PhoneNumber:   r.PhoneNumber,
		Status:        r.Status,
		GatewayStatus: r.GatewayStatus,
		Response:      r.Response,
		CreatedAt:     r.CreatedAt,
	}
}
