package domain

import "time"

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// AuditRecord is the immutable log entry for one delivery attempt to one recipient.
type AuditRecord struct {
	ID            int64          `json:"id,omitempty"`
	JobID         string         `json:"job_id"`
	RecipientID   int            `json:"recipient_id"`
	PhoneNumber   string         `json:"phone_number"`
	Description   string         `json:"description"`
	Status        DeliveryStatus `json:"status"`
	GatewayStatus string         `json:"gateway_status"`
	Response      string         `json:"response"`
	CreatedAt     time.Time      `json:"created_at"`
}
