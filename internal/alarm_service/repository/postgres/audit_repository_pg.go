package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

type PgAuditRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgAuditRepository(db DB, logger *slog.Logger) *PgAuditRepository {
	return &PgAuditRepository{db: db, logger: logger.With("component", "audit_repository_pg")}
}

var _ domain.AuditRepository = (*PgAuditRepository)(nil)

// Append inserts one delivery attempt and sets record.ID from the generated key.
func (r *PgAuditRepository) Append(ctx context.Context, record *domain.AuditRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO sms_audit (alarm_id, user_id, phone_number, alarm_description, status, gateway_status, api_response, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING audit_id`

	err := r.db.QueryRow(ctx, query,
		record.JobID, record.RecipientID, record.PhoneNumber, record.Description,
		string(record.Status), record.GatewayStatus, record.Response, record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			err = fmt.Errorf("recipient %d does not exist: %w", record.RecipientID, err)
		}
		r.logger.ErrorContext(ctx, "Error inserting audit record", "error", err, "job_id", record.JobID, "recipient_id", record.RecipientID)
		return fmt.Errorf("inserting audit record for job %s: %w", record.JobID, err)
	}
	return nil
}

// ListByJob returns every attempt recorded for a job in insertion order.
func (r *PgAuditRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.AuditRecord, error) {
	query := `SELECT audit_id, alarm_id, user_id, phone_number, alarm_description, status, gateway_status, api_response, created_at
FROM sms_audit
WHERE alarm_id = $1
ORDER BY audit_id`

	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying audit records", "error", err, "job_id", jobID)
		return nil, fmt.Errorf("querying audit records for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.RecipientID, &rec.PhoneNumber, &rec.Description,
			&status, &rec.GatewayStatus, &rec.Response, &rec.CreatedAt); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning audit row", "error", err, "job_id", jobID)
			return nil, fmt.Errorf("scanning audit record for job %s: %w", jobID, err)
		}
		rec.Status = domain.DeliveryStatus(status)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records for job %s: %w", jobID, err)
	}
	return records, nil
}
