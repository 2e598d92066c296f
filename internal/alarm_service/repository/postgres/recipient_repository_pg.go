package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

const recipientsBaseQuery = `SELECT u.user_id, u.user_name, u.phone_number, u.sms_enabled, u.works_restricted_days
FROM users u
JOIN group_members gm ON gm.user_id = u.user_id
WHERE gm.group_id = $1 AND u.sms_enabled = TRUE`

type PgRecipientRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgRecipientRepository(db DB, logger *slog.Logger) *PgRecipientRepository {
	return &PgRecipientRepository{db: db, logger: logger.With("component", "recipient_repository_pg")}
}

var _ domain.RecipientDirectory = (*PgRecipientRepository)(nil)

func (r *PgRecipientRepository) GetRecipients(ctx context.Context, groupID int, restrictedOnly bool) ([]domain.Recipient, error) {
	query := recipientsBaseQuery
	if restrictedOnly {
		query += " AND u.works_restricted_days = TRUE"
	}
	query += " ORDER BY u.user_id"

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying group recipients", "error", err, "group_id", groupID)
		return nil, fmt.Errorf("querying recipients for group %d: %w", groupID, err)
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.UserID, &rec.UserName, &rec.PhoneNumber, &rec.SMSEnabled, &rec.WorksRestrictedDays); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning recipient row", "error", err, "group_id", groupID)
			return nil, fmt.Errorf("scanning recipient for group %d: %w", groupID, err)
		}
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating recipient rows", "error", err, "group_id", groupID)
		return nil, fmt.Errorf("iterating recipients for group %d: %w", groupID, err)
	}

	r.logger.DebugContext(ctx, "Fetched group recipients", "group_id", groupID, "restricted_only", restrictedOnly, "count", len(recipients))
	return recipients, nil
}
