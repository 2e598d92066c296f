package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// RestrictedDayOracle answers the restricted-day question for a date.
type RestrictedDayOracle interface {
	IsRestrictedDay(ctx context.Context, date time.Time) bool
}

// Resolver turns a group and an optional override into the recipients to notify.
type Resolver interface {
	Resolve(ctx context.Context, groupID int, override *bool) ([]domain.Recipient, error)
}

// RecipientResolver asks the directory for a group's SMS-enabled members,
// narrowed to restricted-day workers on restricted days.
type RecipientResolver struct {
	directory domain.RecipientDirectory
	oracle    RestrictedDayOracle
	logger    *slog.Logger
	now       func() time.Time
}

func NewRecipientResolver(directory domain.RecipientDirectory, oracle RestrictedDayOracle, logger *slog.Logger) *RecipientResolver {
	return &RecipientResolver{
		directory: directory,
		oracle:    oracle,
		logger:    logger.With("component", "recipient_resolver"),
		now:       time.Now,
	}
}

// Resolve returns an empty slice, not an error, when nobody matches. A set
// override wins over the calendar.
func (r *RecipientResolver) Resolve(ctx context.Context, groupID int, override *bool) ([]domain.Recipient, error) {
	var restricted bool
	source := "calendar"
	if override != nil {
		restricted = *override
		source = "override"
	} else {
		restricted = r.oracle.IsRestrictedDay(ctx, r.now())
	}
	restrictedResolutionsCounter.WithLabelValues(source, strconv.FormatBool(restricted)).Inc()

	recipients, err := r.directory.GetRecipients(ctx, groupID, restricted)
	if err != nil {
		return nil, fmt.Errorf("get recipients for group %d: %w", groupID, err)
	}
	if recipients == nil {
		recipients = []domain.Recipient{}
	}

	r.logger.InfoContext(ctx, "Resolved recipients", "group_id", groupID, "restricted_day", restricted,
		"restricted_source", source, "count", len(recipients))
	return recipients, nil
}
