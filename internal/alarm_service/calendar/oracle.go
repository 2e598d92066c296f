package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// MissingDayPolicy decides the answer when the calendar has no usable entry.
type MissingDayPolicy string

const (
	PolicyOpen   MissingDayPolicy = "open"   // treat the day as not restricted
	PolicyClosed MissingDayPolicy = "closed" // treat the day as restricted
)

// ParsePolicy accepts "open" or "closed"; an empty value means open.
func ParsePolicy(s string) (MissingDayPolicy, error) {
	switch MissingDayPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyOpen:
		return PolicyOpen, nil
	case PolicyClosed:
		return PolicyClosed, nil
	}
	return "", fmt.Errorf("unknown calendar missing-day policy %q (want open or closed)", s)
}

// Config holds configuration specific to the restricted-day oracle.
type Config struct {
	MissingDayPolicy string `mapstructure:"CALENDAR_MISSING_DAY_POLICY"`
	Timezone         string `mapstructure:"CALENDAR_TIMEZONE"`
}

// LoadLocation resolves the calendar timezone. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load calendar timezone %q: %w", name, err)
	}
	return loc, nil
}

// Oracle answers whether a date is a restricted day using the date dimension table.
type Oracle struct {
	repo     domain.CalendarRepository
	policy   MissingDayPolicy
	location *time.Location
	logger   *slog.Logger
}

// NewOracle builds an Oracle. An empty timezone means UTC.
func NewOracle(repo domain.CalendarRepository, cfg Config, logger *slog.Logger) (*Oracle, error) {
	policy, err := ParsePolicy(cfg.MissingDayPolicy)
	if err != nil {
		return nil, err
	}
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Oracle{
		repo:     repo,
		policy:   policy,
		location: loc,
		logger:   logger.With("component", "calendar_oracle"),
	}, nil
}

// Location returns the zone in which dates are evaluated.
func (o *Oracle) Location() *time.Location {
	return o.location
}

// IsRestrictedDay reports whether date, taken in the oracle's location, is a
// restricted day. Lookup failures never propagate: they are logged and
// answered by the configured missing-day policy.
func (o *Oracle) IsRestrictedDay(ctx context.Context, date time.Time) bool {
	key := DayStart(date.In(o.location))

	day, err := o.repo.GetDay(ctx, key)
	if err != nil {
		reason := "error"
		if errors.Is(err, domain.ErrDayNotFound) {
			reason = "missing"
		}
		lookupFallbacksCounter.WithLabelValues(reason).Inc()
		restricted := o.policy == PolicyClosed
		o.logger.WarnContext(ctx, "Calendar lookup failed, applying missing-day policy",
			"date", domain.DateKey(key), "reason", reason, "policy", o.policy, "restricted", restricted, "error", err)
		return restricted
	}

	if day.IsRestricted {
		restrictedLookupsCounter.WithLabelValues("restricted").Inc()
	} else {
		restrictedLookupsCounter.WithLabelValues("open").Inc()
	}
	o.logger.DebugContext(ctx, "Calendar lookup", "date", domain.DateKey(key), "restricted", day.IsRestricted, "holiday", day.HolidayName)
	return day.IsRestricted
}
