package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

const seedBatchSize = 5000

// Seeder fills an empty date dimension table.
type Seeder struct {
	repo   domain.CalendarRepository
	logger *slog.Logger
}

func NewSeeder(repo domain.CalendarRepository, logger *slog.Logger) *Seeder {
	return &Seeder{repo: repo, logger: logger.With("component", "calendar_seeder")}
}

// SeedIfEmpty writes rows from the date of from through the same date years
// later. A table that already holds rows is left untouched and 0 is returned.
func (s *Seeder) SeedIfEmpty(ctx context.Context, from time.Time, years int) (int64, error) {
	if years <= 0 {
		return 0, fmt.Errorf("years must be positive, got %d", years)
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count calendar days: %w", err)
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "Date dimension already populated, skipping", "rows", count)
		return 0, nil
	}

	start := DayStart(from)
	end := start.AddDate(years, 0, 0)
	days := BuildDimension(start, end)

	sabbatical := 0
	for _, d := range days {
		if d.IsSabbaticalHoliday {
			sabbatical++
		}
	}
	s.logger.InfoContext(ctx, "Seeding date dimension",
		"from", domain.DateKey(start), "to", domain.DateKey(end), "days", len(days), "sabbatical_holidays", sabbatical)

	var written int64
	for i := 0; i < len(days); i += seedBatchSize {
		j := min(i+seedBatchSize, len(days))
		n, err := s.repo.InsertDays(ctx, days[i:j])
		if err != nil {
			return written, fmt.Errorf("insert calendar days %s..%s: %w",
				domain.DateKey(days[i].Date), domain.DateKey(days[j-1].Date), err)
		}
		written += n
		seededDaysCounter.Add(float64(n))
	}

	s.logger.InfoContext(ctx, "Date dimension seeded", "rows", written)
	return written, nil
}
