package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

var calendarColumns = []string{
	"date", "day_of_week", "day_name", "hebrew_date", "holiday_name",
	"is_holiday", "is_sabbatical_holiday", "is_restricted",
}

type PgCalendarRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgCalendarRepository(db DB, logger *slog.Logger) *PgCalendarRepository {
	return &PgCalendarRepository{db: db, logger: logger.With("component", "calendar_repository_pg")}
}

var _ domain.CalendarRepository = (*PgCalendarRepository)(nil)

func (r *PgCalendarRepository) GetDay(ctx context.Context, date time.Time) (*domain.CalendarDay, error) {
	query := `SELECT date, day_of_week, day_name, hebrew_date, holiday_name, is_holiday, is_sabbatical_holiday, is_restricted
FROM date_dimension WHERE date = $1`

	var day domain.CalendarDay
	var holiday *string
	err := r.db.QueryRow(ctx, query, date).Scan(
		&day.Date, &day.DayOfWeek, &day.DayName, &day.HebrewDate, &holiday,
		&day.IsHoliday, &day.IsSabbaticalHoliday, &day.IsRestricted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDayNotFound, domain.DateKey(date))
		}
		return nil, fmt.Errorf("querying calendar day %s: %w", domain.DateKey(date), err)
	}
	if holiday != nil {
		day.HolidayName = *holiday
	}
	return &day, nil
}

func (r *PgCalendarRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM date_dimension`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting calendar days: %w", err)
	}
	return count, nil
}

// InsertDays bulk loads rows with COPY.
func (r *PgCalendarRepository) InsertDays(ctx context.Context, days []domain.CalendarDay) (int64, error) {
	if len(days) == 0 {
		return 0, nil
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"date_dimension"}, calendarColumns,
		pgx.CopyFromSlice(len(days), func(i int) ([]any, error) {
			d := days[i]
			var holiday *string
			if d.HolidayName != "" {
				holiday = &d.HolidayName
			}
			return []any{d.Date, d.DayOfWeek, d.DayName, d.HebrewDate, holiday,
				d.IsHoliday, d.IsSabbaticalHoliday, d.IsRestricted}, nil
		}),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error copying calendar days", "error", err, "rows", len(days))
		return 0, fmt.Errorf("copying %d calendar days: %w", len(days), err)
	}
	return n, nil
}
