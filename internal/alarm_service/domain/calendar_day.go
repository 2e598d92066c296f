package domain

import "time"

// CalendarDay is one row of the precomputed date dimension.
type CalendarDay struct {
	Date                time.Time `json:"date"`
	DayOfWeek           int       `json:"day_of_week"` // 0 = Sunday
	DayName             string    `json:"day_name"`
	HebrewDate          string    `json:"hebrew_date"`
	HolidayName         string    `json:"holiday_name,omitempty"`
	IsHoliday           bool      `json:"is_holiday"`
	IsSabbaticalHoliday bool      `json:"is_sabbatical_holiday"`
	IsRestricted        bool      `json:"is_restricted"`
}

// DateKey returns the YYYY-MM-DD key of t in its own location.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
