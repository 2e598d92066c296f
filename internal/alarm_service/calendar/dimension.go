package calendar

import (
	"fmt"
	"time"

	"github.com/hebcal/hdate"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// DayStart truncates t to midnight UTC of its calendar date in t's own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildDay computes the date dimension row for the calendar date of t.
func BuildDay(t time.Time) domain.CalendarDay {
	date := DayStart(t)
	hd := hdate.FromTime(date)
	holiday := HolidayName(hd)
	sabbatical := IsSabbatical(holiday)

	return domain.CalendarDay{
		Date:                date,
		DayOfWeek:           int(date.Weekday()),
		DayName:             date.Weekday().String(),
		HebrewDate:          fmt.Sprintf("%s %d, %d", hd.MonthName("en"), hd.Day(), hd.Year()),
		HolidayName:         holiday,
		IsHoliday:           holiday != "",
		IsSabbaticalHoliday: sabbatical,
		IsRestricted:        date.Weekday() == time.Saturday || sabbatical,
	}
}

// BuildDimension returns one row per day from start to end, both inclusive.
func BuildDimension(start, end time.Time) []domain.CalendarDay {
	first, last := DayStart(start), DayStart(end)
	if last.Before(first) {
		return nil
	}

	days := make([]domain.CalendarDay, 0, int(last.Sub(first).Hours()/24)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, BuildDay(d))
	}
	return days
}
