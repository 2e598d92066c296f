package calendar

import (
	"fmt"

	"github.com/hebcal/hdate"
)

type monthDay struct {
	month hdate.HMonth
	day   int
}

// fixedHolidays maps a Hebrew (month, day) to the observance that always
// falls on it. Adar observances and Hanukkah depend on the year and are
// handled in HolidayName.
var fixedHolidays = map[monthDay]string{
	{hdate.Nisan, 15}: "Passover (1st day)",
	{hdate.Nisan, 16}: "Passover (2nd day)",
	{hdate.Nisan, 21}: "Passover (7th day)",
	{hdate.Nisan, 22}: "Passover (8th day)",
	{hdate.Nisan, 27}: "Yom HaShoah",

	{hdate.Iyyar, 4}:  "Yom HaZikaron",
	{hdate.Iyyar, 5}:  "Yom HaAtzmaut",
	{hdate.Iyyar, 28}: "Yom Yerushalayim",

	{hdate.Sivan, 6}: "Shavuot",
	{hdate.Sivan, 7}: "Shavuot (2nd day)",

	{hdate.Tamuz, 17}: "Fast of Tammuz 17",
	{hdate.Av, 9}:     "Tisha B'Av",

	{hdate.Tishrei, 1}:  "Rosh Hashanah",
	{hdate.Tishrei, 2}:  "Rosh Hashanah (2nd day)",
	{hdate.Tishrei, 3}:  "Fast of Gedaliah",
	{hdate.Tishrei, 10}: "Yom Kippur",
	{hdate.Tishrei, 15}: "Sukkot",
	{hdate.Tishrei, 22}: "Shemini Atzeret",
	{hdate.Tishrei, 23}: "Simchat Torah",

	{hdate.Tevet, 10}: "Asara B'Tevet",
	{hdate.Shvat, 15}: "Tu BiShvat",
}

var adarHolidays = map[int]string{
	13: "Fast of Esther",
	14: "Purim",
	15: "Shushan Purim",
}

// sabbaticalHolidays are the festivals on which work is restricted as on the
// weekly rest day.
var sabbaticalHolidays = map[string]bool{
	"Rosh Hashanah":           true,
	"Rosh Hashanah (2nd day)": true,
	"Yom Kippur":              true,
	"Sukkot":                  true,
	"Shemini Atzeret":         true,
	"Simchat Torah":           true,
	"Passover (1st day)":      true,
	"Passover (2nd day)":      true,
	"Passover (7th day)":      true,
	"Passover (8th day)":      true,
	"Shavuot":                 true,
	"Shavuot (2nd day)":       true,
}

// IsSabbatical reports whether the named holiday restricts work.
func IsSabbatical(name string) bool {
	return sabbaticalHolidays[name]
}

// HolidayName returns the observance that falls on hd, or "" for an ordinary day.
func HolidayName(hd hdate.HDate) string {
	if name, ok := fixedHolidays[monthDay{hd.Month(), hd.Day()}]; ok {
		return name
	}

	if hd.Month() == purimMonth(hd.Year()) {
		if name, ok := adarHolidays[hd.Day()]; ok {
			return name
		}
	}

	if n := hanukkahDay(hd); n > 0 {
		return fmt.Sprintf("Hanukkah (day %d)", n)
	}
	return ""
}

// purimMonth is Adar II in a leap year and Adar otherwise.
func purimMonth(year int) hdate.HMonth {
	if hdate.IsLeapYear(year) {
		return hdate.Adar2
	}
	return hdate.Adar1
}

// hanukkahDay returns 1..8 when hd is a day of Hanukkah, 0 otherwise. Counting
// from Kislev 25 covers both 29- and 30-day Kislev years.
func hanukkahDay(hd hdate.HDate) int {
	if hd.Month() != hdate.Kislev && hd.Month() != hdate.Tevet {
		return 0
	}
	first := hdate.New(hd.Year(), hdate.Kislev, 25)
	diff := hd.Abs() - first.Abs()
	if diff < 0 || diff > 7 {
		return 0
	}
	return int(diff) + 1
}
