// Package calendar holds the date-key and wall-clock helpers shared by the engine and its adapters.
// Dates are ISO "YYYY-MM-DD" strings used verbatim as map keys; times are 24-hour "HH:mm" strings.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// referenceDay anchors clock values so "HH:mm" strings can be compared with time arithmetic.
var referenceDay = time.Date(2000, time.January, 3, 0, 0, 0, 0, time.UTC)

// ParseDate parses a YYYY-MM-DD key in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats t as a date key.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseClock parses "HH:mm" (a trailing ":ss" is tolerated and ignored) onto the reference day.
// "24:00" is accepted as the end of the day.
func ParseClock(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}

	if minute < 0 || minute > 59 || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return time.Time{}, fmt.Errorf("time out of range: %q", s)
	}

	return referenceDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}

// FormatClock renders an anchored clock value back to "HH:mm".
func FormatClock(t time.Time) string {
	if t.Sub(referenceDay) == 24*time.Hour {
		return "24:00"
	}
	return t.Format(ClockLayout)
}

// NormalizeClock re-renders s as "HH:mm", dropping seconds the store may append.
func NormalizeClock(s string) (string, error) {
	t, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(t), nil
}

// CompareClock returns -1, 0 or 1 as a is before, equal to or after b.
func CompareClock(a, b string) (int, error) {
	ta, err := ParseClock(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseClock(b)
	if err != nil {
		return 0, err
	}
	return ta.Compare(tb), nil
}

// WeekdayIndex maps a Go weekday onto the template index, Monday=0 … Sunday=6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// TemplateIndexForDate is the only place a date key is mapped onto a weekly template entry.
func TemplateIndexForDate(date string) (int, error) {
	t, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return WeekdayIndex(t), nil
}

// FromStoreWeekday converts the storage convention (Sunday=0 … Saturday=6) to the template index.
func FromStoreWeekday(d int) int {
	return ((d % 7) + 6) % 7
}

// ToStoreWeekday converts a template index (Monday=0 … Sunday=6) to the storage convention.
func ToStoreWeekday(i int) int {
	return (i + 1) % 7
}

// DaysInRange lists every date key from start to end inclusive.
func DaysInRange(start, end string) ([]string, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", end, start)
	}

	days := make([]string, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, FormatDate(d))
	}
	return days, nil
}

// MonthWindow returns the first and last date keys of the month containing date.
func MonthWindow(date string) (start, end string, err error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", "", err
	}
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return FormatDate(first), FormatDate(last), nil
}

// AddDays shifts a date key by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, n)), nil
}
