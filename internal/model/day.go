package model

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the wire and column format for booking dates.
const DayLayout = "2006-01-02"

// Day returns midnight UTC of the calendar day t falls on in its own
// location. Booking dates are compared at day granularity, so every date
// that crosses a package boundary is normalized with Day first.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a normalized day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(t time.Time) string { return Day(t).Format(DayLayout) }

var danishMonths = [...]string{
	"januar", "februar", "marts", "april", "maj", "juni",
	"juli", "august", "september", "oktober", "november", "december",
}

// FormatDanishDate renders a day the way customer messages show it,
// e.g. "27. december 2025".
func FormatDanishDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	y, m, d := t.Date()
	return fmt.Sprintf("%d. %s %d", d, danishMonths[m-1], y)
}
