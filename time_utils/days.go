package timeutils

import "time"

// DayKey returns the calendar-day bucket of t in t's own location, formatted
// YYYY-MM-DD. Used to assign telemetry rows to their daily file.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// FloorDay returns midnight at the start of t's calendar day, in t's location.
func FloorDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
