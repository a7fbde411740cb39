// Package schedule resolves "what setpoint to send right now" for each plant: it
// merges the day-ahead base schedule pulled from Flux with operator override series,
// applying a staleness fail-safe to the base.
package schedule

import (
	"sort"
	"time"
)

// Breakpoint is one step of a series: the value applies from Time until the next
// breakpoint takes over.
type Breakpoint struct {
	Time  time.Time
	Value float64
}

// Series is an ordered sequence of breakpoints.
type Series struct {
	breakpoints []Breakpoint
}

// NewSeries creates a series from the given breakpoints, sorting them by time.
func NewSeries(breakpoints []Breakpoint) Series {
	sorted := make([]Breakpoint, len(breakpoints))
	copy(sorted, breakpoints)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	return Series{breakpoints: sorted}
}

// ValueAt returns the value of the latest breakpoint at or before t, along with that
// breakpoint's time. found is false when no breakpoint is in effect at t.
func (s Series) ValueAt(t time.Time) (value float64, at time.Time, found bool) {
	// index of the first breakpoint after t
	i := sort.Search(len(s.breakpoints), func(i int) bool {
		return s.breakpoints[i].Time.After(t)
	})
	if i == 0 {
		return 0, time.Time{}, false
	}
	bp := s.breakpoints[i-1]
	return bp.Value, bp.Time, true
}

// Empty reports whether the series has no breakpoints.
func (s Series) Empty() bool {
	return len(s.breakpoints) == 0
}
