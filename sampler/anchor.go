package sampler

import (
	"time"

	timeutils "github.com/cepro/plantcontroller/time_utils"
)

// anchor fixes the sampling timeline at startup: a wall-clock time rounded up to the
// next whole second, paired with a monotonic reading at the same instant. Steps are
// counted on the monotonic clock, so wall-clock adjustments never shift or duplicate
// samples, while persisted timestamps are derived from the wall anchor.
type anchor struct {
	wall time.Time // whole-second wall time, monotonic reading stripped
	mono time.Time // same instant, monotonic reading retained
}

func newAnchor(now time.Time) anchor {
	wall := timeutils.CeilSecond(now)
	return anchor{
		wall: wall.Round(0),
		mono: now.Add(wall.Sub(now)), // Add keeps now's monotonic reading
	}
}

// stepAt returns the index of the last sampling step due at now, or -1 before the
// anchor instant.
func (a anchor) stepAt(now time.Time, period time.Duration) int64 {
	elapsed := now.Sub(a.mono)
	if elapsed < 0 {
		return -1
	}
	return int64(elapsed / period)
}

// timeOf returns the scheduled wall-clock instant of a step. This is the timestamp
// persisted with the sample, never the time the reads completed.
func (a anchor) timeOf(step int64, period time.Duration) time.Time {
	return a.wall.Add(time.Duration(step) * period)
}
