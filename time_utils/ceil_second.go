package timeutils

import "time"

// CeilSecond rounds t up to the next whole second. A time that is already on a whole
// second is returned unchanged.
func CeilSecond(t time.Time) time.Time {
	floored := t.Truncate(time.Second)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(time.Second)
}
