package fluxclient

import "time"

// ScheduleStep is one breakpoint of a dispatch schedule: the setpoints apply from
// Start until the next step takes over.
type ScheduleStep struct {
	Start time.Time `json:"start"`
	PKw   float64   `json:"p_kw"`
	QKvar float64   `json:"q_kvar"`
}

// Schedule is the day-ahead dispatch schedule for one asset, as served by Flux.
// ReceivedTime is stamped locally when the schedule is pulled and is used for
// staleness decisions.
type Schedule struct {
	Steps        []ScheduleStep `json:"steps"`
	ReceivedTime time.Time      `json:"-"`
}

// Reading is a single metric sample sent to Flux.
type Reading struct {
	SeriesID  string    `json:"series_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
