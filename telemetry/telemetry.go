package telemetry

import "time"

// PlantID identifies one of the two battery plants managed by this controller.
type PlantID string

const (
	PlantA PlantID = "a"
	PlantB PlantID = "b"
)

// AllPlants returns the fixed set of plants, in stable order.
func AllPlants() []PlantID {
	return []PlantID{PlantA, PlantB}
}

// ValidPlant reports whether the given ID names a real plant.
func ValidPlant(id PlantID) bool {
	return id == PlantA || id == PlantB
}

// Signal identifies one of the dispatched setpoint signals.
type Signal string

const (
	SignalP Signal = "p" // active power, kW
	SignalQ Signal = "q" // reactive power, kvar
)

// ValidSignal reports whether the given signal names a dispatched setpoint.
func ValidSignal(s Signal) bool {
	return s == SignalP || s == SignalQ
}

// TransportMode selects which transport endpoint generation is active for the fleet.
type TransportMode string

const (
	TransportLocal  TransportMode = "local"  // the in-process plant emulators
	TransportRemote TransportMode = "remote" // the real hardware
)

// TransitionState describes where a plant is in its start/stop lifecycle.
type TransitionState string

const (
	TransitionStarting TransitionState = "starting"
	TransitionRunning  TransitionState = "running"
	TransitionStopping TransitionState = "stopping"
	TransitionStopped  TransitionState = "stopped"
	TransitionUnknown  TransitionState = "unknown"
)

// Point names shared by the transport endpoints, the emulator register banks and the
// posting metrics. Each name maps to one configured modbus point per endpoint.
const (
	PointPSetpoint = "p_setpoint"
	PointQSetpoint = "q_setpoint"
	PointEnable    = "enable"
	PointPActual   = "p_actual"
	PointQActual   = "q_actual"
	PointSoc       = "soc"
	PointPoiP      = "poi_p"
	PointPoiQ      = "poi_q"
	PointPoiV      = "poi_v"
)

// RequiredPoints lists the point names every endpoint's point map must define.
func RequiredPoints() []string {
	return []string{
		PointPSetpoint,
		PointQSetpoint,
		PointEnable,
		PointPActual,
		PointQActual,
		PointSoc,
		PointPoiP,
		PointPoiQ,
		PointPoiV,
	}
}

// Sample holds one sampled telemetry row for a plant.
//
// Time is the scheduled step instant of the sampler, never the wall-clock time at
// which the reads actually completed.
type Sample struct {
	Time          time.Time
	PSetpointKw   float64
	PActualKw     float64
	QSetpointKvar float64
	QActualKvar   float64
	SocPu         float64
	PoiPKw        float64
	PoiQKvar      float64
	PoiVKv        float64
}

// Metrics returns the posting-queue view of the sample, keyed by metric name.
func (s Sample) Metrics() map[string]float64 {
	return map[string]float64{
		PointPSetpoint: s.PSetpointKw,
		PointQSetpoint: s.QSetpointKvar,
		PointPActual:   s.PActualKw,
		PointQActual:   s.QActualKvar,
		PointSoc:       s.SocPu,
		PointPoiP:      s.PoiPKw,
		PointPoiQ:      s.PoiQKvar,
		PointPoiV:      s.PoiVKv,
	}
}

// ObservedState is a cached snapshot of a plant's externally observable state, taken
// by the observed-state poller. It can be arbitrarily stale relative to a just-issued
// command; consumers must check the age rather than assume immediate consistency.
type ObservedState struct {
	Enabled             bool
	PActualKw           float64
	QActualKvar         float64
	CapturedAt          time.Time
	ConsecutiveFailures int
	LastError           string
}

// AgeAt returns how old the snapshot is at time t.
func (o ObservedState) AgeAt(t time.Time) time.Duration {
	return t.Sub(o.CapturedAt)
}

// StaleAt reports whether the snapshot must be treated as unknown at time t.
func (o ObservedState) StaleAt(t time.Time, threshold time.Duration) bool {
	return o.CapturedAt.IsZero() || o.AgeAt(t) > threshold
}
