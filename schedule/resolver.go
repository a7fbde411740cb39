package schedule

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/plantcontroller/fluxclient"
	"github.com/cepro/plantcontroller/telemetry"
)

// Override is an operator-supplied series for one (plant, signal) pair. It only
// takes part in resolution while Enabled is set.
type Override struct {
	Series  Series
	Enabled bool
}

type overrideKey struct {
	plant  telemetry.PlantID
	signal telemetry.Signal
}

// Resolver merges base schedules with overrides and answers point-in-time setpoint
// queries. It carries its own lock rather than living in the shared runtime state:
// schedules are bulky and only the dispatch loops and the command engines touch them.
type Resolver struct {
	staleness time.Duration

	mu        sync.Mutex
	base      map[telemetry.PlantID]baseSchedule
	overrides map[overrideKey]Override

	logger *slog.Logger
}

type baseSchedule struct {
	p Series
	q Series
}

// NewResolver creates a resolver whose base schedules go stale after the given window.
func NewResolver(staleness time.Duration) *Resolver {
	return &Resolver{
		staleness: staleness,
		base:      map[telemetry.PlantID]baseSchedule{},
		overrides: map[overrideKey]Override{},
		logger:    slog.Default(),
	}
}

// SetBase replaces the base schedule for one plant with a freshly pulled one.
func (r *Resolver) SetBase(plant telemetry.PlantID, schedule fluxclient.Schedule) {
	pBreaks := make([]Breakpoint, 0, len(schedule.Steps))
	qBreaks := make([]Breakpoint, 0, len(schedule.Steps))
	for _, step := range schedule.Steps {
		pBreaks = append(pBreaks, Breakpoint{Time: step.Start, Value: step.PKw})
		qBreaks = append(qBreaks, Breakpoint{Time: step.Start, Value: step.QKvar})
	}

	r.mu.Lock()
	r.base[plant] = baseSchedule{p: NewSeries(pBreaks), q: NewSeries(qBreaks)}
	r.mu.Unlock()

	r.logger.Info("Updated base schedule", "plant", plant, "steps", len(schedule.Steps))
}

// SetOverride installs (or replaces) the override series for one plant and signal.
func (r *Resolver) SetOverride(plant telemetry.PlantID, signal telemetry.Signal, override Override) {
	r.mu.Lock()
	r.overrides[overrideKey{plant, signal}] = override
	r.mu.Unlock()
}

// SetOverrideEnabled flips the merge-enabled flag on an existing override. It is a
// no-op when no override series has been installed for the pair.
func (r *Resolver) SetOverrideEnabled(plant telemetry.PlantID, signal telemetry.Signal, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	override, ok := r.overrides[overrideKey{plant, signal}]
	if !ok {
		return
	}
	override.Enabled = enabled
	r.overrides[overrideKey{plant, signal}] = override
}

// EffectiveAt resolves the effective (P, Q) setpoint for the plant at time t.
func (r *Resolver) EffectiveAt(plant telemetry.PlantID, t time.Time) (pKw, qKvar float64) {
	r.mu.Lock()
	base := r.base[plant]
	pOverride := r.overrides[overrideKey{plant, telemetry.SignalP}]
	qOverride := r.overrides[overrideKey{plant, telemetry.SignalQ}]
	r.mu.Unlock()

	pKw = r.resolveSignal(base.p, pOverride, t)
	qKvar = r.resolveSignal(base.q, qOverride, t)
	return pKw, qKvar
}

// resolveSignal applies the merge rules for one signal: an enabled override that has
// a breakpoint in effect wins outright; otherwise the base value is used, forced to
// zero when its selected breakpoint has gone stale.
func (r *Resolver) resolveSignal(base Series, override Override, t time.Time) float64 {
	if override.Enabled {
		if value, _, found := override.Series.ValueAt(t); found {
			return value
		}
	}

	value, at, found := base.ValueAt(t)
	if !found {
		return 0
	}
	if t.Sub(at) > r.staleness {
		// fail-safe: a breakpoint this old means the upstream pull has broken down
		return 0
	}
	return value
}
