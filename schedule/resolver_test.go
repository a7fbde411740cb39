package schedule

import (
	"testing"
	"time"

	"github.com/cepro/plantcontroller/fluxclient"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func baseSchedules() fluxclient.Schedule {
	return fluxclient.Schedule{Steps: []fluxclient.ScheduleStep{
		{Start: t0, PKw: 100, QKvar: -10},
		{Start: t0.Add(30 * time.Minute), PKw: 200, QKvar: -20},
		{Start: t0.Add(time.Hour), PKw: 300, QKvar: -30},
	}}
}

func TestEffectiveAtPicksLatestBreakpoint(t *testing.T) {
	r := NewResolver(24 * time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	p, q := r.EffectiveAt(telemetry.PlantA, t0.Add(45*time.Minute))
	assert.Equal(t, 200.0, p)
	assert.Equal(t, -20.0, q)

	// exactly on a breakpoint: that breakpoint is in effect
	p, _ = r.EffectiveAt(telemetry.PlantA, t0.Add(time.Hour))
	assert.Equal(t, 300.0, p)
}

func TestEffectiveAtBeforeFirstBreakpointIsZero(t *testing.T) {
	r := NewResolver(24 * time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	p, q := r.EffectiveAt(telemetry.PlantA, t0.Add(-time.Second))
	assert.Equal(t, 0.0, p)
	assert.Equal(t, 0.0, q)
}

func TestStaleBaseFailsSafeToZero(t *testing.T) {
	r := NewResolver(2 * time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	// the last breakpoint is at t0+1h; three hours later it is past the window
	p, q := r.EffectiveAt(telemetry.PlantA, t0.Add(4*time.Hour))
	assert.Equal(t, 0.0, p)
	assert.Equal(t, 0.0, q)

	// within the window the value holds
	p, _ = r.EffectiveAt(telemetry.PlantA, t0.Add(2*time.Hour))
	assert.Equal(t, 300.0, p)
}

func TestEnabledOverrideReplacesBase(t *testing.T) {
	r := NewResolver(24 * time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	r.SetOverride(telemetry.PlantA, telemetry.SignalP, Override{
		Series:  NewSeries([]Breakpoint{{Time: t0, Value: -50}}),
		Enabled: true,
	})

	p, q := r.EffectiveAt(telemetry.PlantA, t0.Add(45*time.Minute))
	assert.Equal(t, -50.0, p)
	assert.Equal(t, -20.0, q) // Q has no override and follows the base
}

func TestDisabledOverrideIsIgnored(t *testing.T) {
	r := NewResolver(24 * time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	r.SetOverride(telemetry.PlantA, telemetry.SignalP, Override{
		Series:  NewSeries([]Breakpoint{{Time: t0, Value: -50}}),
		Enabled: false,
	})

	p, _ := r.EffectiveAt(telemetry.PlantA, t0.Add(45*time.Minute))
	assert.Equal(t, 200.0, p)

	r.SetOverrideEnabled(telemetry.PlantA, telemetry.SignalP, true)
	p, _ = r.EffectiveAt(telemetry.PlantA, t0.Add(45*time.Minute))
	assert.Equal(t, -50.0, p)
}

func TestOverrideSuppliesSignalThroughStaleness(t *testing.T) {
	r := NewResolver(time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	r.SetOverride(telemetry.PlantA, telemetry.SignalP, Override{
		Series:  NewSeries([]Breakpoint{{Time: t0, Value: 42}}),
		Enabled: true,
	})

	// the base is long stale but the enabled override still supplies P
	p, q := r.EffectiveAt(telemetry.PlantA, t0.Add(10*time.Hour))
	assert.Equal(t, 42.0, p)
	assert.Equal(t, 0.0, q)
}

func TestOverrideWithoutBreakpointFallsBackToBase(t *testing.T) {
	r := NewResolver(24 * time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	// override only starts at t0+2h; before that the base still rules
	r.SetOverride(telemetry.PlantA, telemetry.SignalP, Override{
		Series:  NewSeries([]Breakpoint{{Time: t0.Add(2 * time.Hour), Value: 0}}),
		Enabled: true,
	})

	p, _ := r.EffectiveAt(telemetry.PlantA, t0.Add(45*time.Minute))
	assert.Equal(t, 200.0, p)
}

func TestPlantsResolveIndependently(t *testing.T) {
	r := NewResolver(24 * time.Hour)
	r.SetBase(telemetry.PlantA, baseSchedules())

	p, q := r.EffectiveAt(telemetry.PlantB, t0.Add(45*time.Minute))
	assert.Equal(t, 0.0, p)
	assert.Equal(t, 0.0, q)
}
