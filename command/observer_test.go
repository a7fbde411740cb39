package command

import (
	"errors"
	"testing"
	"time"

	"github.com/cepro/plantcontroller/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverPublishesSnapshot(t *testing.T) {
	f := newControlFixture(t, false)
	f.endpoints[telemetry.PlantA].set(telemetry.PointEnable, 1)
	f.endpoints[telemetry.PlantA].set(telemetry.PointPActual, 123)

	observer := NewObserver(f.store, f.selectors)
	observer.poll(telemetry.PlantA)

	obs, ok := f.store.Observed(telemetry.PlantA)
	require.True(t, ok)
	assert.True(t, obs.Enabled)
	assert.Equal(t, 123.0, obs.PActualKw)
	assert.Equal(t, 0, obs.ConsecutiveFailures)
	assert.False(t, obs.CapturedAt.IsZero())
}

func TestObserverCountsConsecutiveFailures(t *testing.T) {
	f := newControlFixture(t, false)
	observer := NewObserver(f.store, f.selectors)

	observer.poll(telemetry.PlantA)
	obs, _ := f.store.Observed(telemetry.PlantA)
	captured := obs.CapturedAt

	f.endpoints[telemetry.PlantA].readErr = errors.New("endpoint unreachable")
	observer.poll(telemetry.PlantA)
	observer.poll(telemetry.PlantA)

	obs, _ = f.store.Observed(telemetry.PlantA)
	assert.Equal(t, 2, obs.ConsecutiveFailures)
	assert.Equal(t, "endpoint unreachable", obs.LastError)
	// values and capture time survive so the snapshot ages out rather than vanishing
	assert.Equal(t, captured, obs.CapturedAt)

	// a successful poll resets the count
	f.endpoints[telemetry.PlantA].readErr = nil
	observer.poll(telemetry.PlantA)
	obs, _ = f.store.Observed(telemetry.PlantA)
	assert.Equal(t, 0, obs.ConsecutiveFailures)
}

func TestControllerObservedAppliesStaleness(t *testing.T) {
	f := newControlFixture(t, false)

	// never polled: unknown
	_, ok := f.controller.Observed(telemetry.PlantA)
	assert.False(t, ok)

	f.store.SetObserved(telemetry.PlantA, telemetry.ObservedState{
		Enabled:    true,
		CapturedAt: time.Now(),
	})
	_, ok = f.controller.Observed(telemetry.PlantA)
	assert.True(t, ok)

	// past the 10s fixture threshold the snapshot reads as unknown again
	f.store.SetObserved(telemetry.PlantA, telemetry.ObservedState{
		Enabled:    true,
		CapturedAt: time.Now().Add(-time.Minute),
	})
	_, ok = f.controller.Observed(telemetry.PlantA)
	assert.False(t, ok)
}
