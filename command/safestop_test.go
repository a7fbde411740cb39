package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cepro/plantcontroller/endpoint"
	"github.com/cepro/plantcontroller/fluxclient"
	"github.com/cepro/plantcontroller/schedule"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduleWithConstant(pKw, qKvar float64) fluxclient.Schedule {
	return fluxclient.Schedule{Steps: []fluxclient.ScheduleStep{
		{Start: time.Now().Add(-time.Hour), PKw: pKw, QKvar: qKvar},
	}}
}

// fakeEndpoint is a scriptable plant: reads serve the values map, writes are logged.
// With decayOnZero set, zeroing the P setpoint also zeroes the measured power, like a
// plant that responds instantly.
type fakeEndpoint struct {
	mu          sync.Mutex
	values      map[string]float64
	writes      []string
	decayOnZero bool
	failWrites  bool
	readErr     error
}

func newFakeEndpoint(decayOnZero bool) *fakeEndpoint {
	return &fakeEndpoint{
		values:      map[string]float64{},
		decayOnZero: decayOnZero,
	}
}

func (f *fakeEndpoint) ReadPoint(name string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.values[name], nil
}

func (f *fakeEndpoint) ReadPoints(names ...string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := map[string]float64{}
	for _, name := range names {
		out[name] = f.values[name]
	}
	return out, nil
}

func (f *fakeEndpoint) WritePoint(name string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write refused")
	}
	f.values[name] = value
	f.writes = append(f.writes, name)
	if f.decayOnZero && name == telemetry.PointPSetpoint && value == 0 {
		f.values[telemetry.PointPActual] = 0
		f.values[telemetry.PointQActual] = 0
	}
	return nil
}

func (f *fakeEndpoint) Host() string { return "fake" }
func (f *fakeEndpoint) Close() error { return nil }

func (f *fakeEndpoint) value(name string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

func (f *fakeEndpoint) set(name string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

// fakeRecording counts session toggles and can fail per plant.
type fakeRecording struct {
	started map[telemetry.PlantID]int
	stopped map[telemetry.PlantID]int
	fail    map[telemetry.PlantID]bool
}

func newFakeRecording() *fakeRecording {
	return &fakeRecording{
		started: map[telemetry.PlantID]int{},
		stopped: map[telemetry.PlantID]int{},
		fail:    map[telemetry.PlantID]bool{},
	}
}

func (r *fakeRecording) StartRecording(plant telemetry.PlantID) error {
	if r.fail[plant] {
		return errors.New("recording refused")
	}
	r.started[plant]++
	return nil
}

func (r *fakeRecording) StopRecording(plant telemetry.PlantID) error {
	if r.fail[plant] {
		return errors.New("recording refused")
	}
	r.stopped[plant]++
	return nil
}

type controlFixture struct {
	controller *Controller
	store      *state.Store
	resolver   *schedule.Resolver
	recording  *fakeRecording
	endpoints  map[telemetry.PlantID]*fakeEndpoint
	selectors  map[telemetry.PlantID]*endpoint.Selector
}

func newControlFixture(t *testing.T, decayOnZero bool) *controlFixture {
	t.Helper()

	store := state.New()
	resolver := schedule.NewResolver(24 * time.Hour)
	recording := newFakeRecording()

	endpoints := map[telemetry.PlantID]*fakeEndpoint{}
	selectors := map[telemetry.PlantID]*endpoint.Selector{}
	for _, plant := range telemetry.AllPlants() {
		fake := newFakeEndpoint(decayOnZero)
		endpoints[plant] = fake
		// the same fake serves both modes so transport switching stays observable
		selectors[plant] = endpoint.NewSelector(store, plant, fake, fake)
	}

	controller := NewController(store, selectors, resolver, recording, SafeStopParams{
		DecayThresholdKw: 1,
		Timeout:          50 * time.Millisecond,
		PollPeriod:       5 * time.Millisecond,
	}, 10*time.Second, 4, nil)

	return &controlFixture{
		controller: controller,
		store:      store,
		resolver:   resolver,
		recording:  recording,
		endpoints:  endpoints,
		selectors:  selectors,
	}
}

func TestSafeStopWaitsForDecayThenDisables(t *testing.T) {
	f := newControlFixture(t, true)
	f.store.SetDispatchGate(telemetry.PlantA, true)
	f.endpoints[telemetry.PlantA].set(telemetry.PointPActual, 500)

	result := f.controller.runSafeStop(context.Background(), telemetry.PlantA)

	assert.True(t, result.ThresholdReached)
	assert.True(t, result.DisableOK)
	assert.False(t, f.store.DispatchGate(telemetry.PlantA))
	assert.Equal(t, 0.0, f.endpoints[telemetry.PlantA].value(telemetry.PointEnable))
	assert.Equal(t, 0.0, f.endpoints[telemetry.PlantA].value(telemetry.PointPSetpoint))
}

func TestSafeStopTimeoutStillForceDisables(t *testing.T) {
	f := newControlFixture(t, false) // measured power never decays
	f.endpoints[telemetry.PlantA].set(telemetry.PointPActual, 500)
	f.endpoints[telemetry.PlantA].set(telemetry.PointEnable, 1)

	result := f.controller.runSafeStop(context.Background(), telemetry.PlantA)

	assert.False(t, result.ThresholdReached)
	assert.True(t, result.DisableOK)
	assert.Equal(t, 0.0, f.endpoints[telemetry.PlantA].value(telemetry.PointEnable))
}

func TestStartOpensGateAndSendsImmediateSetpoint(t *testing.T) {
	f := newControlFixture(t, true)
	f.resolver.SetBase(telemetry.PlantA, scheduleWithConstant(100, -10))

	require.NoError(t, f.controller.start(telemetry.PlantA))

	assert.True(t, f.store.DispatchGate(telemetry.PlantA))
	assert.Equal(t, telemetry.TransitionRunning, f.store.Transition(telemetry.PlantA))
	assert.Equal(t, 1.0, f.endpoints[telemetry.PlantA].value(telemetry.PointEnable))
	assert.Equal(t, 100.0, f.endpoints[telemetry.PlantA].value(telemetry.PointPSetpoint))
	assert.Equal(t, -10.0, f.endpoints[telemetry.PlantA].value(telemetry.PointQSetpoint))
}

func TestStopSetsTransitionStopped(t *testing.T) {
	f := newControlFixture(t, true)
	require.NoError(t, f.controller.start(telemetry.PlantA))

	require.NoError(t, f.controller.stop(context.Background(), telemetry.PlantA))
	assert.Equal(t, telemetry.TransitionStopped, f.store.Transition(telemetry.PlantA))
}

func TestTransportSwitchSwapsModeAndInvalidatesObserved(t *testing.T) {
	f := newControlFixture(t, true)
	require.Equal(t, telemetry.TransportLocal, f.store.TransportMode())

	f.store.SetObserved(telemetry.PlantA, telemetry.ObservedState{CapturedAt: time.Now()})
	f.store.SetObserved(telemetry.PlantB, telemetry.ObservedState{CapturedAt: time.Now()})

	require.NoError(t, f.controller.transportSwitch(context.Background()))

	assert.Equal(t, telemetry.TransportRemote, f.store.TransportMode())
	for _, plant := range telemetry.AllPlants() {
		_, ok := f.store.Observed(plant)
		assert.False(t, ok, "observed snapshot for plant %s survived the switch", plant)
	}
}

func TestFleetStartPlantsAreIndependent(t *testing.T) {
	f := newControlFixture(t, true)
	f.recording.fail[telemetry.PlantA] = true

	err := f.controller.fleetStart()
	require.Error(t, err)

	// plant A failed before starting, plant B is up regardless
	assert.False(t, f.store.DispatchGate(telemetry.PlantA))
	assert.True(t, f.store.DispatchGate(telemetry.PlantB))
	assert.Equal(t, 1, f.recording.started[telemetry.PlantB])
}

func TestFleetStopStopsRecordingOnBothPlants(t *testing.T) {
	f := newControlFixture(t, true)
	require.NoError(t, f.controller.fleetStart())

	require.NoError(t, f.controller.fleetStop(context.Background()))

	for _, plant := range telemetry.AllPlants() {
		assert.False(t, f.store.DispatchGate(plant))
		assert.Equal(t, 1, f.recording.stopped[plant])
		assert.Equal(t, telemetry.TransitionStopped, f.store.Transition(plant))
	}
}
