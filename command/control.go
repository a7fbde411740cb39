package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cepro/plantcontroller/endpoint"
	"github.com/cepro/plantcontroller/schedule"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
)

// RecordingControl starts and stops measurement recording sessions. Implemented by
// the measurement sampler.
type RecordingControl interface {
	StartRecording(plant telemetry.PlantID) error
	StopRecording(plant telemetry.PlantID) error
}

// SafeStopParams bounds the safe-stop power-decay wait.
type SafeStopParams struct {
	DecayThresholdKw float64
	Timeout          time.Duration
	PollPeriod       time.Duration
}

// Controller executes the control engine's commands: plant start/stop, transport
// switching, fleet operations and recording toggles.
type Controller struct {
	store              *state.Store
	selectors          map[telemetry.PlantID]*endpoint.Selector
	resolver           *schedule.Resolver
	recording          RecordingControl
	safeStop           SafeStopParams
	observedStaleAfter time.Duration
	engine             *Engine
}

// NewController creates the controller and its engine with the given queue depth.
func NewController(
	store *state.Store,
	selectors map[telemetry.PlantID]*endpoint.Selector,
	resolver *schedule.Resolver,
	recording RecordingControl,
	safeStop SafeStopParams,
	observedStaleAfter time.Duration,
	queueDepth int,
	auditor Auditor,
) *Controller {
	c := &Controller{
		store:              store,
		selectors:          selectors,
		resolver:           resolver,
		recording:          recording,
		safeStop:           safeStop,
		observedStaleAfter: observedStaleAfter,
	}
	c.engine = NewEngine("control", queueDepth, map[Kind]targetRule{
		KindStart:           targetPlant,
		KindStop:            targetPlant,
		KindRecordStart:     targetPlant,
		KindRecordStop:      targetPlant,
		KindTransportSwitch: targetNone,
		KindFleetStart:      targetNone,
		KindFleetStop:       targetNone,
	}, c.execute, auditor)
	return c
}

// Engine returns the underlying command engine, for submission and running.
func (c *Controller) Engine() *Engine {
	return c.engine
}

// Observed returns the plant's cached observed-state snapshot. ok is false when the
// snapshot is missing, has been invalidated, or is older than the staleness
// threshold: the caller must then treat the plant's state as unknown.
func (c *Controller) Observed(plant telemetry.PlantID) (telemetry.ObservedState, bool) {
	obs, ok := c.store.Observed(plant)
	if !ok || obs.StaleAt(time.Now(), c.observedStaleAfter) {
		return obs, false
	}
	return obs, true
}

func (c *Controller) execute(ctx context.Context, cmd *Command) error {
	switch cmd.Kind {
	case KindStart:
		return c.start(cmd.Target)
	case KindStop:
		return c.stop(ctx, cmd.Target)
	case KindTransportSwitch:
		return c.transportSwitch(ctx)
	case KindFleetStart:
		return c.fleetStart()
	case KindFleetStop:
		return c.fleetStop(ctx)
	case KindRecordStart:
		return c.recording.StartRecording(cmd.Target)
	case KindRecordStop:
		return c.recording.StopRecording(cmd.Target)
	}
	return fmt.Errorf("unhandled kind %q", cmd.Kind)
}

// start enables the plant, opens its dispatch gate and pushes the current effective
// setpoint immediately rather than waiting for the next dispatch tick.
func (c *Controller) start(plant telemetry.PlantID) error {
	c.store.SetTransition(plant, telemetry.TransitionStarting)

	ep := c.selectors[plant].Active()
	if err := ep.WritePoint(telemetry.PointEnable, 1); err != nil {
		c.store.SetTransition(plant, telemetry.TransitionUnknown)
		return fmt.Errorf("enable plant %s: %w", plant, err)
	}

	pKw, qKvar := c.resolver.EffectiveAt(plant, time.Now())
	if err := ep.WritePoint(telemetry.PointPSetpoint, pKw); err != nil {
		c.store.SetTransition(plant, telemetry.TransitionUnknown)
		return fmt.Errorf("write initial P setpoint: %w", err)
	}
	if err := ep.WritePoint(telemetry.PointQSetpoint, qKvar); err != nil {
		c.store.SetTransition(plant, telemetry.TransitionUnknown)
		return fmt.Errorf("write initial Q setpoint: %w", err)
	}

	c.store.SetDispatchGate(plant, true)
	c.store.SetTransition(plant, telemetry.TransitionRunning)

	return nil
}

// stop runs the safe-stop sequence on one plant.
func (c *Controller) stop(ctx context.Context, plant telemetry.PlantID) error {
	c.store.SetTransition(plant, telemetry.TransitionStopping)

	result := c.runSafeStop(ctx, plant)
	if !result.DisableOK {
		c.store.SetTransition(plant, telemetry.TransitionUnknown)
		return fmt.Errorf("plant %s could not be disabled", plant)
	}

	c.store.SetTransition(plant, telemetry.TransitionStopped)
	return nil
}

// transportSwitch safe-stops both plants, swaps the fleet's transport mode and
// invalidates the observed-state snapshots, which describe the old endpoints until
// the poller has been around again.
func (c *Controller) transportSwitch(ctx context.Context) error {
	for _, plant := range telemetry.AllPlants() {
		if err := c.stop(ctx, plant); err != nil {
			return fmt.Errorf("safe-stop before transport switch: %w", err)
		}
	}

	mode := telemetry.TransportRemote
	if c.store.TransportMode() == telemetry.TransportRemote {
		mode = telemetry.TransportLocal
	}
	c.store.SetTransportMode(mode)

	for _, plant := range telemetry.AllPlants() {
		c.store.InvalidateObserved(plant)
	}

	return nil
}

// fleetStart starts recording and dispatch on both plants independently: a failure
// on one plant does not block the other.
func (c *Controller) fleetStart() error {
	var errs []error
	for _, plant := range telemetry.AllPlants() {
		if err := c.recording.StartRecording(plant); err != nil {
			errs = append(errs, fmt.Errorf("start recording plant %s: %w", plant, err))
			continue
		}
		if err := c.start(plant); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fleetStop safe-stops both plants independently, then stops their recordings.
func (c *Controller) fleetStop(ctx context.Context) error {
	var errs []error
	for _, plant := range telemetry.AllPlants() {
		if err := c.stop(ctx, plant); err != nil {
			errs = append(errs, err)
		}
		if err := c.recording.StopRecording(plant); err != nil {
			errs = append(errs, fmt.Errorf("stop recording plant %s: %w", plant, err))
		}
	}
	return errors.Join(errs...)
}
