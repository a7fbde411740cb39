package command

import (
	"context"
	"fmt"

	"github.com/cepro/plantcontroller/schedule"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
)

// Authenticator establishes a session with the telemetry service. Implemented by the
// Flux client.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// Settings executes the settings engine's commands: the telemetry connection policy
// and schedule override activation. It shares no queue with the control engine, so a
// long safe-stop never delays an override change.
type Settings struct {
	store    *state.Store
	resolver *schedule.Resolver
	flux     Authenticator
	engine   *Engine
}

// NewSettings creates the settings controller and its engine.
func NewSettings(store *state.Store, resolver *schedule.Resolver, flux Authenticator, queueDepth int, auditor Auditor) *Settings {
	s := &Settings{
		store:    store,
		resolver: resolver,
		flux:     flux,
	}
	s.engine = NewEngine("settings", queueDepth, map[Kind]targetRule{
		KindPostingConnect:     targetNone,
		KindPostingDisconnect:  targetNone,
		KindOverrideActivate:   targetNone,
		KindOverrideDeactivate: targetNone,
	}, s.execute, auditor)
	return s
}

// Engine returns the underlying command engine, for submission and running.
func (s *Settings) Engine() *Engine {
	return s.engine
}

func (s *Settings) execute(ctx context.Context, cmd *Command) error {
	switch cmd.Kind {
	case KindPostingConnect:
		return s.postingConnect(ctx)
	case KindPostingDisconnect:
		s.store.SetPostingEnabled(false)
		s.store.SetFluxConnected(false)
		return nil
	case KindOverrideActivate:
		return s.override(cmd, true)
	case KindOverrideDeactivate:
		return s.override(cmd, false)
	}
	return fmt.Errorf("unhandled kind %q", cmd.Kind)
}

// postingConnect verifies the Flux credential before letting the posting queue run.
func (s *Settings) postingConnect(ctx context.Context) error {
	if err := s.flux.Authenticate(ctx); err != nil {
		s.store.SetFluxConnected(false)
		return fmt.Errorf("authenticate with flux: %w", err)
	}
	s.store.SetFluxConnected(true)
	s.store.SetPostingEnabled(true)
	return nil
}

// override installs or toggles the override series named by the command payload.
func (s *Settings) override(cmd *Command, enabled bool) error {
	payload, ok := cmd.Payload.(OverridePayload)
	if !ok {
		return fmt.Errorf("override command carries %T, want OverridePayload", cmd.Payload)
	}
	if !telemetry.ValidPlant(payload.Plant) {
		return fmt.Errorf("override names unknown plant %q", payload.Plant)
	}
	if !telemetry.ValidSignal(payload.Signal) {
		return fmt.Errorf("override names unknown signal %q", payload.Signal)
	}

	if enabled && len(payload.Breakpoints) > 0 {
		s.resolver.SetOverride(payload.Plant, payload.Signal, schedule.Override{
			Series:  schedule.NewSeries(payload.Breakpoints),
			Enabled: true,
		})
		return nil
	}

	s.resolver.SetOverrideEnabled(payload.Plant, payload.Signal, enabled)
	return nil
}
