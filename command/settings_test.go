package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cepro/plantcontroller/schedule"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	err   error
	calls int
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context) error {
	a.calls++
	return a.err
}

func TestPostingConnectAuthenticatesFirst(t *testing.T) {
	store := state.New()
	auth := &fakeAuthenticator{}
	settings := NewSettings(store, schedule.NewResolver(time.Hour), auth, 4, nil)

	require.NoError(t, settings.execute(context.Background(), &Command{Kind: KindPostingConnect}))
	assert.Equal(t, 1, auth.calls)
	assert.True(t, store.PostingEnabled())
	assert.True(t, store.FluxConnected())
}

func TestPostingConnectAuthFailureLeavesPostingOff(t *testing.T) {
	store := state.New()
	auth := &fakeAuthenticator{err: errors.New("bad credentials")}
	settings := NewSettings(store, schedule.NewResolver(time.Hour), auth, 4, nil)

	require.Error(t, settings.execute(context.Background(), &Command{Kind: KindPostingConnect}))
	assert.False(t, store.PostingEnabled())
	assert.False(t, store.FluxConnected())
}

func TestPostingDisconnect(t *testing.T) {
	store := state.New()
	store.SetPostingEnabled(true)
	store.SetFluxConnected(true)
	settings := NewSettings(store, schedule.NewResolver(time.Hour), &fakeAuthenticator{}, 4, nil)

	require.NoError(t, settings.execute(context.Background(), &Command{Kind: KindPostingDisconnect}))
	assert.False(t, store.PostingEnabled())
	assert.False(t, store.FluxConnected())
}

func TestOverrideActivateInstallsSeries(t *testing.T) {
	resolver := schedule.NewResolver(time.Hour)
	settings := NewSettings(state.New(), resolver, &fakeAuthenticator{}, 4, nil)

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cmd := &Command{Kind: KindOverrideActivate, Payload: OverridePayload{
		Plant:       telemetry.PlantA,
		Signal:      telemetry.SignalP,
		Breakpoints: []schedule.Breakpoint{{Time: at, Value: -75}},
	}}
	require.NoError(t, settings.execute(context.Background(), cmd))

	p, _ := resolver.EffectiveAt(telemetry.PlantA, at.Add(time.Minute))
	assert.Equal(t, -75.0, p)

	// deactivation leaves the series installed but disabled
	off := &Command{Kind: KindOverrideDeactivate, Payload: OverridePayload{
		Plant:  telemetry.PlantA,
		Signal: telemetry.SignalP,
	}}
	require.NoError(t, settings.execute(context.Background(), off))

	p, _ = resolver.EffectiveAt(telemetry.PlantA, at.Add(time.Minute))
	assert.Equal(t, 0.0, p) // no base schedule installed either
}

func TestOverrideRejectsWrongPayload(t *testing.T) {
	settings := NewSettings(state.New(), schedule.NewResolver(time.Hour), &fakeAuthenticator{}, 4, nil)

	err := settings.execute(context.Background(), &Command{Kind: KindOverrideActivate, Payload: "nope"})
	assert.Error(t, err)
}

func TestOverrideRejectsUnknownSignal(t *testing.T) {
	resolver := schedule.NewResolver(time.Hour)
	settings := NewSettings(state.New(), resolver, &fakeAuthenticator{}, 4, nil)

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cmd := &Command{Kind: KindOverrideActivate, Payload: OverridePayload{
		Plant:       telemetry.PlantA,
		Signal:      "volts",
		Breakpoints: []schedule.Breakpoint{{Time: at, Value: -75}},
	}}
	err := settings.execute(context.Background(), cmd)
	require.Error(t, err)

	// nothing was installed under the bogus key
	p, q := resolver.EffectiveAt(telemetry.PlantA, at.Add(time.Minute))
	assert.Equal(t, 0.0, p)
	assert.Equal(t, 0.0, q)
}
