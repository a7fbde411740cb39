// Package dispatch drives setpoints out to the plants: one loop per plant reads the
// effective schedule and writes it to the active endpoint while the plant's dispatch
// gate is open.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/cepro/plantcontroller/endpoint"
	"github.com/cepro/plantcontroller/schedule"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
)

// EndpointProvider yields the endpoint that writes should currently go to. The
// transport-switch command changes which endpoint this returns.
type EndpointProvider interface {
	Active() endpoint.Endpoint
}

// Loop dispatches setpoints to one plant.
type Loop struct {
	plant    telemetry.PlantID
	store    *state.Store
	resolver *schedule.Resolver
	provider EndpointProvider

	// dedup cache: last setpoints successfully written
	haveLast bool
	lastP    float64
	lastQ    float64

	gateWasOpen bool

	logger *slog.Logger
}

// NewLoop creates the dispatch loop for one plant.
func NewLoop(plant telemetry.PlantID, store *state.Store, resolver *schedule.Resolver, provider EndpointProvider) *Loop {
	return &Loop{
		plant:    plant,
		store:    store,
		resolver: resolver,
		provider: provider,
		logger:   slog.Default().With("plant", plant),
	}
}

// Run ticks until the context is cancelled.
func (l *Loop) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(time.Now())
		}
	}
}

// tick sends the effective setpoint if the gate is open and the value changed since
// the last successful write.
func (l *Loop) tick(now time.Time) {
	if !l.store.DispatchGate(l.plant) {
		l.gateWasOpen = false
		return
	}
	if !l.gateWasOpen {
		// gate just reopened: always send the next value, even if it matches
		// whatever we wrote before the gate closed
		l.haveLast = false
		l.gateWasOpen = true
	}

	pKw, qKvar := l.resolver.EffectiveAt(l.plant, now)

	if l.haveLast && pKw == l.lastP && qKvar == l.lastQ {
		return
	}

	ep := l.provider.Active()
	if err := ep.WritePoint(telemetry.PointPSetpoint, pKw); err != nil {
		l.logger.Error("Failed to write P setpoint", "p_kw", pKw, "error", err)
		return
	}
	if err := ep.WritePoint(telemetry.PointQSetpoint, qKvar); err != nil {
		// the cache is not updated: next tick rewrites both setpoints
		l.logger.Error("Failed to write Q setpoint", "q_kvar", qKvar, "error", err)
		return
	}

	l.haveLast = true
	l.lastP = pKw
	l.lastQ = qKvar

	l.logger.Debug("Dispatched setpoint", "p_kw", pKw, "q_kvar", qKvar)
}
