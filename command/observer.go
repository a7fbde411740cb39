package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/cepro/plantcontroller/endpoint"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
)

// Observer refreshes the observed-state snapshots on a fixed cadence, independent of
// command execution. Consecutive failures are counted so a dead endpoint is
// distinguishable from a single dropped poll.
type Observer struct {
	store     *state.Store
	selectors map[telemetry.PlantID]*endpoint.Selector
	logger    *slog.Logger
}

// NewObserver creates the observed-state poller.
func NewObserver(store *state.Store, selectors map[telemetry.PlantID]*endpoint.Selector) *Observer {
	return &Observer{
		store:     store,
		selectors: selectors,
		logger:    slog.Default(),
	}
}

// Run polls until the context is cancelled.
func (o *Observer) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, plant := range telemetry.AllPlants() {
				o.poll(plant)
			}
		}
	}
}

func (o *Observer) poll(plant telemetry.PlantID) {
	ep := o.selectors[plant].Active()

	values, err := ep.ReadPoints(telemetry.PointEnable, telemetry.PointPActual, telemetry.PointQActual)
	if err != nil {
		// keep the previous values and capture time: the snapshot ages out
		// naturally while the failure count climbs
		failures := o.store.TagObservedFailure(plant, err.Error())
		o.logger.Error("Failed to poll observed state",
			"plant", plant, "consecutive_failures", failures, "error", err)
		return
	}

	o.store.SetObserved(plant, telemetry.ObservedState{
		Enabled:     values[telemetry.PointEnable] > 0.5,
		PActualKw:   values[telemetry.PointPActual],
		QActualKvar: values[telemetry.PointQActual],
		CapturedAt:  time.Now(),
	})
}
