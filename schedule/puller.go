package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/cepro/plantcontroller/fluxclient"
	"github.com/cepro/plantcontroller/telemetry"
)

// ScheduleFetcher pulls the day-ahead schedule for one asset.
type ScheduleFetcher interface {
	GetSchedule(ctx context.Context, assetID string) (fluxclient.Schedule, error)
}

// Puller periodically refreshes the resolver's base schedules from Flux.
type Puller struct {
	fetcher  ScheduleFetcher
	resolver *Resolver
	assets   map[telemetry.PlantID]string
	logger   *slog.Logger
}

// NewPuller creates a puller for the given plant-to-Flux-asset mapping.
func NewPuller(fetcher ScheduleFetcher, resolver *Resolver, assets map[telemetry.PlantID]string) *Puller {
	return &Puller{
		fetcher:  fetcher,
		resolver: resolver,
		assets:   assets,
		logger:   slog.Default(),
	}
}

// Run pulls immediately and then on every period until the context is cancelled. A
// failed pull leaves the previous base schedule in place: the resolver's staleness
// guard zeroes setpoints if pulls keep failing for long enough.
func (p *Puller) Run(ctx context.Context, period time.Duration) {
	p.pullAll(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pullAll(ctx)
		}
	}
}

func (p *Puller) pullAll(ctx context.Context) {
	for plant, assetID := range p.assets {
		schedule, err := p.fetcher.GetSchedule(ctx, assetID)
		if err != nil {
			p.logger.Error("Failed to pull base schedule", "plant", plant, "asset_id", assetID, "error", err)
			continue
		}
		p.resolver.SetBase(plant, schedule)
	}
}
