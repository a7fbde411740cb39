// Package poster forwards sampled metrics to the Flux cloud through a bounded queue
// with exponential retry backoff.
package poster

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cepro/plantcontroller/config"
	"github.com/cepro/plantcontroller/fluxclient"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
)

// ReadingPoster sends one metric sample to the telemetry service. Implemented by the
// Flux client.
type ReadingPoster interface {
	PostReading(ctx context.Context, reading fluxclient.Reading) error
}

// Poster drains sampled telemetry to Flux while the posting policy is enabled.
type Poster struct {
	store *state.Store
	flux  ReadingPoster
	queue *Queue

	// series ids per plant and metric; a metric without a series id is never posted
	series map[telemetry.PlantID]map[string]string

	backoffInitial time.Duration
	backoffMax     time.Duration

	// last sample timestamp enqueued per plant, so one sample is not queued twice
	// when the post period is shorter than the sample period
	lastEnqueued map[telemetry.PlantID]time.Time

	logger *slog.Logger
}

// New creates the poster.
func New(store *state.Store, flux ReadingPoster, cfg config.PostingConfig, series map[telemetry.PlantID]map[string]string) *Poster {
	return &Poster{
		store:          store,
		flux:           flux,
		queue:          NewQueue(cfg.QueueMax),
		series:         series,
		backoffInitial: cfg.BackoffInitial.Std(),
		backoffMax:     cfg.BackoffMax.Std(),
		lastEnqueued:   map[telemetry.PlantID]time.Time{},
		logger:         slog.Default(),
	}
}

// Run ticks until the context is cancelled.
func (p *Poster) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, time.Now())
		}
	}
}

// tick enqueues the latest samples and attempts delivery of everything due.
func (p *Poster) tick(ctx context.Context, now time.Time) {
	if !p.store.PostingEnabled() {
		if p.queue.Len() > 0 {
			p.logger.Info("Posting disabled, discarding pending items", "discarded", p.queue.Len())
			p.queue.Clear()
		}
		return
	}
	if !p.store.FluxConnected() {
		return
	}

	p.enqueueLatest(now)
	p.drain(ctx, now)
}

func (p *Poster) enqueueLatest(now time.Time) {
	for _, plant := range telemetry.AllPlants() {
		sample, ok := p.store.LatestSample(plant)
		if !ok || sample.Time.Equal(p.lastEnqueued[plant]) {
			continue
		}
		p.lastEnqueued[plant] = sample.Time

		for metric, value := range sample.Metrics() {
			seriesID := p.series[plant][metric]
			if seriesID == "" {
				continue
			}
			if math.IsNaN(value) || math.IsInf(value, 0) {
				p.logger.Warn("Dropping non-finite metric value",
					"plant", plant, "metric", metric, "value", value)
				continue
			}

			evicted := p.queue.Push(&Item{
				Plant:       plant,
				Metric:      metric,
				SeriesID:    seriesID,
				Value:       value,
				Timestamp:   sample.Time,
				NextAttempt: now,
			})
			if evicted != nil {
				p.logger.Warn("Posting queue full, dropped oldest item",
					"plant", evicted.Plant, "metric", evicted.Metric,
					"timestamp", evicted.Timestamp, "attempts", evicted.Attempts)
			}
		}
	}
}

func (p *Poster) drain(ctx context.Context, now time.Time) {
	for _, item := range p.queue.TakeDue(now) {
		err := p.flux.PostReading(ctx, fluxclient.Reading{
			SeriesID:  item.SeriesID,
			Timestamp: item.Timestamp,
			Value:     item.Value,
		})

		item.Attempts++

		status := state.PostStatus{
			At:      now,
			Metric:  item.Metric,
			Plant:   item.Plant,
			Attempt: item.Attempts,
		}

		if err != nil {
			status.Err = err.Error()
			p.store.SetLastPost(status)

			item.NextAttempt = now.Add(p.backoffDelay(item.Attempts))
			if evicted := p.queue.Push(item); evicted != nil {
				p.logger.Warn("Posting queue full, dropped oldest item",
					"plant", evicted.Plant, "metric", evicted.Metric,
					"timestamp", evicted.Timestamp, "attempts", evicted.Attempts)
			}

			p.logger.Error("Failed to post reading", "plant", item.Plant, "metric", item.Metric,
				"attempts", item.Attempts, "next_attempt", item.NextAttempt, "error", err)
			continue
		}

		status.OK = true
		p.store.SetLastPost(status)
	}
}

// backoffDelay returns initial * 2^(attempts-1), capped at the maximum.
func (p *Poster) backoffDelay(attempts int) time.Duration {
	delay := p.backoffInitial
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.backoffMax {
			return p.backoffMax
		}
	}
	if delay > p.backoffMax {
		return p.backoffMax
	}
	return delay
}
