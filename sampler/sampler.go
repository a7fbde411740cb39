// Package sampler reads each plant's telemetry points on a drift-free, anchored
// timeline, publishes the latest sample to the runtime state and persists compressed
// rows while a recording session is active.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/plantcontroller/config"
	"github.com/cepro/plantcontroller/endpoint"
	"github.com/cepro/plantcontroller/recorder"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/google/uuid"
)

// session tracks one active recording. A session is only considered open once its
// first real sample has arrived; stopping before that writes the trailing boundary
// at the stop time instead.
type session struct {
	target     state.RecordingTarget
	compressor *Compressor

	lastReal time.Time
	haveReal bool
}

// Sampler samples both plants each step and owns the recording sessions.
type Sampler struct {
	store     *state.Store
	selectors map[telemetry.PlantID]*endpoint.Selector
	recorder  *recorder.Recorder
	compCfg   config.CompressionConfig
	period    time.Duration

	mu       sync.Mutex
	sessions map[telemetry.PlantID]*session

	logger *slog.Logger
}

// New creates the sampler. period must match the period later passed to Run: it is
// used for the trailing boundary placement.
func New(
	store *state.Store,
	selectors map[telemetry.PlantID]*endpoint.Selector,
	rec *recorder.Recorder,
	compCfg config.CompressionConfig,
	period time.Duration,
) *Sampler {
	return &Sampler{
		store:     store,
		selectors: selectors,
		recorder:  rec,
		compCfg:   compCfg,
		period:    period,
		sessions:  map[telemetry.PlantID]*session{},
		logger:    slog.Default(),
	}
}

// StartRecording opens a recording session for the plant. If the plant's most recent
// historical row is not already a boundary, a leading boundary is written first to
// separate the new session from old data.
func (s *Sampler) StartRecording(plant telemetry.PlantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[plant]; exists {
		return fmt.Errorf("plant %s is already recording", plant)
	}

	bounded, err := s.recorder.LastRowIsBoundary(plant)
	if err != nil {
		return fmt.Errorf("check recording history: %w", err)
	}
	if !bounded {
		if err := s.recorder.WriteBoundary(plant, time.Now()); err != nil {
			return fmt.Errorf("write leading boundary: %w", err)
		}
	}

	target := state.RecordingTarget{SessionID: uuid.New(), Plant: plant}
	s.sessions[plant] = &session{
		target:     target,
		compressor: NewCompressor(s.compCfg),
	}
	s.store.SetRecording(plant, &target)

	s.logger.Info("Started recording session", "plant", plant, "session_id", target.SessionID)

	return nil
}

// StopRecording closes the plant's recording session: the pending tail candidate is
// flushed, then a trailing boundary is written at the last real sample time plus one
// period, or at the stop time if the session never saw a sample.
func (s *Sampler) StopRecording(plant telemetry.PlantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[plant]
	if !exists {
		return fmt.Errorf("plant %s is not recording", plant)
	}

	if tail, ok := sess.compressor.Flush(); ok {
		if err := s.recorder.WriteSample(plant, tail); err != nil {
			return fmt.Errorf("flush tail sample: %w", err)
		}
	}

	boundaryAt := time.Now()
	if sess.haveReal {
		boundaryAt = sess.lastReal.Add(s.period)
	}
	if err := s.recorder.WriteBoundary(plant, boundaryAt); err != nil {
		return fmt.Errorf("write trailing boundary: %w", err)
	}

	delete(s.sessions, plant)
	s.store.SetRecording(plant, nil)

	s.logger.Info("Stopped recording session", "plant", plant, "session_id", sess.target.SessionID)

	return nil
}

// StopAll closes any open sessions. Called on shutdown so every session gets its
// trailing boundary.
func (s *Sampler) StopAll() {
	for _, plant := range telemetry.AllPlants() {
		s.mu.Lock()
		_, exists := s.sessions[plant]
		s.mu.Unlock()
		if !exists {
			continue
		}
		if err := s.StopRecording(plant); err != nil {
			s.logger.Error("Failed to close recording session on shutdown", "plant", plant, "error", err)
		}
	}
}

// Run samples until the context is cancelled. Each anchored step executes at most
// once; a failed read consumes its step and the next step is awaited, so a struggling
// endpoint produces gaps rather than timestamp drift.
func (s *Sampler) Run(ctx context.Context, period time.Duration) {
	anc := newAnchor(time.Now())
	lastStep := int64(-1)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.StopAll()
			return
		case now := <-ticker.C:
			step := anc.stepAt(now, period)
			if step <= lastStep {
				continue
			}
			// consume the step before doing any I/O: no retries within a step
			lastStep = step
			s.sampleAll(anc.timeOf(step, period))
		}
	}
}

func (s *Sampler) sampleAll(scheduled time.Time) {
	for _, plant := range telemetry.AllPlants() {
		sample, err := s.read(plant, scheduled)
		if err != nil {
			s.logger.Error("Failed to sample plant", "plant", plant, "scheduled", scheduled, "error", err)
			continue
		}

		s.store.SetLatestSample(plant, sample)
		s.record(plant, sample)
	}
}

func (s *Sampler) read(plant telemetry.PlantID, scheduled time.Time) (telemetry.Sample, error) {
	values, err := s.selectors[plant].Active().ReadPoints(
		telemetry.PointPSetpoint,
		telemetry.PointPActual,
		telemetry.PointQSetpoint,
		telemetry.PointQActual,
		telemetry.PointSoc,
		telemetry.PointPoiP,
		telemetry.PointPoiQ,
		telemetry.PointPoiV,
	)
	if err != nil {
		return telemetry.Sample{}, err
	}

	return telemetry.Sample{
		Time:          scheduled,
		PSetpointKw:   values[telemetry.PointPSetpoint],
		PActualKw:     values[telemetry.PointPActual],
		QSetpointKvar: values[telemetry.PointQSetpoint],
		QActualKvar:   values[telemetry.PointQActual],
		SocPu:         values[telemetry.PointSoc],
		PoiPKw:        values[telemetry.PointPoiP],
		PoiQKvar:      values[telemetry.PointPoiQ],
		PoiVKv:        values[telemetry.PointPoiV],
	}, nil
}

// record passes the sample through the plant's recording session, if one is open.
// The kept row is written while the session lock is held, so a concurrent stop can
// never slip its trailing boundary in ahead of the row.
func (s *Sampler) record(plant telemetry.PlantID, sample telemetry.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, recording := s.sessions[plant]
	if !recording {
		return
	}

	sess.lastReal = sample.Time
	sess.haveReal = true

	if !sess.compressor.Offer(sample) {
		return
	}

	if err := s.recorder.WriteSample(plant, sample); err != nil {
		s.logger.Error("Failed to persist sample", "plant", plant, "error", err)
		return
	}
	sess.compressor.Commit(sample)
}
