// Package state holds the shared runtime state of the controller behind one mutex.
//
// The discipline is: acquire the lock only to copy a value out or write one back.
// All computation, encoding and I/O happens outside the lock, so no accessor here
// performs network or disk operations and none of them block.
package state

import (
	"sync"
	"time"

	"github.com/cepro/plantcontroller/telemetry"
	"github.com/google/uuid"
)

// RecordingTarget identifies an active recording session for one plant.
type RecordingTarget struct {
	SessionID uuid.UUID
	Plant     telemetry.PlantID
}

// PostStatus holds the bookkeeping of the most recent telemetry post attempt.
type PostStatus struct {
	At      time.Time
	OK      bool
	Err     string
	Metric  string
	Plant   telemetry.PlantID
	Attempt int
}

type plantState struct {
	dispatchGate  bool
	transition    telemetry.TransitionState
	recording     *RecordingTarget
	observed      telemetry.ObservedState
	observedValid bool
	latestSample  *telemetry.Sample
}

// Store is the single source of truth read and written by all workers.
type Store struct {
	mu             sync.Mutex
	plants         map[telemetry.PlantID]*plantState
	transportMode  telemetry.TransportMode
	postingEnabled bool
	fluxConnected  bool
	lastPost       *PostStatus
}

// New returns a store with both plants stopped, gates closed and local transport active.
func New() *Store {
	plants := make(map[telemetry.PlantID]*plantState)
	for _, id := range telemetry.AllPlants() {
		plants[id] = &plantState{transition: telemetry.TransitionStopped}
	}
	return &Store{
		plants:        plants,
		transportMode: telemetry.TransportLocal,
	}
}

func (s *Store) plant(id telemetry.PlantID) *plantState {
	p, ok := s.plants[id]
	if !ok {
		// Unknown plants are rejected at the command/config boundary; reaching here
		// is a programming error.
		panic("state: unknown plant " + string(id))
	}
	return p
}

// DispatchGate reports whether the dispatch loop may write setpoints to the plant.
func (s *Store) DispatchGate(id telemetry.PlantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plant(id).dispatchGate
}

// SetDispatchGate opens or closes the plant's dispatch gate.
func (s *Store) SetDispatchGate(id telemetry.PlantID, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plant(id).dispatchGate = open
}

// Transition returns the plant's start/stop lifecycle state.
func (s *Store) Transition(id telemetry.PlantID) telemetry.TransitionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plant(id).transition
}

// SetTransition updates the plant's start/stop lifecycle state.
func (s *Store) SetTransition(id telemetry.PlantID, t telemetry.TransitionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plant(id).transition = t
}

// TransportMode returns the active transport mode for the fleet.
func (s *Store) TransportMode() telemetry.TransportMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportMode
}

// SetTransportMode atomically swaps the active transport mode.
func (s *Store) SetTransportMode(mode telemetry.TransportMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportMode = mode
}

// Observed returns the cached observed-state snapshot for the plant. ok is false when
// the snapshot has been invalidated (e.g. after a transport switch) or never taken.
func (s *Store) Observed(id telemetry.PlantID) (telemetry.ObservedState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plant(id)
	return p.observed, p.observedValid
}

// SetObserved publishes a fresh observed-state snapshot for the plant.
func (s *Store) SetObserved(id telemetry.PlantID, obs telemetry.ObservedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plant(id)
	p.observed = obs
	p.observedValid = true
}

// TagObservedFailure bumps the plant's consecutive poll-failure count and records the
// error, without touching the snapshot's values, capture time or validity. Returns
// the updated failure count.
func (s *Store) TagObservedFailure(id telemetry.PlantID, errMsg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plant(id)
	p.observed.ConsecutiveFailures++
	p.observed.LastError = errMsg
	return p.observed.ConsecutiveFailures
}

// InvalidateObserved marks the plant's snapshot as no longer reflecting the device,
// e.g. after the active transport has been switched.
func (s *Store) InvalidateObserved(id telemetry.PlantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plant(id).observedValid = false
}

// Recording returns the plant's active recording target, if any.
func (s *Store) Recording(id telemetry.PlantID) (RecordingTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plant(id)
	if p.recording == nil {
		return RecordingTarget{}, false
	}
	return *p.recording, true
}

// SetRecording sets or clears (nil) the plant's recording target.
func (s *Store) SetRecording(id telemetry.PlantID, target *RecordingTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == nil {
		s.plant(id).recording = nil
		return
	}
	copied := *target
	s.plant(id).recording = &copied
}

// LatestSample returns the most recent measurement sample taken for the plant.
func (s *Store) LatestSample(id telemetry.PlantID) (telemetry.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plant(id)
	if p.latestSample == nil {
		return telemetry.Sample{}, false
	}
	return *p.latestSample, true
}

// SetLatestSample publishes the most recent measurement sample for the plant.
func (s *Store) SetLatestSample(id telemetry.PlantID, sample telemetry.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := sample
	s.plant(id).latestSample = &copied
}

// PostingEnabled reports whether the telemetry posting policy is switched on.
func (s *Store) PostingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postingEnabled
}

// SetPostingEnabled switches the telemetry posting policy.
func (s *Store) SetPostingEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postingEnabled = enabled
}

// FluxConnected reports whether a Flux session has been established.
func (s *Store) FluxConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fluxConnected
}

// SetFluxConnected records whether a Flux session has been established.
func (s *Store) SetFluxConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fluxConnected = connected
}

// LastPost returns the bookkeeping of the most recent post attempt, if any.
func (s *Store) LastPost() (PostStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPost == nil {
		return PostStatus{}, false
	}
	return *s.lastPost, true
}

// SetLastPost records the outcome of a post attempt.
func (s *Store) SetLastPost(status PostStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := status
	s.lastPost = &copied
}
