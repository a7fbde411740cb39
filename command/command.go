// Package command provides the serialized command engines: a bounded FIFO of
// operator intents, executed strictly one at a time per engine. The control engine
// owns plant start/stop and the safe-stop sequence; the settings engine owns the
// telemetry connection and schedule overrides. The two engines run independently.
package command

import (
	"errors"
	"time"

	"github.com/cepro/plantcontroller/schedule"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/google/uuid"
)

// Kind names one operator intent.
type Kind string

const (
	// control engine kinds
	KindStart           Kind = "start"
	KindStop            Kind = "stop"
	KindTransportSwitch Kind = "transport-switch"
	KindFleetStart      Kind = "fleet-start"
	KindFleetStop       Kind = "fleet-stop"
	KindRecordStart     Kind = "record-start"
	KindRecordStop      Kind = "record-stop"

	// settings engine kinds
	KindPostingConnect     Kind = "posting-connect"
	KindPostingDisconnect  Kind = "posting-disconnect"
	KindOverrideActivate   Kind = "override-activate"
	KindOverrideDeactivate Kind = "override-deactivate"
)

// Status is the lifecycle state of a command. A command moves queued to running to
// succeeded or failed; a command that never makes it onto the queue is rejected.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// ErrRejected is returned by Submit when a command cannot be accepted: the queue is
// full, the kind is not handled by the engine, or the target is invalid. The command
// never enters the running state.
var ErrRejected = errors.New("command rejected")

// OverridePayload carries the override series for an override-activate command.
// Deactivation carries only Plant and Signal.
type OverridePayload struct {
	Plant       telemetry.PlantID
	Signal      telemetry.Signal
	Breakpoints []schedule.Breakpoint
}

// Command is one operator intent moving through an engine. Fields other than done
// are written only by Submit and the engine goroutine; once the command is terminal
// they are never touched again.
type Command struct {
	ID      uuid.UUID
	Kind    Kind
	Target  telemetry.PlantID // empty for fleet and settings kinds
	Payload any

	Status     Status
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Err        string

	done chan struct{}
}

// Done is closed when the command reaches a terminal state.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Terminal reports whether the command has finished, one way or another.
func (c *Command) Terminal() bool {
	switch c.Status {
	case StatusSucceeded, StatusFailed, StatusRejected:
		return true
	}
	return false
}

func (c *Command) finish(err error) {
	c.FinishedAt = time.Now()
	if err != nil {
		c.Status = StatusFailed
		c.Err = err.Error()
	} else {
		c.Status = StatusSucceeded
	}
	close(c.done)
}
