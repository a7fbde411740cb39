package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/plantcontroller/telemetry"
	"github.com/google/uuid"
)

// targetRule says what Target a kind requires.
type targetRule int

const (
	targetNone  targetRule = iota // fleet-wide or settings kinds: Target must be empty
	targetPlant                   // per-plant kinds: Target must name a real plant
)

// HandlerFunc executes one command to completion.
type HandlerFunc func(ctx context.Context, cmd *Command) error

// Auditor persists the lifecycle of commands. Recording is best-effort: an audit
// failure never fails the command itself.
type Auditor interface {
	RecordCommand(cmd *Command) error
}

// Engine runs commands from a bounded FIFO, strictly one at a time. Command N+1
// never starts before command N reaches a terminal state.
type Engine struct {
	name    string
	queue   chan *Command
	allowed map[Kind]targetRule
	handler HandlerFunc
	auditor Auditor
	logger  *slog.Logger
}

// NewEngine creates an engine handling the given kinds with a queue of the given depth.
func NewEngine(name string, depth int, allowed map[Kind]targetRule, handler HandlerFunc, auditor Auditor) *Engine {
	return &Engine{
		name:    name,
		queue:   make(chan *Command, depth),
		allowed: allowed,
		handler: handler,
		auditor: auditor,
		logger:  slog.Default().With("engine", name),
	}
}

// Submit queues a command for execution. The returned command carries a fresh ID and
// a Done channel. Rejection (wrong kind, bad target, full queue) is reported
// synchronously via an error wrapping ErrRejected; a rejected command never runs.
func (e *Engine) Submit(kind Kind, target telemetry.PlantID, payload any) (*Command, error) {
	cmd := &Command{
		ID:        uuid.New(),
		Kind:      kind,
		Target:    target,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}

	if err := e.validate(kind, target); err != nil {
		e.reject(cmd, err)
		return cmd, err
	}

	select {
	case e.queue <- cmd:
	default:
		err := fmt.Errorf("%w: %s queue full", ErrRejected, e.name)
		e.reject(cmd, err)
		return cmd, err
	}

	e.logger.Info("Queued command", "id", cmd.ID, "kind", cmd.Kind, "target", cmd.Target)

	return cmd, nil
}

func (e *Engine) validate(kind Kind, target telemetry.PlantID) error {
	rule, ok := e.allowed[kind]
	if !ok {
		return fmt.Errorf("%w: kind %q not handled by %s engine", ErrRejected, kind, e.name)
	}
	switch rule {
	case targetPlant:
		if !telemetry.ValidPlant(target) {
			return fmt.Errorf("%w: kind %q requires a valid plant target, got %q", ErrRejected, kind, target)
		}
	case targetNone:
		if target != "" {
			return fmt.Errorf("%w: kind %q takes no target, got %q", ErrRejected, kind, target)
		}
	}
	return nil
}

func (e *Engine) reject(cmd *Command, err error) {
	cmd.Status = StatusRejected
	cmd.Err = err.Error()
	cmd.FinishedAt = time.Now()
	close(cmd.done)
	e.audit(cmd)
	e.logger.Warn("Rejected command", "id", cmd.ID, "kind", cmd.Kind, "error", err)
}

// Run executes queued commands until the context is cancelled. The command in flight
// when cancellation arrives is allowed to reach a terminal state.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.queue:
			e.run(ctx, cmd)
		}
	}
}

func (e *Engine) run(ctx context.Context, cmd *Command) {
	cmd.Status = StatusRunning
	cmd.StartedAt = time.Now()
	e.audit(cmd)

	e.logger.Info("Running command", "id", cmd.ID, "kind", cmd.Kind, "target", cmd.Target)

	cmd.finish(e.handler(ctx, cmd))
	e.audit(cmd)

	if cmd.Status == StatusFailed {
		e.logger.Error("Command failed", "id", cmd.ID, "kind", cmd.Kind, "error", cmd.Err)
	} else {
		e.logger.Info("Command succeeded", "id", cmd.ID, "kind", cmd.Kind,
			"duration", cmd.FinishedAt.Sub(cmd.StartedAt))
	}
}

func (e *Engine) audit(cmd *Command) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.RecordCommand(cmd); err != nil {
		e.logger.Error("Failed to audit command", "id", cmd.ID, "error", err)
	}
}
