package repository

import (
	"time"

	"github.com/cepro/plantcontroller/command"
)

// StoredCommand is the audit row for one command, persisted to the SQLite database.
// Timestamps of phases not yet reached are null.
type StoredCommand struct {
	ID         string `gorm:"primaryKey"`
	Kind       string
	Target     string
	Status     string
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

func newStoredCommand(cmd *command.Command) StoredCommand {
	stored := StoredCommand{
		ID:        cmd.ID.String(),
		Kind:      string(cmd.Kind),
		Target:    string(cmd.Target),
		Status:    string(cmd.Status),
		Error:     cmd.Err,
		CreatedAt: cmd.CreatedAt,
	}
	if !cmd.StartedAt.IsZero() {
		started := cmd.StartedAt
		stored.StartedAt = &started
	}
	if !cmd.FinishedAt.IsZero() {
		finished := cmd.FinishedAt
		stored.FinishedAt = &finished
	}
	return stored
}
