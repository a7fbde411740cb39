// Package repository persists the command audit trail to a local sqlite database.
// Every lifecycle transition of every command is recorded, so operator actions can
// be reconstructed after the fact.
package repository

import (
	"fmt"

	"github.com/cepro/plantcontroller/command"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Repository stores command audit records on the local file system (sqlite).
type Repository struct {
	db *gorm.DB
}

// New opens (or creates) the database at path and migrates the schema.
func New(path string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&StoredCommand{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{
		db: db,
	}, nil
}

// RecordCommand upserts the audit row for the command, keyed by its ID. Called on
// every lifecycle transition; the stored row always reflects the latest state.
func (r *Repository) RecordCommand(cmd *command.Command) error {
	result := r.db.Save(newStoredCommand(cmd))
	return result.Error
}

// Commands returns the most recent audit rows, newest first.
func (r *Repository) Commands(limit int) ([]StoredCommand, error) {
	var rows []StoredCommand

	result := r.db.Limit(limit).Order("created_at desc").Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	return rows, nil
}
