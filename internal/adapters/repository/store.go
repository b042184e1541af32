// Package repository persists tracked entities and geofences.
//
// Three backends implement the same interfaces: in-memory maps, SQLite and
// PostgreSQL. Which one is used is deployment configuration.
package repository

import (
	"context"

	"github.com/okian/herdwatch/internal/domain/model"
)

// EntityStore provides read/write access to tracked entities.
type EntityStore interface {
	// Create inserts a new entity. Returns ErrConflict if the id exists.
	Create(ctx context.Context, e model.TrackedEntity) error
	// Get returns model.ErrEntityNotFound for unknown ids.
	Get(ctx context.Context, id string) (model.TrackedEntity, error)
	// List returns all entities ordered by creation time.
	List(ctx context.Context) ([]model.TrackedEntity, error)
	Delete(ctx context.Context, id string) error
	// UpdateState writes the result of one evaluation in a single statement.
	UpdateState(ctx context.Context, id string, u model.StateUpdate) error
}

// FenceStore provides read/write access to named geofences.
type FenceStore interface {
	// Get returns model.ErrFenceNotFound for unknown names.
	Get(ctx context.Context, name string) (model.Geofence, error)
	// Replace swaps the whole vertex list of name atomically, creating it if needed.
	Replace(ctx context.Context, name string, vertices []model.Point) (model.Geofence, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]model.Geofence, error)
}

// Stores bundles both stores of one backend.
type Stores struct {
	Entities EntityStore
	Fences   FenceStore
	Driver   string
	closer   func() error
}

// Close releases the backend connection, if any.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
