// Package types contains the read shapes shared by the service and the HTTP API.
package types

import (
	"encoding/json"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
)

// EntityView is the external representation of a tracked entity.
type EntityView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Position  *model.Point `json:"position,omitempty"`
	Battery   *int         `json:"battery,omitempty"`
	Status    model.Status `json:"status"`
	LastFixAt *time.Time   `json:"last_fix_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewEntityView converts a model entity.
func NewEntityView(e model.TrackedEntity) EntityView {
	e = e.Clone()
	v := EntityView{
		ID:        e.ID,
		Name:      e.Name,
		Position:  e.Position,
		Battery:   e.Battery,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if !e.LastFixAt.IsZero() {
		t := e.LastFixAt
		v.LastFixAt = &t
	}
	return v
}

// EntityInput is the operator input for registering an entity.
type EntityInput struct {
	ID       string       `json:"id,omitempty"` // generated when empty
	Name     string       `json:"name"`
	Position *model.Point `json:"position,omitempty"` // evaluated immediately when set
	Battery  *int         `json:"battery,omitempty"`
}

// FenceView is the external representation of a geofence. Vertices are
// (lat, lon); GeoJSON carries the same ring in [lon, lat] order.
type FenceView struct {
	Name      string          `json:"name"`
	Vertices  []model.Point   `json:"vertices"`
	Defined   bool            `json:"defined"`
	UpdatedAt time.Time       `json:"updated_at"`
	GeoJSON   json.RawMessage `json:"geojson,omitempty"`
}

// SubmitResult acknowledges an ingested position fix.
type SubmitResult struct {
	FixID     string `json:"fix_id"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
}

// Stats reports service state for monitoring.
type Stats struct {
	Started       bool               `json:"started"`
	Store         string             `json:"store"`
	Fence         string             `json:"fence"`
	FenceVertices int                `json:"fence_vertices"`
	Entities      int                `json:"entities"`
	ByStatus      map[string]int     `json:"by_status"`
	WorkerCount   int                `json:"worker_count"`
	QueueLength   int                `json:"queue_length"`
	QueueCapacity int                `json:"queue_capacity"`
	DedupeSize    int64              `json:"dedupe_size"`
	PendingAlerts int                `json:"pending_alerts"`
	LastPass      *model.PassSummary `json:"last_pass,omitempty"`
}
