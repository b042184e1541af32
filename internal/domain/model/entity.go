package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Point is a (latitude, longitude) pair in degrees.
// All domain code uses this order; GeoJSON (lon, lat) is converted at ingest.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is finite and within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// TrackedEntity is an animal (or any asset) whose position is monitored.
type TrackedEntity struct {
	ID        string
	Name      string
	Position  *Point // nil until the first fix arrives
	Battery   *int   // percent, nil when unknown
	Status    Status
	LastFixAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPosition reports whether the entity has received a fix.
func (e TrackedEntity) HasPosition() bool {
	return e.Position != nil
}

// Clone returns a deep copy.
func (e TrackedEntity) Clone() TrackedEntity {
	out := e
	if e.Position != nil {
		p := *e.Position
		out.Position = &p
	}
	if e.Battery != nil {
		b := *e.Battery
		out.Battery = &b
	}
	return out
}

// Validate checks operator supplied fields.
func (e TrackedEntity) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntity)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	if e.Position != nil && !e.Position.Valid() {
		return fmt.Errorf("%w: position out of range", ErrInvalidEntity)
	}
	if e.Battery != nil && (*e.Battery < 0 || *e.Battery > 100) {
		return fmt.Errorf("%w: battery must be within 0..100", ErrInvalidEntity)
	}
	return nil
}

// StateUpdate is the single write performed after an evaluation.
// Nil pointer fields are left unchanged.
type StateUpdate struct {
	Position  *Point
	Battery   *int
	Status    Status
	LastFixAt time.Time
}
