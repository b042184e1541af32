package model

import (
	"fmt"
	"strings"
	"time"
)

// PositionFix is a single observed position for an entity.
type PositionFix struct {
	FixID    string // idempotency key
	EntityID string
	Lat      float64
	Lon      float64
	Battery  *int
	TS       time.Time
}

// Point returns the fix position.
func (f PositionFix) Point() Point {
	return Point{Lat: f.Lat, Lon: f.Lon}
}

// Validate checks the fix fields.
func (f PositionFix) Validate() error {
	if strings.TrimSpace(f.EntityID) == "" {
		return fmt.Errorf("%w: entity_id is required", ErrInvalidPosition)
	}
	if !f.Point().Valid() {
		return fmt.Errorf("%w: lat/lon out of range (%v, %v)", ErrInvalidPosition, f.Lat, f.Lon)
	}
	if f.Battery != nil && (*f.Battery < 0 || *f.Battery > 100) {
		return fmt.Errorf("%w: battery must be within 0..100", ErrInvalidPosition)
	}
	return nil
}

// ContainmentEvent pairs the previous and new status of one evaluation.
type ContainmentEvent struct {
	EntityID   string
	EntityName string
	Previous   Status
	Current    Status
	Position   Point
	Battery    *int
	Fence      string
	At         time.Time
}

// Exited reports whether the event is an INSIDE to OUTSIDE transition.
func (e ContainmentEvent) Exited() bool {
	return e.Previous == StatusInside && e.Current == StatusOutside
}

// Alert is a notification produced for an exit event.
type Alert struct {
	ID      string
	Event   ContainmentEvent
	Message string
}

// PassSummary reports the outcome of one evaluation pass.
type PassSummary struct {
	Fence     string        `json:"fence"`
	Evaluated int           `json:"evaluated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Alerts    int           `json:"alerts"`
	Inside    int           `json:"inside"`
	Outside   int           `json:"outside"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}
