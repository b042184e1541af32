package model

import "time"

// DefaultFenceName names the fence used when none is given.
const DefaultFenceName = "default"

// MinFenceVertices is the smallest vertex count that forms a fence.
const MinFenceVertices = 3

// Geofence is a named polygon stored as an open ring of (lat, lon) vertices.
type Geofence struct {
	Name      string
	Vertices  []Point
	UpdatedAt time.Time
}

// Defined reports whether the fence restricts anything.
func (g Geofence) Defined() bool {
	return len(g.Vertices) >= MinFenceVertices
}

// Clone returns a deep copy.
func (g Geofence) Clone() Geofence {
	out := g
	out.Vertices = append([]Point(nil), g.Vertices...)
	return out
}
