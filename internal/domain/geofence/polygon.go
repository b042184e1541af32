// Package geofence implements the containment primitive, the GeoJSON
// ingestion boundary and the active fence registry.
package geofence

import (
	"math"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// FallbackReason explains why a containment result was not computed.
type FallbackReason string

// Fallback reasons. Both resolve to inside.
const (
	FallbackNone            FallbackReason = ""
	FallbackNoFence         FallbackReason = "no_fence"
	FallbackInvalidGeometry FallbackReason = "invalid_geometry"
)

// minArea is the smallest ring area, in squared degrees, treated as a polygon.
const minArea = 1e-15

// Result is the outcome of a containment check.
type Result struct {
	Inside   bool
	Computed bool
	Fallback FallbackReason
}

// Polygon is an immutable fence geometry. The zero value is "no fence".
type Polygon struct {
	vertices []model.Point
	ring     orb.Ring
	fallback FallbackReason
}

// NewPolygon builds a polygon from (lat, lon) vertices.
// The input is normalised and copied; later changes to it have no effect.
func NewPolygon(vertices []model.Point) Polygon {
	vs := Normalize(vertices)
	p := Polygon{vertices: vs}
	if len(vs) < model.MinFenceVertices {
		p.fallback = FallbackNoFence
		return p
	}

	// orb rings are closed; x is longitude, y is latitude.
	ring := make(orb.Ring, 0, len(vs)+1)
	for _, v := range vs {
		ring = append(ring, orb.Point{v.Lon, v.Lat})
	}
	ring = append(ring, ring[0])
	p.ring = ring
	if !validRing(ring) {
		p.fallback = FallbackInvalidGeometry
	}
	return p
}

// Vertices returns a copy of the open ring.
func (p Polygon) Vertices() []model.Point {
	return append([]model.Point(nil), p.vertices...)
}

// Len returns the vertex count after normalisation.
func (p Polygon) Len() int {
	return len(p.vertices)
}

// Defined reports whether the polygon restricts anything.
func (p Polygon) Defined() bool {
	return p.fallback == FallbackNone && len(p.vertices) >= model.MinFenceVertices
}

// Fallback reports why Contains will not compute, if it won't.
func (p Polygon) Fallback() FallbackReason {
	if len(p.vertices) < model.MinFenceVertices {
		return FallbackNoFence
	}
	return p.fallback
}

// Contains reports whether pt lies inside the polygon. Boundary points are inside.
// Missing or broken geometry fails open.
func (p Polygon) Contains(pt model.Point) Result {
	if reason := p.Fallback(); reason != FallbackNone {
		return Result{Inside: true, Fallback: reason}
	}
	return Result{
		Inside:   planar.RingContains(p.ring, orb.Point{pt.Lon, pt.Lat}),
		Computed: true,
	}
}

// Contains is a one-shot check of pt against vertices.
func Contains(pt model.Point, vertices []model.Point) bool {
	return NewPolygon(vertices).Contains(pt).Inside
}

// Normalize drops repeated consecutive vertices and a closing vertex equal to the first.
func Normalize(vertices []model.Point) []model.Point {
	out := make([]model.Point, 0, len(vertices))
	for _, v := range vertices {
		if n := len(out); n > 0 && out[n-1] == v {
			continue
		}
		out = append(out, v)
	}
	for len(out) > 1 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}
	return out
}

func validRing(ring orb.Ring) bool {
	for _, pt := range ring {
		if !finite(pt[0]) || !finite(pt[1]) {
			return false
		}
	}
	if math.Abs(planar.Area(ring)) < minArea {
		return false
	}
	return !selfIntersects(ring[:len(ring)-1])
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
