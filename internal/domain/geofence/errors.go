package geofence

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidGeoJSON = errors.New("invalid geojson")
	ErrNoPolygon      = errors.New("geojson contains no polygon")
	ErrTooFewVertices = errors.New("geofence needs at least 3 vertices")
)
