package geofence

import (
	"encoding/json"
	"fmt"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseGeoJSON extracts the outer ring of a polygon from a GeoJSON Polygon,
// MultiPolygon, Feature or FeatureCollection document.
//
// GeoJSON positions are [lon, lat]; the returned vertices are (lat, lon).
// This is the only place in the module where that swap happens.
func ParseGeoJSON(data []byte) ([]model.Point, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
	}

	var geom orb.Geometry
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
		}
		geom = f.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
		}
		for _, f := range fc.Features {
			if outerRing(f.Geometry) != nil {
				geom = f.Geometry
				break
			}
		}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidGeoJSON)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
		}
		geom = g.Geometry()
	}

	ring := outerRing(geom)
	if ring == nil {
		return nil, ErrNoPolygon
	}

	vertices := make([]model.Point, 0, len(ring))
	for _, pos := range ring {
		v := model.Point{Lat: pos.Lat(), Lon: pos.Lon()}
		if !v.Valid() {
			return nil, fmt.Errorf("%w: vertex out of range (lon %v, lat %v)", ErrInvalidGeoJSON, pos.Lon(), pos.Lat())
		}
		vertices = append(vertices, v)
	}
	return Normalize(vertices), nil
}

// ToGeoJSON encodes vertices as a GeoJSON Feature with a closed Polygon ring
// and a "name" property.
func ToGeoJSON(name string, vertices []model.Point) ([]byte, error) {
	vs := Normalize(vertices)
	if len(vs) < model.MinFenceVertices {
		return nil, ErrTooFewVertices
	}

	ring := make(orb.Ring, 0, len(vs)+1)
	for _, v := range vs {
		ring = append(ring, orb.Point{v.Lon, v.Lat})
	}
	ring = append(ring, ring[0])

	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties["name"] = name
	return json.Marshal(f)
}

func outerRing(g orb.Geometry) orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 0 {
			return v[0]
		}
	case orb.MultiPolygon:
		if len(v) > 0 && len(v[0]) > 0 {
			return v[0][0]
		}
	}
	return nil
}
