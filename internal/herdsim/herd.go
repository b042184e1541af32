package herdsim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/pkg/logger"
)

// fenceName is the property written into the uploaded GeoJSON.
const fenceName = "herdsim-pasture"

// entityRequest mirrors the POST /entities body.
type entityRequest struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Battery int     `json:"battery"`
}

// newHerd places every animal on the pasture centre with a full battery.
func newHerd(config *Config) []Animal {
	herd := make([]Animal, config.Animals)
	for i := range herd {
		herd[i] = Animal{
			ID:       fmt.Sprintf("sim-%04d-%s", i, uuid.NewString()[:8]),
			Name:     fmt.Sprintf("cow %d", i),
			Position: config.Center,
			Battery:  fullBattery,
		}
	}
	return herd
}

// squareFence returns the four corners of a square around center, clockwise
// from the north-west corner.
func squareFence(center model.Point, halfSide float64) []model.Point {
	return []model.Point{
		{Lat: center.Lat + halfSide, Lon: center.Lon - halfSide},
		{Lat: center.Lat + halfSide, Lon: center.Lon + halfSide},
		{Lat: center.Lat - halfSide, Lon: center.Lon + halfSide},
		{Lat: center.Lat - halfSide, Lon: center.Lon - halfSide},
	}
}

// walk moves every animal by up to step degrees on each axis and drains
// the battery by at most one percent.
func walk(rng *rand.Rand, herd []Animal, step float64) {
	for i := range herd {
		a := &herd[i]
		a.Position.Lat = clamp(a.Position.Lat+(rng.Float64()*2-1)*step, -90, 90)
		a.Position.Lon = clamp(a.Position.Lon+(rng.Float64()*2-1)*step, -180, 180)
		if a.Battery > 0 && rng.IntN(2) == 0 {
			a.Battery--
		}
	}
}

// fixesFor builds one fix per animal stamped with ts.
func fixesFor(herd []Animal, ts time.Time) []Fix {
	fixes := make([]Fix, len(herd))
	stamp := ts.UTC().Format(time.RFC3339Nano)
	for i, a := range herd {
		fixes[i] = Fix{
			FixID:    uuid.NewString(),
			EntityID: a.ID,
			Lat:      a.Position.Lat,
			Lon:      a.Position.Lon,
			Battery:  a.Battery,
			TS:       stamp,
		}
	}
	return fixes
}

// expectedOutside counts animals whose position lies outside the fence.
func expectedOutside(herd []Animal, fence geofence.Polygon) map[string]bool {
	out := make(map[string]bool)
	for _, a := range herd {
		if !fence.Contains(a.Position).Inside {
			out[a.ID] = true
		}
	}
	return out
}

// registerHerd creates every animal on the service.
func registerHerd(ctx context.Context, client *HTTPClient, herd []Animal, stats *Stats) error {
	logger.Get().Info(ctx, "registering herd", logger.Int("animals", len(herd)))
	for _, a := range herd {
		req := entityRequest{
			ID:      a.ID,
			Name:    a.Name,
			Lat:     a.Position.Lat,
			Lon:     a.Position.Lon,
			Battery: a.Battery,
		}
		if _, err := client.DoJSON(ctx, http.MethodPost, "/entities", req, nil, http.StatusCreated); err != nil {
			return fmt.Errorf("register %s: %w", a.ID, err)
		}
		stats.AnimalsRegistered++
	}
	return nil
}

// uploadFence replaces the active fence with the given vertices.
func uploadFence(ctx context.Context, client *HTTPClient, vertices []model.Point) error {
	body, err := geofence.ToGeoJSON(fenceName, vertices)
	if err != nil {
		return fmt.Errorf("encode fence: %w", err)
	}
	if _, err := client.DoJSON(ctx, http.MethodPut, "/geofence", body, nil, http.StatusOK); err != nil {
		return fmt.Errorf("upload fence: %w", err)
	}
	logger.Get().Info(ctx, "fence uploaded", logger.Int("vertices", len(vertices)))
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
