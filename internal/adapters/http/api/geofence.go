package api

import (
	"context"
	"io"
	"net/http"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/domain/types"
)

// FenceDependencies defines the geofence operations used by the handler.
type FenceDependencies interface {
	ReplaceFenceGeoJSON(ctx context.Context, data []byte) (model.Geofence, error)
	FenceView(ctx context.Context) (types.FenceView, error)
	DeleteFence(ctx context.Context) error
}

// FenceHandler handles /geofence requests.
type FenceHandler struct {
	deps FenceDependencies
}

// NewFenceHandler creates a new geofence handler.
func NewFenceHandler(deps FenceDependencies) *FenceHandler {
	return &FenceHandler{deps: deps}
}

// HandleGet handles GET /geofence requests.
func (h *FenceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.FenceView(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandlePut handles PUT /geofence requests. The body is a GeoJSON Polygon,
// Feature or FeatureCollection with [lon, lat] positions.
func (h *FenceHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_geofence"
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeServiceError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	if _, err := h.deps.ReplaceFenceGeoJSON(r.Context(), data); err != nil {
		writeServiceError(w, err)
		return
	}
	v, err := h.deps.FenceView(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleDelete handles DELETE /geofence requests.
func (h *FenceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteFence(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
