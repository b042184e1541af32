package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/domain/types"
)

// EntityDependencies defines the entity operations used by the handlers.
type EntityDependencies interface {
	RegisterEntity(ctx context.Context, in types.EntityInput) (model.TrackedEntity, error)
	RemoveEntity(ctx context.Context, id string) error
	Entity(ctx context.Context, id string) (model.TrackedEntity, error)
	Entities(ctx context.Context) ([]model.TrackedEntity, error)
}

// EntitiesHandler handles /entities requests.
type EntitiesHandler struct {
	deps EntityDependencies
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(deps EntityDependencies) *EntitiesHandler {
	return &EntitiesHandler{deps: deps}
}

// entityRequest mirrors the OpenAPI schema for POST /entities.
type entityRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Battery *int     `json:"battery"`
}

func (e entityRequest) input() (types.EntityInput, error) {
	in := types.EntityInput{ID: e.ID, Name: e.Name, Battery: e.Battery}
	switch {
	case strings.TrimSpace(e.Name) == "":
		return in, wrapKind("api.create_entity", ErrBadRequest, errMissing("name"))
	case (e.Lat == nil) != (e.Lon == nil):
		return in, wrapKind("api.create_entity", ErrBadRequest, errMissing("lat and lon together"))
	case e.Lat != nil:
		in.Position = &model.Point{Lat: *e.Lat, Lon: *e.Lon}
	}
	return in, nil
}

type entityListResponse struct {
	Entities []types.EntityView `json:"entities"`
	Count    int                `json:"count"`
}

// HandleList handles GET /entities requests.
func (h *EntitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ents, err := h.deps.Entities(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityListResponse{Entities: entityViews(ents), Count: len(ents)})
}

// HandleCreate handles POST /entities requests.
func (h *EntitiesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_entity"
	var req entityRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	e, err := h.deps.RegisterEntity(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.NewEntityView(e))
}

// HandleGet handles GET /entities/{id} requests.
func (h *EntitiesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.Entity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewEntityView(e))
}

// HandleDelete handles DELETE /entities/{id} requests.
func (h *EntitiesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.RemoveEntity(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
