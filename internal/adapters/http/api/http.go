// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	service "github.com/okian/herdwatch/internal/app"
	"github.com/okian/herdwatch/internal/adapters/repository"
	"github.com/okian/herdwatch/internal/domain/evaluator"
	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/domain/types"
)

// maxBodyBytes bounds request bodies; fence documents are the largest.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EntityDependencies
	PositionDependencies
	FenceDependencies
	EvaluateDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	entitiesHandler  *EntitiesHandler
	positionsHandler *PositionsHandler
	fenceHandler     *FenceHandler
	evaluateHandler  *EvaluateHandler
}

// Option configures a Server.
type Option func(*serverSettings)

type serverSettings struct {
	positionsLimiter *rate.Limiter
}

// WithPositionsRate limits POST /positions to rps requests per second with
// the given burst. rps <= 0 disables the limit.
func WithPositionsRate(rps float64, burst int) Option {
	return func(s *serverSettings) {
		if rps <= 0 {
			s.positionsLimiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.positionsLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	var st serverSettings
	for _, opt := range opts {
		opt(&st)
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		entitiesHandler:  NewEntitiesHandler(deps),
		positionsHandler: NewPositionsHandler(deps, st.positionsLimiter),
		fenceHandler:     NewFenceHandler(deps),
		evaluateHandler:  NewEvaluateHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /entities", MetricsMiddleware(s.entitiesHandler.HandleList, "entities"))
	mux.HandleFunc("POST /entities", MetricsMiddleware(s.entitiesHandler.HandleCreate, "entities"))
	mux.HandleFunc("GET /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleGet, "entity"))
	mux.HandleFunc("DELETE /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleDelete, "entity"))

	mux.HandleFunc("POST /positions", MetricsMiddleware(s.positionsHandler.HandlePostPosition, "positions"))

	mux.HandleFunc("GET /geofence", MetricsMiddleware(s.fenceHandler.HandleGet, "geofence"))
	mux.HandleFunc("PUT /geofence", MetricsMiddleware(s.fenceHandler.HandlePut, "geofence"))
	mux.HandleFunc("DELETE /geofence", MetricsMiddleware(s.fenceHandler.HandleDelete, "geofence"))

	mux.HandleFunc("POST /evaluate", MetricsMiddleware(s.evaluateHandler.HandleEvaluate, "evaluate"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and domain sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidPosition),
		errors.Is(err, model.ErrInvalidEntity),
		errors.Is(err, geofence.ErrInvalidGeoJSON),
		errors.Is(err, geofence.ErrNoPolygon),
		errors.Is(err, geofence.ErrTooFewVertices):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, model.ErrEntityNotFound), errors.Is(err, model.ErrFenceNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, evaluator.ErrStore):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return wrapKind(op, ErrBadRequest, err)
	}
	return nil
}

func entityViews(ents []model.TrackedEntity) []types.EntityView {
	out := make([]types.EntityView, len(ents))
	for i, e := range ents {
		out[i] = types.NewEntityView(e)
	}
	return out
}
