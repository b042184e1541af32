package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/domain/types"
)

// PositionDependencies defines the ingestion operation used by the handler.
type PositionDependencies interface {
	SubmitFix(ctx context.Context, fix model.PositionFix) (types.SubmitResult, error)
}

// PositionsHandler handles position fix requests.
type PositionsHandler struct {
	deps    PositionDependencies
	limiter *rate.Limiter // nil means unlimited
}

// NewPositionsHandler creates a new positions handler.
func NewPositionsHandler(deps PositionDependencies, limiter *rate.Limiter) *PositionsHandler {
	return &PositionsHandler{deps: deps, limiter: limiter}
}

// positionRequest mirrors the OpenAPI schema for POST /positions.
type positionRequest struct {
	FixID    string   `json:"fix_id"`
	EntityID string   `json:"entity_id"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Battery  *int     `json:"battery"`
	TS       string   `json:"ts"`
}

func errMissing(field string) error {
	return errors.New("missing " + field)
}

func (p positionRequest) fix() (model.PositionFix, error) {
	switch {
	case strings.TrimSpace(p.EntityID) == "":
		return model.PositionFix{}, errMissing("entity_id")
	case p.Lat == nil:
		return model.PositionFix{}, errMissing("lat")
	case p.Lon == nil:
		return model.PositionFix{}, errMissing("lon")
	}
	fix := model.PositionFix{
		FixID:    strings.TrimSpace(p.FixID),
		EntityID: p.EntityID,
		Lat:      *p.Lat,
		Lon:      *p.Lon,
		Battery:  p.Battery,
	}
	if p.TS != "" {
		ts, err := time.Parse(time.RFC3339, p.TS)
		if err != nil {
			return model.PositionFix{}, errors.New("invalid ts; must be RFC3339")
		}
		fix.TS = ts
	}
	return fix, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	FixID     string `json:"fix_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostPosition handles POST /positions requests.
func (h *PositionsHandler) HandlePostPosition(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_position"
	if h.limiter != nil && !h.limiter.Allow() {
		writeServiceError(w, wrapKind(op, ErrRateLimited, nil))
		return
	}

	var req positionRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	fix, err := req.fix()
	if err != nil {
		writeServiceError(w, wrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.SubmitFix(r.Context(), fix)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", FixID: res.FixID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", FixID: res.FixID})
}
