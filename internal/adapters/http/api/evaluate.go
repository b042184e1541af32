package api

import (
	"context"
	"net/http"

	"github.com/okian/herdwatch/internal/domain/model"
)

// EvaluateDependencies runs an evaluation pass on demand.
type EvaluateDependencies interface {
	EvaluateNow(ctx context.Context) (model.PassSummary, error)
}

// EvaluateHandler handles POST /evaluate requests.
type EvaluateHandler struct {
	deps EvaluateDependencies
}

// NewEvaluateHandler creates a new evaluate handler.
func NewEvaluateHandler(deps EvaluateDependencies) *EvaluateHandler {
	return &EvaluateHandler{deps: deps}
}

// HandleEvaluate runs one pass over all entities and returns its summary.
func (h *EvaluateHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.EvaluateNow(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
