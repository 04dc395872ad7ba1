package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/planner"
	"github.com/Kinetic-Labs/kinetic-relay/sponsor"
)

// PlanResponse carries the scored candidates for a preview request, best
// first. An empty list is a valid answer: no venue produced a usable quote.
type PlanResponse struct {
	Candidates []planner.RouteCandidate `json:"candidates"`
}

// planHandler serves route previews. Planning is a read-only diagnostic
// here; execution always re-plans inside the submission pipeline.
type planHandler struct {
	planner *planner.Planner
	metrics *Metrics
}

func newPlanHandler(p *planner.Planner, m *Metrics) *planHandler {
	return &planHandler{planner: p, metrics: m}
}

// handlePlan - POST /plan
func (h *planHandler) handlePlan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSponsorBodyBytes)

	var intent models.Intent
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, &models.ErrorResponse{
			Category: string(sponsor.CategoryValidation),
			Reason:   "malformed request body: " + err.Error(),
		})
		return
	}
	if err := intent.Validate(time.Now()); err != nil {
		writeError(w, http.StatusBadRequest, &models.ErrorResponse{
			Category: string(sponsor.CategoryValidation),
			Reason:   err.Error(),
		})
		return
	}

	candidates, err := h.planner.PlanRoutes(r.Context(), &intent)
	if err != nil {
		status := http.StatusInternalServerError
		if !errors.Is(err, planner.ErrNoAdaptersConfigured) {
			status = http.StatusBadGateway
		}
		writeError(w, status, &models.ErrorResponse{
			Category: string(sponsor.CategoryInfrastructure),
			Reason:   err.Error(),
		})
		return
	}

	if h.metrics != nil {
		h.metrics.PlanExecuted(len(candidates))
	}
	writeJSON(w, http.StatusOK, &PlanResponse{Candidates: candidates})
}
