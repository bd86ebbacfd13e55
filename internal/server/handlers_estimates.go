package server

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tantiya-io/tantiya/internal/model"
)

// HandleCreateEstimate handles POST /v1/takeoffs/{takeoff_id}/estimates.
// The request carries the per-pay-item rate tables from the master-data
// collaborator plus optional markup overrides.
func (h *Handlers) HandleCreateEstimate(w http.ResponseWriter, r *http.Request) {
	takeoffID, err := pathUUID(r, "takeoff_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req model.CreateEstimateRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	est, err := h.estimateSvc.Create(r.Context(), takeoffID, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("tantiya.estimate_number", est.EstimateNumber),
		attribute.Float64("tantiya.grand_total", est.CostSummary.GrandTotal),
	)
	writeJSON(w, r, http.StatusCreated, est)
}

// HandleGetEstimate handles GET /v1/estimates/{estimate_id}.
func (h *Handlers) HandleGetEstimate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "estimate_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	est, err := h.db.GetCostEstimate(r.Context(), id, true)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, est)
}

// HandleListEstimates handles GET /v1/projects/{project_id}/estimates.
func (h *Handlers) HandleListEstimates(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "project_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	ests, err := h.db.ListCostEstimates(r.Context(), projectID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if ests == nil {
		ests = []model.CostEstimate{}
	}
	writeJSON(w, r, http.StatusOK, ests)
}

// HandleGetActiveEstimate handles GET /v1/projects/{project_id}/estimates/active.
func (h *Handlers) HandleGetActiveEstimate(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "project_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	est, err := h.db.GetActiveCostEstimate(r.Context(), projectID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, est)
}

// HandleEstimateTransition returns a handler for one of the submit,
// approve and reject endpoints.
func (h *Handlers) HandleEstimateTransition(action model.TransitionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "estimate_id")
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		req, err := h.transitionBody(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
			return
		}
		if action == model.ActionReject && req.Reason == "" {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "reject requires a reason")
			return
		}

		est, err := h.db.TransitionCostEstimate(r.Context(), id, action, req.Actor, req.Reason)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, est)
	}
}

// HandleUpdateCostLine handles PATCH /v1/estimates/{estimate_id}/lines/{line_id}.
// Quantity-only edit with O(1) recompute: the unit cost never changes.
func (h *Handlers) HandleUpdateCostLine(w http.ResponseWriter, r *http.Request) {
	estimateID, err := pathUUID(r, "estimate_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	lineID, err := pathUUID(r, "line_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req model.UpdateCostLineRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	est, err := h.estimateSvc.UpdateLineQuantity(r.Context(), estimateID, lineID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, est)
}
