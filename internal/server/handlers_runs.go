package server

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tantiya-io/tantiya/internal/model"
)

// HandleExecuteRun handles POST /v1/projects/{project_id}/runs.
// The request carries the raw quantity lines produced by the external
// takeoff extractor; the response is the terminal run, including BOQ
// lines and any per-line validation errors.
func (h *Handlers) HandleExecuteRun(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "project_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req model.ExecuteRunRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("tantiya.project_id", projectID.String()),
		attribute.Int("tantiya.raw_lines", len(req.RawLines)),
	)

	run, err := h.pipelineSvc.ExecuteRun(r.Context(), projectID, req.RawLines)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, run)
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathUUID(r, "run_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	run, err := h.db.GetRun(r.Context(), runID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleListRuns handles GET /v1/projects/{project_id}/runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "project_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	runs, err := h.db.ListRuns(r.Context(), projectID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.CalculationRun{}
	}
	writeJSON(w, r, http.StatusOK, runs)
}
