package server

import (
	"net/http"

	"github.com/tantiya-io/tantiya/internal/model"
)

// HandleCreateTakeoffVersion handles POST /v1/projects/{project_id}/takeoffs.
func (h *Handlers) HandleCreateTakeoffVersion(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "project_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req model.CreateTakeoffVersionRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	v, err := h.pipelineSvc.CreateVersion(r.Context(), projectID, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, v)
}

// HandleGetTakeoffVersion handles GET /v1/takeoffs/{takeoff_id}.
func (h *Handlers) HandleGetTakeoffVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "takeoff_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	v, err := h.db.GetTakeoffVersion(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// HandleListTakeoffVersions handles GET /v1/projects/{project_id}/takeoffs.
func (h *Handlers) HandleListTakeoffVersions(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "project_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	versions, err := h.db.ListTakeoffVersions(r.Context(), projectID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if versions == nil {
		versions = []model.TakeoffVersion{}
	}
	writeJSON(w, r, http.StatusOK, versions)
}

// HandleGetActiveTakeoffVersion handles GET /v1/projects/{project_id}/takeoffs/active.
// A 404 here means "no approved version yet"; clients render a create
// prompt rather than an error.
func (h *Handlers) HandleGetActiveTakeoffVersion(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "project_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	v, err := h.db.GetActiveTakeoffVersion(r.Context(), projectID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// HandleUpdateTakeoffSnapshot handles PUT /v1/takeoffs/{takeoff_id}/snapshot.
// Legal only while the version is a draft.
func (h *Handlers) HandleUpdateTakeoffSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "takeoff_id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req model.UpdateSnapshotRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	v, err := h.db.UpdateTakeoffSnapshot(r.Context(), id, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// HandleTakeoffTransition returns a handler for one of the submit,
// approve and reject endpoints.
func (h *Handlers) HandleTakeoffTransition(action model.TransitionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "takeoff_id")
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

		v, err := h.db.TransitionTakeoffVersion(r.Context(), id, action, req.Actor, req.Reason)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, v)
	}
}
