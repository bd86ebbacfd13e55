package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard success envelope.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta carries request correlation info.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// ExecuteRunRequest is the request body for POST /v1/projects/{project_id}/runs.
// Raw lines come from the external takeoff extractor.
type ExecuteRunRequest struct {
	RawLines []RawQuantityLine `json:"raw_lines"`
}

// CreateTakeoffVersionRequest is the request body for
// POST /v1/projects/{project_id}/takeoffs.
type CreateTakeoffVersionRequest struct {
	Label           string         `json:"label"`
	Type            string         `json:"type,omitempty"`
	Snapshot        DesignSnapshot `json:"snapshot"`
	SourceRunID     *uuid.UUID     `json:"source_run_id,omitempty"`
	ParentVersionID *uuid.UUID     `json:"parent_version_id,omitempty"`
	ChangesSummary  string         `json:"changes_summary,omitempty"`
}

// UpdateSnapshotRequest replaces the snapshot fields of a draft version.
type UpdateSnapshotRequest struct {
	Label    *string         `json:"label,omitempty"`
	Snapshot *DesignSnapshot `json:"snapshot,omitempty"`
	BOQLines []BOQLine       `json:"boq_lines,omitempty"`
}

// TransitionRequest carries the actor for submit/approve and the reason
// for reject.
type TransitionRequest struct {
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// CreateEstimateRequest is the request body for
// POST /v1/takeoffs/{takeoff_id}/estimates. Percentages accept either
// decimal fractions (0.12) or whole-number percents (12); they are
// normalized at the boundary. Nil means use the configured default.
type CreateEstimateRequest struct {
	OCMPct *float64    `json:"ocm_pct,omitempty"`
	CPPct  *float64    `json:"cp_pct,omitempty"`
	VATPct *float64    `json:"vat_pct,omitempty"`
	Rates  []RateInput `json:"rates"`
}

// UpdateCostLineRequest is the request body for the single-line quantity
// edit. Only the quantity may change; the unit cost is fixed.
type UpdateCostLineRequest struct {
	Quantity float64 `json:"quantity"`
}
