// Package model defines the core domain types for Tantiya.
//
// Types correspond directly to database rows and API payloads. Strong
// typing (UUIDs, time.Time, status enums) is used throughout; the only
// loosely-typed fields are the per-category attribute bags on design
// snapshot records, which carry tool-specific data the pipeline never
// interprets.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a calculation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the run can no longer change. Terminal runs
// are immutable; concurrent reads need no coordination.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RawQuantityLine is one measured quantity derived from one design element
// by the external takeoff extractor. Immutable once its run completes.
type RawQuantityLine struct {
	ID              uuid.UUID      `json:"id"`
	SourceElementID string         `json:"source_element_id"`
	Trade           string         `json:"trade"`
	ResourceKey     string         `json:"resource_key"`
	Quantity        float64        `json:"quantity"`
	Unit            string         `json:"unit"`
	FormulaText     string         `json:"formula_text,omitempty"`
	InputsSnapshot  map[string]any `json:"inputs_snapshot,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
}

// BOQLine is one standardized pay-item quantity produced by aggregation.
// Quantity is the sum of all contributing raw lines; SourceRawLineIDs is
// never empty. BOQ lines carry no pricing.
type BOQLine struct {
	ID               uuid.UUID   `json:"id"`
	PayItemNumber    string      `json:"pay_item_number"`
	Description      string      `json:"description"`
	Unit             string      `json:"unit"`
	Quantity         float64     `json:"quantity"`
	Part             string      `json:"part"`
	SourceRawLineIDs []uuid.UUID `json:"source_raw_line_ids"`
	Tags             []string    `json:"tags,omitempty"`
}

// RunSummary aggregates a completed run for list views.
type RunSummary struct {
	RawLineCount  int     `json:"raw_line_count"`
	BOQLineCount  int     `json:"boq_line_count"`
	TotalQuantity float64 `json:"total_quantity"`
	PartCount     int     `json:"part_count"`
}

// CalculationRun records one pass of the quantity pipeline: the raw lines
// consumed, the BOQ lines produced, and any per-line validation errors.
// Once the status is terminal the run is never mutated again.
type CalculationRun struct {
	ID               uuid.UUID         `json:"id"`
	ProjectID        uuid.UUID         `json:"project_id"`
	Status           RunStatus         `json:"status"`
	RawLines         []RawQuantityLine `json:"raw_lines,omitempty"`
	BOQLines         []BOQLine         `json:"boq_lines,omitempty"`
	Summary          RunSummary        `json:"summary"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}
