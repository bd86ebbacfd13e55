package model

import (
	"time"

	"github.com/google/uuid"
)

// GridAxis is one labeled axis line of the structural grid.
type GridAxis struct {
	Label   string  `json:"label"`
	Offset  float64 `json:"offset"`
	Spacing float64 `json:"spacing,omitempty"`
}

// Grid is the structural grid of the design snapshot.
type Grid struct {
	XAxes      []GridAxis     `json:"x_axes"`
	YAxes      []GridAxis     `json:"y_axes"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Level is one floor level in the design snapshot.
type Level struct {
	Name       string         `json:"name"`
	Elevation  float64        `json:"elevation"`
	Height     float64        `json:"height"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ElementTemplate defines a reusable element type (a column section, a
// wall build-up, a roofing profile). Category is a closed tag — the
// pipeline treats each category's attribute bag as opaque but the tag
// itself is checked.
type ElementTemplate struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ElementInstance places a template in the model.
type ElementInstance struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	LevelName  string         `json:"level_name,omitempty"`
	Count      int            `json:"count"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// DesignSnapshot is the full quantity-producing design state frozen into
// a takeoff version. The version exclusively owns every embedded array;
// nothing here is shared between versions.
type DesignSnapshot struct {
	Grid             Grid              `json:"grid"`
	Levels           []Level           `json:"levels"`
	ElementTemplates []ElementTemplate `json:"element_templates"`
	ElementInstances []ElementInstance `json:"element_instances"`
}

// ComputedTotals are headline quantities captured when a version is frozen.
type ComputedTotals struct {
	TotalsByTrade map[string]float64 `json:"totals_by_trade,omitempty"`
	TotalsByPart  map[string]float64 `json:"totals_by_part,omitempty"`
}

// TakeoffVersion is a numbered, frozen snapshot of a project's design
// state and its aggregated BOQ. (ProjectID, VersionNumber) is unique and
// numbers are never reused. Snapshot fields may only change while the
// status is draft.
type TakeoffVersion struct {
	ID              uuid.UUID      `json:"id"`
	ProjectID       uuid.UUID      `json:"project_id"`
	VersionNumber   int            `json:"version_number"`
	Label           string         `json:"label"`
	Type            string         `json:"type,omitempty"`
	Status          ApprovalStatus `json:"status"`
	Snapshot        DesignSnapshot `json:"snapshot"`
	ComputedTotals  ComputedTotals `json:"computed_totals"`
	BOQLines        []BOQLine      `json:"boq_lines"`
	SourceRunID     *uuid.UUID     `json:"source_run_id,omitempty"`
	ParentVersionID *uuid.UUID     `json:"parent_version_id,omitempty"`
	ChangesSummary  string         `json:"changes_summary,omitempty"`

	SubmittedBy    string     `json:"submitted_by,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	ApprovedBy     string     `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedReason string     `json:"rejected_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
