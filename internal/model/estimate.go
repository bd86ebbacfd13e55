package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CostEstimate is a numbered, priced snapshot derived from one takeoff
// version's BOQ. Markup percentages are captured as decimal fractions at
// creation time. Lifecycle is the same four-transition machine as
// TakeoffVersion; multiple estimates may coexist per project, with the
// most recently approved ordinal treated as active.
type CostEstimate struct {
	ID               uuid.UUID      `json:"id"`
	ProjectID        uuid.UUID      `json:"project_id"`
	TakeoffVersionID uuid.UUID      `json:"takeoff_version_id"`
	EstimateOrdinal  int            `json:"estimate_ordinal"`
	EstimateNumber   string         `json:"estimate_number"`
	Status           ApprovalStatus `json:"status"`
	OCMPct           float64        `json:"ocm_pct"`
	CPPct            float64        `json:"cp_pct"`
	VATPct           float64        `json:"vat_pct"`
	CostSummary      CostSummary    `json:"cost_summary"`
	EstimateLines    []CostLine     `json:"estimate_lines,omitempty"`

	SubmittedBy    string     `json:"submitted_by,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	ApprovedBy     string     `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedReason string     `json:"rejected_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EstimateNumber derives the human-facing estimate number from a project
// id and an ordinal: EST-<first 8 hex of project id>-<zero-padded ordinal>.
// Ordinals are assigned transactionally, so the derived number is unique
// per project.
func EstimateNumber(projectID uuid.UUID, ordinal int) string {
	return fmt.Sprintf("EST-%s-%03d", projectID.String()[:8], ordinal)
}
