package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tantiya-io/tantiya/internal/model"
)

const estimateColumns = `id, project_id, takeoff_version_id, estimate_ordinal, estimate_number,
	status, ocm_pct, cp_pct, vat_pct, cost_summary, submitted_by, submitted_at,
	approved_by, approved_at, rejected_reason, created_at, updated_at`

// CreateCostEstimate persists a new draft estimate and its priced lines
// in one transaction. The ordinal is assigned as max+1 for the project
// under the unique constraint, with one retry on collision; the derived
// estimate number follows the ordinal, so it is collision-free too.
func (db *DB) CreateCostEstimate(ctx context.Context, est model.CostEstimate) (model.CostEstimate, error) {
	if est.ProjectID == uuid.Nil {
		return model.CostEstimate{}, fmt.Errorf("storage: create estimate: missing project id")
	}
	if est.TakeoffVersionID == uuid.Nil {
		return model.CostEstimate{}, fmt.Errorf("storage: create estimate: missing takeoff version id")
	}
	if est.ID == uuid.Nil {
		est.ID = uuid.New()
	}
	est.Status = model.StatusDraft
	now := time.Now().UTC()
	est.CreatedAt = now
	est.UpdatedAt = now

	for attempt := 0; attempt < 2; attempt++ {
		err := db.createEstimateOnce(ctx, &est)
		if err == nil {
			return est, nil
		}
		if !isUniqueViolation(err, "") {
			return model.CostEstimate{}, err
		}
		db.logger.Debug("estimate ordinal collision, retrying",
			"project_id", est.ProjectID, "attempt", attempt)
	}
	return model.CostEstimate{}, ErrDuplicateVersionNumber
}

func (db *DB) createEstimateOnce(ctx context.Context, est *model.CostEstimate) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(estimate_ordinal), 0) + 1 FROM cost_estimates WHERE project_id = $1`,
		est.ProjectID,
	).Scan(&est.EstimateOrdinal)
	if err != nil {
		return fmt.Errorf("storage: next estimate ordinal: %w", err)
	}
	est.EstimateNumber = model.EstimateNumber(est.ProjectID, est.EstimateOrdinal)

	_, err = tx.Exec(ctx,
		`INSERT INTO cost_estimates (id, project_id, takeoff_version_id, estimate_ordinal,
		   estimate_number, status, ocm_pct, cp_pct, vat_pct, cost_summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		est.ID, est.ProjectID, est.TakeoffVersionID, est.EstimateOrdinal, est.EstimateNumber,
		est.Status, est.OCMPct, est.CPPct, est.VATPct, est.CostSummary, est.CreatedAt, est.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return err
		}
		return fmt.Errorf("storage: insert estimate: %w", err)
	}

	for i := range est.EstimateLines {
		l := &est.EstimateLines[i]
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.EstimateID = est.ID
		l.Position = i
		_, err = tx.Exec(ctx,
			`INSERT INTO cost_lines (id, estimate_id, pay_item_number, description, unit, part,
			   quantity, labor_items, equipment_items, material_items, breakdown, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			l.ID, l.EstimateID, l.PayItemNumber, l.Description, l.Unit, l.Part,
			l.Quantity, l.LaborItems, l.EquipmentItems, l.MaterialItems, l.Breakdown, l.Position,
		)
		if err != nil {
			return fmt.Errorf("storage: insert cost line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit estimate: %w", err)
	}
	return nil
}

// GetCostEstimate retrieves an estimate, optionally with its lines.
func (db *DB) GetCostEstimate(ctx context.Context, id uuid.UUID, includeLines bool) (model.CostEstimate, error) {
	est, err := scanEstimate(db.pool.QueryRow(ctx,
		`SELECT `+estimateColumns+` FROM cost_estimates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CostEstimate{}, fmt.Errorf("storage: estimate %s: %w", id, ErrNotFound)
		}
		return model.CostEstimate{}, fmt.Errorf("storage: get estimate: %w", err)
	}
	if includeLines {
		est.EstimateLines, err = db.costLinesByEstimate(ctx, id)
		if err != nil {
			return model.CostEstimate{}, err
		}
	}
	return est, nil
}

// ListCostEstimates returns a project's estimates, newest ordinal first,
// without line detail.
func (db *DB) ListCostEstimates(ctx context.Context, projectID uuid.UUID) ([]model.CostEstimate, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+estimateColumns+` FROM cost_estimates
		 WHERE project_id = $1 ORDER BY estimate_ordinal DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: list estimates: %w", err)
	}
	defer rows.Close()

	var ests []model.CostEstimate
	for rows.Next() {
		est, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan estimate: %w", err)
		}
		ests = append(ests, est)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate estimates: %w", err)
	}
	return ests, nil
}

// GetActiveCostEstimate returns the approved estimate with the highest
// ordinal. ErrNotFound means no estimate has been approved yet.
func (db *DB) GetActiveCostEstimate(ctx context.Context, projectID uuid.UUID) (model.CostEstimate, error) {
	est, err := scanEstimate(db.pool.QueryRow(ctx,
		`SELECT `+estimateColumns+` FROM cost_estimates
		 WHERE project_id = $1 AND status = 'approved'
		 ORDER BY estimate_ordinal DESC LIMIT 1`, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CostEstimate{}, fmt.Errorf("storage: no approved estimate for project %s: %w", projectID, ErrNotFound)
		}
		return model.CostEstimate{}, fmt.Errorf("storage: get active estimate: %w", err)
	}
	return est, nil
}

// TransitionCostEstimate applies a state-machine action under a row lock,
// retried on transient serialization conflicts. Unlike takeoff versions,
// approving an estimate does not supersede older approved estimates; the
// active one is simply the latest approved.
func (db *DB) TransitionCostEstimate(ctx context.Context, id uuid.UUID, action model.TransitionAction, actor, reason string) (model.CostEstimate, error) {
	var est model.CostEstimate
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		var err error
		est, err = db.transitionEstimateTx(ctx, id, action, actor, reason)
		return err
	})
	return est, err
}

func (db *DB) transitionEstimateTx(ctx context.Context, id uuid.UUID, action model.TransitionAction, actor, reason string) (model.CostEstimate, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.CostEstimate{}, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	est, err := scanEstimate(tx.QueryRow(ctx,
		`SELECT `+estimateColumns+` FROM cost_estimates WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CostEstimate{}, fmt.Errorf("storage: estimate %s: %w", id, ErrNotFound)
		}
		return model.CostEstimate{}, fmt.Errorf("storage: lock estimate: %w", err)
	}

	next, err := est.Status.Transition(action)
	if err != nil {
		return model.CostEstimate{}, err
	}

	now := time.Now().UTC()
	est.Status = next
	est.UpdatedAt = now
	switch action {
	case model.ActionSubmit:
		est.SubmittedBy = actor
		est.SubmittedAt = &now
	case model.ActionApprove:
		est.ApprovedBy = actor
		est.ApprovedAt = &now
	case model.ActionReject:
		est.RejectedReason = reason
	}

	_, err = tx.Exec(ctx,
		`UPDATE cost_estimates SET status = $2, submitted_by = $3, submitted_at = $4,
		   approved_by = $5, approved_at = $6, rejected_reason = $7, updated_at = $8
		 WHERE id = $1`,
		est.ID, est.Status, est.SubmittedBy, est.SubmittedAt, est.ApprovedBy, est.ApprovedAt,
		est.RejectedReason, est.UpdatedAt,
	)
	if err != nil {
		return model.CostEstimate{}, fmt.Errorf("storage: update estimate status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.CostEstimate{}, fmt.Errorf("storage: commit transition: %w", err)
	}
	return est, nil
}

// UpdateCostLine saves one re-priced line and refreshes the parent
// estimate's summary. Line edits are last-writer-wins at single-line
// granularity; the estimate must still be a draft.
func (db *DB) UpdateCostLine(ctx context.Context, line model.CostLine, summary model.CostSummary) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status model.ApprovalStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM cost_estimates WHERE id = $1 FOR UPDATE`, line.EstimateID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("storage: estimate %s: %w", line.EstimateID, ErrNotFound)
		}
		return fmt.Errorf("storage: lock estimate: %w", err)
	}
	if !status.CanMutate() {
		return fmt.Errorf("storage: estimate %s has status %q: %w", line.EstimateID, status, ErrImmutable)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE cost_lines SET quantity = $3, breakdown = $4 WHERE id = $1 AND estimate_id = $2`,
		line.ID, line.EstimateID, line.Quantity, line.Breakdown,
	)
	if err != nil {
		return fmt.Errorf("storage: update cost line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: cost line %s: %w", line.ID, ErrNotFound)
	}

	_, err = tx.Exec(ctx,
		`UPDATE cost_estimates SET cost_summary = $2, updated_at = $3 WHERE id = $1`,
		line.EstimateID, summary, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: update estimate summary: %w", err)
	}
	return tx.Commit(ctx)
}

func (db *DB) costLinesByEstimate(ctx context.Context, estimateID uuid.UUID) ([]model.CostLine, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, estimate_id, pay_item_number, description, unit, part, quantity,
		   labor_items, equipment_items, material_items, breakdown, position
		 FROM cost_lines WHERE estimate_id = $1 ORDER BY position`, estimateID)
	if err != nil {
		return nil, fmt.Errorf("storage: query cost lines: %w", err)
	}
	defer rows.Close()

	var lines []model.CostLine
	for rows.Next() {
		var l model.CostLine
		if err := rows.Scan(&l.ID, &l.EstimateID, &l.PayItemNumber, &l.Description, &l.Unit,
			&l.Part, &l.Quantity, &l.LaborItems, &l.EquipmentItems, &l.MaterialItems,
			&l.Breakdown, &l.Position); err != nil {
			return nil, fmt.Errorf("storage: scan cost line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate cost lines: %w", err)
	}
	return lines, nil
}

func scanEstimate(row pgx.Row) (model.CostEstimate, error) {
	var est model.CostEstimate
	err := row.Scan(&est.ID, &est.ProjectID, &est.TakeoffVersionID, &est.EstimateOrdinal,
		&est.EstimateNumber, &est.Status, &est.OCMPct, &est.CPPct, &est.VATPct,
		&est.CostSummary, &est.SubmittedBy, &est.SubmittedAt, &est.ApprovedBy, &est.ApprovedAt,
		&est.RejectedReason, &est.CreatedAt, &est.UpdatedAt)
	return est, err
}
