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

const takeoffColumns = `id, project_id, version_number, label, type, status, snapshot,
	computed_totals, boq_lines, source_run_id, parent_version_id, changes_summary,
	submitted_by, submitted_at, approved_by, approved_at, rejected_reason, created_at, updated_at`

// CreateTakeoffVersion inserts a new draft version. The version number is
// assigned inside the INSERT as max(existing)+1 for the project; the
// unique constraint on (project_id, version_number) catches a concurrent
// creation, which is retried once with a freshly computed number before
// surfacing ErrDuplicateVersionNumber. Numbers are never reused.
func (db *DB) CreateTakeoffVersion(ctx context.Context, v model.TakeoffVersion) (model.TakeoffVersion, error) {
	if v.ProjectID == uuid.Nil {
		return model.TakeoffVersion{}, fmt.Errorf("storage: create takeoff version: missing project id")
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.Status = model.StatusDraft
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.BOQLines == nil {
		v.BOQLines = []model.BOQLine{}
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := db.pool.QueryRow(ctx,
			`INSERT INTO takeoff_versions (id, project_id, version_number, label, type, status,
			   snapshot, computed_totals, boq_lines, source_run_id, parent_version_id,
			   changes_summary, created_at, updated_at)
			 VALUES ($1, $2,
			   (SELECT COALESCE(MAX(version_number), 0) + 1 FROM takeoff_versions WHERE project_id = $2),
			   $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 RETURNING version_number`,
			v.ID, v.ProjectID, v.Label, v.Type, v.Status, v.Snapshot, v.ComputedTotals,
			v.BOQLines, v.SourceRunID, v.ParentVersionID, v.ChangesSummary, v.CreatedAt, v.UpdatedAt,
		).Scan(&v.VersionNumber)
		if err == nil {
			return v, nil
		}
		if !isUniqueViolation(err, "takeoff_versions_project_number_key") {
			return model.TakeoffVersion{}, fmt.Errorf("storage: insert takeoff version: %w", err)
		}
		db.logger.Debug("takeoff version number collision, retrying",
			"project_id", v.ProjectID, "attempt", attempt)
	}
	return model.TakeoffVersion{}, ErrDuplicateVersionNumber
}

// GetTakeoffVersion retrieves one version by id.
func (db *DB) GetTakeoffVersion(ctx context.Context, id uuid.UUID) (model.TakeoffVersion, error) {
	v, err := scanTakeoff(db.pool.QueryRow(ctx,
		`SELECT `+takeoffColumns+` FROM takeoff_versions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TakeoffVersion{}, fmt.Errorf("storage: takeoff version %s: %w", id, ErrNotFound)
		}
		return model.TakeoffVersion{}, fmt.Errorf("storage: get takeoff version: %w", err)
	}
	return v, nil
}

// ListTakeoffVersions returns a project's versions, newest first.
func (db *DB) ListTakeoffVersions(ctx context.Context, projectID uuid.UUID) ([]model.TakeoffVersion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+takeoffColumns+` FROM takeoff_versions
		 WHERE project_id = $1 ORDER BY version_number DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: list takeoff versions: %w", err)
	}
	defer rows.Close()

	var versions []model.TakeoffVersion
	for rows.Next() {
		v, err := scanTakeoff(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan takeoff version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate takeoff versions: %w", err)
	}
	return versions, nil
}

// GetActiveTakeoffVersion returns the approved version with the highest
// version number. ErrNotFound means "no canonical version yet", which
// callers must treat as an empty state, not a failure.
func (db *DB) GetActiveTakeoffVersion(ctx context.Context, projectID uuid.UUID) (model.TakeoffVersion, error) {
	v, err := scanTakeoff(db.pool.QueryRow(ctx,
		`SELECT `+takeoffColumns+` FROM takeoff_versions
		 WHERE project_id = $1 AND status = 'approved'
		 ORDER BY version_number DESC LIMIT 1`, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TakeoffVersion{}, fmt.Errorf("storage: no approved takeoff version for project %s: %w", projectID, ErrNotFound)
		}
		return model.TakeoffVersion{}, fmt.Errorf("storage: get active takeoff version: %w", err)
	}
	return v, nil
}

// UpdateTakeoffSnapshot replaces snapshot fields on a draft version.
// Mutation of any later state returns ErrImmutable.
func (db *DB) UpdateTakeoffSnapshot(ctx context.Context, id uuid.UUID, req model.UpdateSnapshotRequest) (model.TakeoffVersion, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.TakeoffVersion{}, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	v, err := scanTakeoff(tx.QueryRow(ctx,
		`SELECT `+takeoffColumns+` FROM takeoff_versions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TakeoffVersion{}, fmt.Errorf("storage: takeoff version %s: %w", id, ErrNotFound)
		}
		return model.TakeoffVersion{}, fmt.Errorf("storage: lock takeoff version: %w", err)
	}
	if !v.Status.CanMutate() {
		return model.TakeoffVersion{}, fmt.Errorf("storage: takeoff version %s has status %q: %w", id, v.Status, ErrImmutable)
	}

	if req.Label != nil {
		v.Label = *req.Label
	}
	if req.Snapshot != nil {
		v.Snapshot = *req.Snapshot
	}
	if req.BOQLines != nil {
		v.BOQLines = req.BOQLines
	}
	v.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx,
		`UPDATE takeoff_versions SET label = $2, snapshot = $3, boq_lines = $4, updated_at = $5
		 WHERE id = $1`,
		v.ID, v.Label, v.Snapshot, v.BOQLines, v.UpdatedAt,
	)
	if err != nil {
		return model.TakeoffVersion{}, fmt.Errorf("storage: update takeoff snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.TakeoffVersion{}, fmt.Errorf("storage: commit snapshot update: %w", err)
	}
	return v, nil
}

// TransitionTakeoffVersion applies a state-machine action under a row
// lock. Approving a version also marks any previously approved version of
// the project superseded, in the same transaction, so at most one version
// is ever active. Concurrent approvals of different versions can deadlock
// on the supersede update, so the transaction is retried on 40P01/40001.
func (db *DB) TransitionTakeoffVersion(ctx context.Context, id uuid.UUID, action model.TransitionAction, actor, reason string) (model.TakeoffVersion, error) {
	var v model.TakeoffVersion
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		var err error
		v, err = db.transitionTakeoffTx(ctx, id, action, actor, reason)
		return err
	})
	return v, err
}

func (db *DB) transitionTakeoffTx(ctx context.Context, id uuid.UUID, action model.TransitionAction, actor, reason string) (model.TakeoffVersion, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.TakeoffVersion{}, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	v, err := scanTakeoff(tx.QueryRow(ctx,
		`SELECT `+takeoffColumns+` FROM takeoff_versions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TakeoffVersion{}, fmt.Errorf("storage: takeoff version %s: %w", id, ErrNotFound)
		}
		return model.TakeoffVersion{}, fmt.Errorf("storage: lock takeoff version: %w", err)
	}

	next, err := v.Status.Transition(action)
	if err != nil {
		return model.TakeoffVersion{}, err
	}

	now := time.Now().UTC()
	v.Status = next
	v.UpdatedAt = now
	switch action {
	case model.ActionSubmit:
		v.SubmittedBy = actor
		v.SubmittedAt = &now
	case model.ActionApprove:
		v.ApprovedBy = actor
		v.ApprovedAt = &now
	case model.ActionReject:
		v.RejectedReason = reason
	}

	_, err = tx.Exec(ctx,
		`UPDATE takeoff_versions SET status = $2, submitted_by = $3, submitted_at = $4,
		   approved_by = $5, approved_at = $6, rejected_reason = $7, updated_at = $8
		 WHERE id = $1`,
		v.ID, v.Status, v.SubmittedBy, v.SubmittedAt, v.ApprovedBy, v.ApprovedAt,
		v.RejectedReason, v.UpdatedAt,
	)
	if err != nil {
		return model.TakeoffVersion{}, fmt.Errorf("storage: update takeoff status: %w", err)
	}

	if action == model.ActionApprove {
		_, err = tx.Exec(ctx,
			`UPDATE takeoff_versions SET status = $3, updated_at = $4
			 WHERE project_id = $1 AND id <> $2 AND status = 'approved'`,
			v.ProjectID, v.ID, model.StatusSuperseded, now,
		)
		if err != nil {
			return model.TakeoffVersion{}, fmt.Errorf("storage: supersede previous versions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.TakeoffVersion{}, fmt.Errorf("storage: commit transition: %w", err)
	}
	return v, nil
}

func scanTakeoff(row pgx.Row) (model.TakeoffVersion, error) {
	var v model.TakeoffVersion
	err := row.Scan(&v.ID, &v.ProjectID, &v.VersionNumber, &v.Label, &v.Type, &v.Status,
		&v.Snapshot, &v.ComputedTotals, &v.BOQLines, &v.SourceRunID, &v.ParentVersionID,
		&v.ChangesSummary, &v.SubmittedBy, &v.SubmittedAt, &v.ApprovedBy, &v.ApprovedAt,
		&v.RejectedReason, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}
