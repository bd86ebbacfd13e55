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

// CreateRun persists a calculation run together with the raw lines it
// consumed and the BOQ lines it produced, in one transaction. Runs arrive
// here already terminal (the pipeline is synchronous) and are append-only:
// nothing ever updates these rows afterwards.
func (db *DB) CreateRun(ctx context.Context, run model.CalculationRun) (model.CalculationRun, error) {
	if run.ProjectID == uuid.Nil {
		return model.CalculationRun{}, fmt.Errorf("storage: create run: missing project id")
	}
	if !run.Status.Terminal() {
		return model.CalculationRun{}, fmt.Errorf("storage: create run: status %q is not terminal", run.Status)
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.CompletedAt == nil {
		run.CompletedAt = &now
	}
	if run.ValidationErrors == nil {
		run.ValidationErrors = []model.ValidationError{}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.CalculationRun{}, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO calculation_runs (id, project_id, status, summary, validation_errors, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.ProjectID, run.Status, run.Summary, run.ValidationErrors, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return model.CalculationRun{}, fmt.Errorf("storage: insert run: %w", err)
	}

	if len(run.RawLines) > 0 {
		rows := make([][]any, len(run.RawLines))
		for i, l := range run.RawLines {
			if l.ID == uuid.Nil {
				l.ID = uuid.New()
				run.RawLines[i] = l
			}
			tags := l.Tags
			if tags == nil {
				tags = []string{}
			}
			rows[i] = []any{l.ID, run.ID, l.SourceElementID, l.Trade, l.ResourceKey,
				l.Quantity, l.Unit, l.FormulaText, l.InputsSnapshot, tags, i}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"raw_quantity_lines"},
			[]string{"id", "run_id", "source_element_id", "trade", "resource_key",
				"quantity", "unit", "formula_text", "inputs_snapshot", "tags", "position"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return model.CalculationRun{}, fmt.Errorf("storage: copy raw lines: %w", err)
		}
	}

	for i, l := range run.BOQLines {
		tags := l.Tags
		if tags == nil {
			tags = []string{}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO run_boq_lines (id, run_id, pay_item_number, description, unit, quantity, part, source_raw_line_ids, tags, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			l.ID, run.ID, l.PayItemNumber, l.Description, l.Unit, l.Quantity, l.Part, l.SourceRawLineIDs, tags, i,
		)
		if err != nil {
			return model.CalculationRun{}, fmt.Errorf("storage: insert boq line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.CalculationRun{}, fmt.Errorf("storage: commit run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run with its raw and BOQ lines.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.CalculationRun, error) {
	var run model.CalculationRun
	err := db.pool.QueryRow(ctx,
		`SELECT id, project_id, status, summary, validation_errors, started_at, completed_at
		 FROM calculation_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.ProjectID, &run.Status, &run.Summary, &run.ValidationErrors,
		&run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CalculationRun{}, fmt.Errorf("storage: run %s: %w", id, ErrNotFound)
		}
		return model.CalculationRun{}, fmt.Errorf("storage: get run: %w", err)
	}

	run.RawLines, err = db.rawLinesByRun(ctx, id)
	if err != nil {
		return model.CalculationRun{}, err
	}
	run.BOQLines, err = db.boqLinesByRun(ctx, id)
	if err != nil {
		return model.CalculationRun{}, err
	}
	return run, nil
}

// ListRuns returns a project's runs, newest first, without line detail.
func (db *DB) ListRuns(ctx context.Context, projectID uuid.UUID) ([]model.CalculationRun, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, status, summary, validation_errors, started_at, completed_at
		 FROM calculation_runs WHERE project_id = $1 ORDER BY started_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.CalculationRun
	for rows.Next() {
		var run model.CalculationRun
		if err := rows.Scan(&run.ID, &run.ProjectID, &run.Status, &run.Summary,
			&run.ValidationErrors, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate runs: %w", err)
	}
	return runs, nil
}

func (db *DB) rawLinesByRun(ctx context.Context, runID uuid.UUID) ([]model.RawQuantityLine, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, source_element_id, trade, resource_key, quantity, unit, formula_text, inputs_snapshot, tags
		 FROM raw_quantity_lines WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: query raw lines: %w", err)
	}
	defer rows.Close()

	var lines []model.RawQuantityLine
	for rows.Next() {
		var l model.RawQuantityLine
		if err := rows.Scan(&l.ID, &l.SourceElementID, &l.Trade, &l.ResourceKey,
			&l.Quantity, &l.Unit, &l.FormulaText, &l.InputsSnapshot, &l.Tags); err != nil {
			return nil, fmt.Errorf("storage: scan raw line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate raw lines: %w", err)
	}
	return lines, nil
}

func (db *DB) boqLinesByRun(ctx context.Context, runID uuid.UUID) ([]model.BOQLine, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, pay_item_number, description, unit, quantity, part, source_raw_line_ids, tags
		 FROM run_boq_lines WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: query boq lines: %w", err)
	}
	defer rows.Close()

	var lines []model.BOQLine
	for rows.Next() {
		var l model.BOQLine
		if err := rows.Scan(&l.ID, &l.PayItemNumber, &l.Description, &l.Unit,
			&l.Quantity, &l.Part, &l.SourceRawLineIDs, &l.Tags); err != nil {
			return nil, fmt.Errorf("storage: scan boq line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate boq lines: %w", err)
	}
	return lines, nil
}
