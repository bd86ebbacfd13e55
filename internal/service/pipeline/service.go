// Package pipeline orchestrates the quantity side of the derivation: it
// turns raw measured quantities into a persisted, terminal calculation
// run and freezes design states into numbered takeoff versions.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tantiya-io/tantiya/internal/boq"
	"github.com/tantiya-io/tantiya/internal/model"
	"github.com/tantiya-io/tantiya/internal/storage"
	"github.com/tantiya-io/tantiya/internal/telemetry"
)

// Service runs calculation passes and creates takeoff versions.
type Service struct {
	db     *storage.DB
	logger *slog.Logger

	runDuration metric.Float64Histogram
}

// New creates a pipeline Service.
func New(db *storage.DB, logger *slog.Logger) *Service {
	meter := telemetry.Meter("tantiya/pipeline")
	runDur, _ := meter.Float64Histogram("tantiya.run.duration",
		metric.WithDescription("Time to execute a calculation run (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{db: db, logger: logger, runDuration: runDur}
}

// ExecuteRun performs one synchronous calculation pass: validates and
// aggregates the supplied raw lines, then persists the terminal run.
// Per-line problems become validation errors on the run; the run only
// fails outright when nothing at all could be aggregated from a
// non-empty input.
func (s *Service) ExecuteRun(ctx context.Context, projectID uuid.UUID, rawLines []model.RawQuantityLine) (model.CalculationRun, error) {
	if projectID == uuid.Nil {
		return model.CalculationRun{}, model.Validationf("project_id", "missing project id")
	}

	started := time.Now().UTC()
	for i := range rawLines {
		if rawLines[i].ID == uuid.Nil {
			rawLines[i].ID = uuid.New()
		}
	}

	lines, verrs := boq.Aggregate(rawLines)

	status := model.RunStatusCompleted
	if len(rawLines) > 0 && len(lines) == 0 && len(verrs) > 0 {
		status = model.RunStatusFailed
	}

	run := model.CalculationRun{
		ProjectID:        projectID,
		Status:           status,
		RawLines:         rawLines,
		BOQLines:         lines,
		Summary:          boq.Summarize(rawLines, lines),
		ValidationErrors: verrs,
		StartedAt:        started,
	}

	run, err := s.db.CreateRun(ctx, run)
	if err != nil {
		return model.CalculationRun{}, fmt.Errorf("pipeline: persist run: %w", err)
	}

	elapsed := time.Since(started)
	s.runDuration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(attribute.String("run.status", string(run.Status))))
	s.logger.Info("calculation run finished",
		"run_id", run.ID,
		"project_id", projectID,
		"status", run.Status,
		"raw_lines", len(rawLines),
		"boq_lines", len(lines),
		"validation_errors", len(verrs),
		"duration_ms", elapsed.Milliseconds())

	return run, nil
}

// CreateVersion freezes a design state into a new draft takeoff version.
// When a source run is given, its BOQ lines are copied into the version
// (the version owns its copy) and headline totals are computed from them.
// When a parent version is given instead, the parent's snapshot and BOQ
// are inherited; this is how a rejected version gets reworked, since
// rejected is terminal.
func (s *Service) CreateVersion(ctx context.Context, projectID uuid.UUID, req model.CreateTakeoffVersionRequest) (model.TakeoffVersion, error) {
	if projectID == uuid.Nil {
		return model.TakeoffVersion{}, model.Validationf("project_id", "missing project id")
	}

	v := model.TakeoffVersion{
		ProjectID:       projectID,
		Label:           req.Label,
		Type:            req.Type,
		Snapshot:        req.Snapshot,
		SourceRunID:     req.SourceRunID,
		ParentVersionID: req.ParentVersionID,
		ChangesSummary:  req.ChangesSummary,
	}

	if req.ParentVersionID != nil {
		parent, err := s.db.GetTakeoffVersion(ctx, *req.ParentVersionID)
		if err != nil {
			return model.TakeoffVersion{}, fmt.Errorf("pipeline: load parent version: %w", err)
		}
		if parent.ProjectID != projectID {
			return model.TakeoffVersion{}, model.Validationf("parent_version_id", "version belongs to a different project")
		}
		if emptySnapshot(req.Snapshot) {
			v.Snapshot = parent.Snapshot
		}
		if req.SourceRunID == nil {
			v.BOQLines = append([]model.BOQLine(nil), parent.BOQLines...)
			v.ComputedTotals = parent.ComputedTotals
		}
	}

	if req.SourceRunID != nil {
		run, err := s.db.GetRun(ctx, *req.SourceRunID)
		if err != nil {
			return model.TakeoffVersion{}, fmt.Errorf("pipeline: load source run: %w", err)
		}
		if run.ProjectID != projectID {
			return model.TakeoffVersion{}, model.Validationf("source_run_id", "run belongs to a different project")
		}
		v.BOQLines = append([]model.BOQLine(nil), run.BOQLines...)
		v.ComputedTotals = computeTotals(run)
	}

	v, err := s.db.CreateTakeoffVersion(ctx, v)
	if err != nil {
		return model.TakeoffVersion{}, err
	}

	s.logger.Info("takeoff version created",
		"project_id", projectID,
		"version_id", v.ID,
		"version_number", v.VersionNumber)
	return v, nil
}

func emptySnapshot(s model.DesignSnapshot) bool {
	return len(s.Levels) == 0 && len(s.ElementTemplates) == 0 &&
		len(s.ElementInstances) == 0 && len(s.Grid.XAxes) == 0 && len(s.Grid.YAxes) == 0
}

func computeTotals(run model.CalculationRun) model.ComputedTotals {
	totals := model.ComputedTotals{
		TotalsByTrade: make(map[string]float64),
		TotalsByPart:  make(map[string]float64),
	}
	for _, raw := range run.RawLines {
		if raw.Trade != "" {
			totals.TotalsByTrade[raw.Trade] += raw.Quantity
		}
	}
	for _, l := range run.BOQLines {
		totals.TotalsByPart[l.Part] += l.Quantity
	}
	return totals
}
