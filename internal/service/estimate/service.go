// Package estimate derives priced cost estimates from takeoff versions.
//
// An estimate deep-copies the version's BOQ and the supplied rate tables
// at creation time: later edits to the BOQ or to master-data rates never
// retroactively change an existing estimate.
package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/tantiya-io/tantiya/internal/costing"
	"github.com/tantiya-io/tantiya/internal/model"
	"github.com/tantiya-io/tantiya/internal/storage"
	"github.com/tantiya-io/tantiya/internal/telemetry"
)

// priceConcurrency bounds the fan-out when pricing estimate lines. Lines
// are independent pure computations; the bound just keeps large bills
// from spawning a goroutine per line.
const priceConcurrency = 8

// Defaults are the configured markup percentages applied when a create
// request leaves them unset. Stored as decimal fractions.
type Defaults struct {
	OCMPct float64
	CPPct  float64
	VATPct float64
}

// Service encapsulates estimate business logic.
type Service struct {
	db       *storage.DB
	defaults Defaults
	logger   *slog.Logger

	priceDuration metric.Float64Histogram
}

// New creates an estimate Service.
func New(db *storage.DB, defaults Defaults, logger *slog.Logger) *Service {
	meter := telemetry.Meter("tantiya/estimate")
	priceDur, _ := meter.Float64Histogram("tantiya.estimate.price_duration",
		metric.WithDescription("Time to price all lines of an estimate (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{db: db, defaults: defaults, logger: logger, priceDuration: priceDur}
}

// Create builds and persists a new draft estimate for a takeoff version.
// Each BOQ line is joined with its rate table entry and priced; a pay
// item with no rate entry is carried as a zero-cost line rather than
// dropped, so the bill stays complete. Markup percentages are normalized
// at this boundary (0.12 and 12 both mean 12%).
func (s *Service) Create(ctx context.Context, takeoffVersionID uuid.UUID, req model.CreateEstimateRequest) (model.CostEstimate, error) {
	version, err := s.db.GetTakeoffVersion(ctx, takeoffVersionID)
	if err != nil {
		return model.CostEstimate{}, err
	}

	ocm, err := s.resolvePct("ocm_pct", req.OCMPct, s.defaults.OCMPct)
	if err != nil {
		return model.CostEstimate{}, err
	}
	cp, err := s.resolvePct("cp_pct", req.CPPct, s.defaults.CPPct)
	if err != nil {
		return model.CostEstimate{}, err
	}
	vat, err := s.resolvePct("vat_pct", req.VATPct, s.defaults.VATPct)
	if err != nil {
		return model.CostEstimate{}, err
	}

	rates := make(map[string]model.RateInput, len(req.Rates))
	for _, r := range req.Rates {
		rates[r.PayItemNumber] = r
	}

	started := time.Now()
	lines := make([]model.CostLine, len(version.BOQLines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(priceConcurrency)
	for i, bl := range version.BOQLines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rate := rates[bl.PayItemNumber]
			line := model.CostLine{
				PayItemNumber:  bl.PayItemNumber,
				Description:    bl.Description,
				Unit:           bl.Unit,
				Part:           bl.Part,
				Quantity:       bl.Quantity,
				LaborItems:     append([]model.LaborItem(nil), rate.LaborItems...),
				EquipmentItems: append([]model.EquipmentItem(nil), rate.EquipmentItems...),
				MaterialItems:  append([]model.MaterialItem(nil), rate.MaterialItems...),
			}
			breakdown, err := costing.ComputeCost(line.LaborItems, line.EquipmentItems,
				line.MaterialItems, line.Quantity, ocm, cp, vat)
			if err != nil {
				return fmt.Errorf("estimate: price %s: %w", bl.PayItemNumber, err)
			}
			line.Breakdown = breakdown
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.CostEstimate{}, err
	}
	s.priceDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	est := model.CostEstimate{
		ProjectID:        version.ProjectID,
		TakeoffVersionID: version.ID,
		OCMPct:           ocm,
		CPPct:            cp,
		VATPct:           vat,
		CostSummary:      costing.Summarize(lines),
		EstimateLines:    lines,
	}

	est, err = s.db.CreateCostEstimate(ctx, est)
	if err != nil {
		return model.CostEstimate{}, err
	}

	s.logger.Info("cost estimate created",
		"estimate_id", est.ID,
		"estimate_number", est.EstimateNumber,
		"project_id", est.ProjectID,
		"takeoff_version_id", version.ID,
		"lines", len(lines),
		"grand_total", est.CostSummary.GrandTotal)
	return est, nil
}

// UpdateLineQuantity re-prices one line after a quantity edit. The unit
// cost is held fixed; only the line's total amount and the estimate
// summary change. Edits are legal only while the estimate is a draft.
func (s *Service) UpdateLineQuantity(ctx context.Context, estimateID, lineID uuid.UUID, quantity float64) (model.CostEstimate, error) {
	est, err := s.db.GetCostEstimate(ctx, estimateID, true)
	if err != nil {
		return model.CostEstimate{}, err
	}

	idx := -1
	for i, l := range est.EstimateLines {
		if l.ID == lineID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.CostEstimate{}, fmt.Errorf("estimate: line %s: %w", lineID, storage.ErrNotFound)
	}

	updated, err := costing.RecomputeQuantity(est.EstimateLines[idx], quantity)
	if err != nil {
		return model.CostEstimate{}, err
	}
	est.EstimateLines[idx] = updated
	est.CostSummary = costing.Summarize(est.EstimateLines)

	if err := s.db.UpdateCostLine(ctx, updated, est.CostSummary); err != nil {
		return model.CostEstimate{}, err
	}
	return est, nil
}

func (s *Service) resolvePct(name string, supplied *float64, fallback float64) (float64, error) {
	if supplied == nil {
		return costing.NormalizePct(name, fallback)
	}
	return costing.NormalizePct(name, *supplied)
}
