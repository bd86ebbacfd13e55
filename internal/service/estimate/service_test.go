package estimate_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantiya-io/tantiya/internal/model"
	"github.com/tantiya-io/tantiya/internal/service/estimate"
	"github.com/tantiya-io/tantiya/internal/storage"
	"github.com/tantiya-io/tantiya/internal/testutil"
)

var (
	testDB  *storage.DB
	testSvc *estimate.Service
)

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	tc := testutil.MustStartPostgres()
	db, err := tc.NewTestDB(context.Background(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "estimate_test: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db
	testSvc = estimate.New(db, estimate.Defaults{OCMPct: 0.15, CPPct: 0.10, VATPct: 0.12}, logger)

	code := m.Run()

	db.Close()
	tc.Terminate()
	os.Exit(code)
}

func ptr[T any](v T) *T { return &v }

func referenceRate(payItem string) model.RateInput {
	return model.RateInput{
		PayItemNumber:  payItem,
		LaborItems:     []model.LaborItem{{Designation: "Construction Foreman", Persons: 1, Hours: 8, HourlyRate: 220.85}},
		EquipmentItems: []model.EquipmentItem{{Designation: "One Bagger Mixer", Units: 1, Hours: 1, HourlyRate: 416.68}},
		MaterialItems:  []model.MaterialItem{{Designation: "Portland Cement", Unit: "bag", Quantity: 1, UnitCost: 500}},
	}
}

func createTakeoff(t *testing.T, projectID uuid.UUID, boqLines ...model.BOQLine) model.TakeoffVersion {
	t.Helper()
	v, err := testDB.CreateTakeoffVersion(context.Background(), model.TakeoffVersion{
		ProjectID: projectID,
		Label:     "structural takeoff",
		BOQLines:  boqLines,
	})
	require.NoError(t, err)
	return v
}

func boqLine(payItem, unit string, qty float64) model.BOQLine {
	return model.BOQLine{
		ID:            uuid.New(),
		PayItemNumber: payItem,
		Description:   payItem,
		Unit:          unit,
		Quantity:      qty,
		Part:          "PART D",
	}
}

func TestCreatePricesLines(t *testing.T) {
	ctx := context.Background()
	v := createTakeoff(t, uuid.New(), boqLine("900 (1)", "cu.m", 10))

	est, err := testSvc.Create(ctx, v.ID, model.CreateEstimateRequest{
		Rates: []model.RateInput{referenceRate("900 (1)")},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.15, est.OCMPct)
	assert.Equal(t, 0.10, est.CPPct)
	assert.Equal(t, 0.12, est.VATPct)
	require.Len(t, est.EstimateLines, 1)

	b := est.EstimateLines[0].Breakdown
	assert.Equal(t, 1766.80, b.LaborCost)
	assert.Equal(t, 2683.48, b.DirectCost)
	assert.Equal(t, 3756.87, b.TotalUnitCost)
	assert.Equal(t, 37568.70, b.TotalAmount)
	assert.Equal(t, 37568.70, est.CostSummary.GrandTotal)
	assert.Equal(t, model.StatusDraft, est.Status)
	assert.Equal(t, model.EstimateNumber(v.ProjectID, 1), est.EstimateNumber)
}

func TestCreateMissingRateKeepsZeroCostLine(t *testing.T) {
	ctx := context.Background()
	v := createTakeoff(t, uuid.New(),
		boqLine("900 (1)", "cu.m", 10),
		boqLine("902 (1)", "kg", 340.5),
	)

	est, err := testSvc.Create(ctx, v.ID, model.CreateEstimateRequest{
		Rates: []model.RateInput{referenceRate("900 (1)")},
	})
	require.NoError(t, err)
	require.Len(t, est.EstimateLines, 2)

	var unpriced model.CostLine
	for _, l := range est.EstimateLines {
		if l.PayItemNumber == "902 (1)" {
			unpriced = l
		}
	}
	assert.Equal(t, 340.5, unpriced.Quantity)
	assert.Equal(t, model.CostBreakdown{}, unpriced.Breakdown)
	assert.Equal(t, 37568.70, est.CostSummary.GrandTotal)
}

func TestCreatePercentHandling(t *testing.T) {
	ctx := context.Background()

	// Whole-number overrides normalize to fractions.
	v := createTakeoff(t, uuid.New(), boqLine("900 (1)", "cu.m", 1))
	est, err := testSvc.Create(ctx, v.ID, model.CreateEstimateRequest{
		OCMPct: ptr(15.0),
		CPPct:  ptr(0.10),
		VATPct: ptr(12.0),
		Rates:  []model.RateInput{referenceRate("900 (1)")},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.15, est.OCMPct)
	assert.Equal(t, 0.10, est.CPPct)
	assert.Equal(t, 0.12, est.VATPct)
	assert.Equal(t, 3756.87, est.CostSummary.GrandTotal)

	// Out-of-range override is a validation error.
	_, err = testSvc.Create(ctx, v.ID, model.CreateEstimateRequest{OCMPct: ptr(150.0)})
	var verr model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ocm_pct", verr.Ref)
}

func TestCreateUnknownTakeoff(t *testing.T) {
	_, err := testSvc.Create(context.Background(), uuid.New(), model.CreateEstimateRequest{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateCopiesRatesNotReferences(t *testing.T) {
	ctx := context.Background()
	v := createTakeoff(t, uuid.New(), boqLine("900 (1)", "cu.m", 10))

	rate := referenceRate("900 (1)")
	est, err := testSvc.Create(ctx, v.ID, model.CreateEstimateRequest{
		Rates: []model.RateInput{rate},
	})
	require.NoError(t, err)

	// Mutating the caller's rate table after creation must not reach the
	// stored estimate.
	rate.LaborItems[0].HourlyRate = 9999
	stored, err := testDB.GetCostEstimate(ctx, est.ID, true)
	require.NoError(t, err)
	require.Len(t, stored.EstimateLines, 1)
	assert.Equal(t, 220.85, stored.EstimateLines[0].LaborItems[0].HourlyRate)
}

func TestUpdateLineQuantity(t *testing.T) {
	ctx := context.Background()
	v := createTakeoff(t, uuid.New(), boqLine("900 (1)", "cu.m", 10))

	est, err := testSvc.Create(ctx, v.ID, model.CreateEstimateRequest{
		Rates: []model.RateInput{referenceRate("900 (1)")},
	})
	require.NoError(t, err)
	lineID := est.EstimateLines[0].ID

	updated, err := testSvc.UpdateLineQuantity(ctx, est.ID, lineID, 42.5)
	require.NoError(t, err)
	assert.Equal(t, 42.5, updated.EstimateLines[0].Quantity)
	assert.Equal(t, 3756.87, updated.EstimateLines[0].Breakdown.TotalUnitCost)
	assert.Equal(t, 159666.98, updated.CostSummary.GrandTotal)

	// Persisted, not just returned.
	stored, err := testDB.GetCostEstimate(ctx, est.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 159666.98, stored.CostSummary.GrandTotal)

	_, err = testSvc.UpdateLineQuantity(ctx, est.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = testSvc.UpdateLineQuantity(ctx, est.ID, lineID, -1)
	var verr model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateOrdinalsAdvance(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	v := createTakeoff(t, projectID, boqLine("900 (1)", "cu.m", 1))

	for want := 1; want <= 2; want++ {
		est, err := testSvc.Create(ctx, v.ID, model.CreateEstimateRequest{
			Rates: []model.RateInput{referenceRate("900 (1)")},
		})
		require.NoError(t, err)
		assert.Equal(t, want, est.EstimateOrdinal)
	}
}
