package storage_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantiya-io/tantiya/internal/model"
	"github.com/tantiya-io/tantiya/internal/storage"
	"github.com/tantiya-io/tantiya/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	tc := testutil.MustStartPostgres()
	db, err := tc.NewTestDB(context.Background(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage_test: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	db.Close()
	tc.Terminate()
	os.Exit(code)
}

func draftTakeoff(projectID uuid.UUID) model.TakeoffVersion {
	return model.TakeoffVersion{
		ProjectID: projectID,
		Label:     "structural takeoff",
		Type:      "auto",
		Snapshot: model.DesignSnapshot{
			Levels: []model.Level{{Name: "GF", Elevation: 0, Height: 3.0}},
		},
		BOQLines: []model.BOQLine{
			{
				ID:            uuid.New(),
				PayItemNumber: "900 (1)",
				Description:   "Structural Concrete, Class A",
				Unit:          "cu.m",
				Quantity:      42.5,
				Part:          "PART D",
			},
		},
	}
}

func draftEstimate(projectID, takeoffID uuid.UUID) model.CostEstimate {
	return model.CostEstimate{
		ProjectID:        projectID,
		TakeoffVersionID: takeoffID,
		OCMPct:           0.15,
		CPPct:            0.10,
		VATPct:           0.12,
		CostSummary: model.CostSummary{
			TotalDirectCost: 2683.48,
			GrandTotal:      3756.87,
			RateItemsCount:  1,
		},
		EstimateLines: []model.CostLine{
			{
				PayItemNumber: "900 (1)",
				Description:   "Structural Concrete, Class A",
				Unit:          "cu.m",
				Part:          "PART D",
				Quantity:      10,
				LaborItems: []model.LaborItem{
					{Designation: "Foreman", Persons: 1, Hours: 8, HourlyRate: 120},
				},
				Breakdown: model.CostBreakdown{
					DirectCost:    2683.48,
					TotalUnitCost: 3756.87,
					TotalAmount:   37568.70,
				},
			},
		},
	}
}

func TestCreateRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	rawID := uuid.New()
	run := model.CalculationRun{
		ProjectID: projectID,
		Status:    model.RunStatusCompleted,
		Summary: model.RunSummary{
			RawLineCount: 1,
			BOQLineCount: 1,
		},
		RawLines: []model.RawQuantityLine{
			{
				ID:          rawID,
				Trade:       "concrete",
				ResourceKey: "900 (1)",
				Quantity:    12.5,
				Unit:        "cu.m",
				FormulaText: "0.3*0.3*3.0*count",
			},
		},
		BOQLines: []model.BOQLine{
			{
				ID:               uuid.New(),
				PayItemNumber:    "900 (1)",
				Description:      "Structural Concrete",
				Unit:             "cu.m",
				Quantity:         12.5,
				Part:             "PART D",
				SourceRawLineIDs: []uuid.UUID{rawID},
			},
		},
	}

	created, err := testDB.CreateRun(ctx, run)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	got, err := testDB.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, projectID, got.ProjectID)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.Len(t, got.RawLines, 1)
	assert.Equal(t, "900 (1)", got.RawLines[0].ResourceKey)
	require.Len(t, got.BOQLines, 1)
	assert.Equal(t, []uuid.UUID{rawID}, got.BOQLines[0].SourceRawLineIDs)

	runs, err := testDB.ListRuns(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].RawLines)
}

func TestCreateRunRejectsNonTerminalStatus(t *testing.T) {
	_, err := testDB.CreateRun(context.Background(), model.CalculationRun{
		ProjectID: uuid.New(),
		Status:    model.RunStatusRunning,
	})
	require.Error(t, err)
}

func TestGetRunNotFound(t *testing.T) {
	_, err := testDB.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTakeoffVersionNumbersMonotonic(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	for want := 1; want <= 3; want++ {
		v, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
		require.NoError(t, err)
		assert.Equal(t, want, v.VersionNumber)
		assert.Equal(t, model.StatusDraft, v.Status)
	}

	versions, err := testDB.ListTakeoffVersions(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].VersionNumber)
}

func TestTakeoffVersionNumbersConcurrent(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	const n = 8

	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				v, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
				if errors.Is(err, storage.ErrDuplicateVersionNumber) {
					continue
				}
				results[i], errs[i] = v.VersionNumber, err
				return
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i]], "version number %d assigned twice", results[i])
		seen[results[i]] = true
	}
	for want := 1; want <= n; want++ {
		assert.True(t, seen[want], "version number %d never assigned", want)
	}
}

func TestTakeoffTransitionLifecycle(t *testing.T) {
	ctx := context.Background()
	v, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(uuid.New()))
	require.NoError(t, err)

	v, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionSubmit, "engineer-a", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, v.Status)
	assert.Equal(t, "engineer-a", v.SubmittedBy)
	require.NotNil(t, v.SubmittedAt)

	v, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionApprove, "chief-b", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, v.Status)
	assert.Equal(t, "chief-b", v.ApprovedBy)

	// Approving twice is illegal and must leave the row untouched.
	_, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionApprove, "chief-b", "")
	var invalid *model.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	got, err := testDB.GetTakeoffVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
}

func TestTakeoffRejectRecordsReason(t *testing.T) {
	ctx := context.Background()
	v, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(uuid.New()))
	require.NoError(t, err)

	_, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionSubmit, "engineer-a", "")
	require.NoError(t, err)

	v, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionReject, "chief-b", "grid spacing wrong")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, v.Status)
	assert.Equal(t, "grid spacing wrong", v.RejectedReason)
}

func TestApproveSupersedesPreviousVersion(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	approve := func(t *testing.T) model.TakeoffVersion {
		t.Helper()
		v, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
		require.NoError(t, err)
		_, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionSubmit, "engineer-a", "")
		require.NoError(t, err)
		v, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionApprove, "chief-b", "")
		require.NoError(t, err)
		return v
	}

	first := approve(t)
	second := approve(t)

	got, err := testDB.GetTakeoffVersion(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuperseded, got.Status)

	active, err := testDB.GetActiveTakeoffVersion(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, 2, active.VersionNumber)
}

func TestGetActiveTakeoffVersionNotFound(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	// A draft alone is not active.
	_, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
	require.NoError(t, err)

	_, err = testDB.GetActiveTakeoffVersion(ctx, projectID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateTakeoffSnapshotDraftOnly(t *testing.T) {
	ctx := context.Background()
	v, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(uuid.New()))
	require.NoError(t, err)

	label := "revised takeoff"
	updated, err := testDB.UpdateTakeoffSnapshot(ctx, v.ID, model.UpdateSnapshotRequest{Label: &label})
	require.NoError(t, err)
	assert.Equal(t, "revised takeoff", updated.Label)

	_, err = testDB.TransitionTakeoffVersion(ctx, v.ID, model.ActionSubmit, "engineer-a", "")
	require.NoError(t, err)

	_, err = testDB.UpdateTakeoffSnapshot(ctx, v.ID, model.UpdateSnapshotRequest{Label: &label})
	assert.ErrorIs(t, err, storage.ErrImmutable)
}

func TestEstimateOrdinalsAndNumbers(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	takeoff, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
	require.NoError(t, err)

	for want := 1; want <= 2; want++ {
		est, err := testDB.CreateCostEstimate(ctx, draftEstimate(projectID, takeoff.ID))
		require.NoError(t, err)
		assert.Equal(t, want, est.EstimateOrdinal)
		assert.Equal(t, model.EstimateNumber(projectID, want), est.EstimateNumber)
		assert.Equal(t, model.StatusDraft, est.Status)
	}

	ests, err := testDB.ListCostEstimates(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, ests, 2)
	assert.Equal(t, 2, ests[0].EstimateOrdinal)
}

func TestEstimateLinesRoundTrip(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	takeoff, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
	require.NoError(t, err)

	est, err := testDB.CreateCostEstimate(ctx, draftEstimate(projectID, takeoff.ID))
	require.NoError(t, err)

	got, err := testDB.GetCostEstimate(ctx, est.ID, true)
	require.NoError(t, err)
	require.Len(t, got.EstimateLines, 1)
	line := got.EstimateLines[0]
	assert.Equal(t, "900 (1)", line.PayItemNumber)
	assert.Equal(t, 10.0, line.Quantity)
	assert.Equal(t, 37568.70, line.Breakdown.TotalAmount)
	require.Len(t, line.LaborItems, 1)
	assert.Equal(t, "Foreman", line.LaborItems[0].Designation)

	// Without includeLines the payload stays light.
	slim, err := testDB.GetCostEstimate(ctx, est.ID, false)
	require.NoError(t, err)
	assert.Empty(t, slim.EstimateLines)
}

func TestUpdateCostLineRefreshesSummary(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	takeoff, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
	require.NoError(t, err)

	est, err := testDB.CreateCostEstimate(ctx, draftEstimate(projectID, takeoff.ID))
	require.NoError(t, err)

	line := est.EstimateLines[0]
	line.Quantity = 20
	line.Breakdown.TotalAmount = 75137.40
	summary := est.CostSummary
	summary.GrandTotal = 75137.40

	require.NoError(t, testDB.UpdateCostLine(ctx, line, summary))

	got, err := testDB.GetCostEstimate(ctx, est.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 75137.40, got.CostSummary.GrandTotal)
	require.Len(t, got.EstimateLines, 1)
	assert.Equal(t, 20.0, got.EstimateLines[0].Quantity)
}

func TestUpdateCostLineImmutableAfterSubmit(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	takeoff, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
	require.NoError(t, err)

	est, err := testDB.CreateCostEstimate(ctx, draftEstimate(projectID, takeoff.ID))
	require.NoError(t, err)
	_, err = testDB.TransitionCostEstimate(ctx, est.ID, model.ActionSubmit, "engineer-a", "")
	require.NoError(t, err)

	err = testDB.UpdateCostLine(ctx, est.EstimateLines[0], est.CostSummary)
	assert.ErrorIs(t, err, storage.ErrImmutable)
}

func TestEstimateLinesCopiedNotReferenced(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	takeoff, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
	require.NoError(t, err)

	est, err := testDB.CreateCostEstimate(ctx, draftEstimate(projectID, takeoff.ID))
	require.NoError(t, err)

	// Mutating the takeoff's BOQ afterwards must not reach into the estimate.
	lines := takeoff.BOQLines
	lines[0].Quantity = 999
	_, err = testDB.UpdateTakeoffSnapshot(ctx, takeoff.ID, model.UpdateSnapshotRequest{BOQLines: lines})
	require.NoError(t, err)

	got, err := testDB.GetCostEstimate(ctx, est.ID, true)
	require.NoError(t, err)
	require.Len(t, got.EstimateLines, 1)
	assert.Equal(t, 10.0, got.EstimateLines[0].Quantity)
}

func TestGetActiveCostEstimate(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	takeoff, err := testDB.CreateTakeoffVersion(ctx, draftTakeoff(projectID))
	require.NoError(t, err)

	_, err = testDB.GetActiveCostEstimate(ctx, projectID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first, err := testDB.CreateCostEstimate(ctx, draftEstimate(projectID, takeoff.ID))
	require.NoError(t, err)
	second, err := testDB.CreateCostEstimate(ctx, draftEstimate(projectID, takeoff.ID))
	require.NoError(t, err)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		_, err = testDB.TransitionCostEstimate(ctx, id, model.ActionSubmit, "engineer-a", "")
		require.NoError(t, err)
		_, err = testDB.TransitionCostEstimate(ctx, id, model.ActionApprove, "chief-b", "")
		require.NoError(t, err)
	}

	// Approving an estimate does not supersede older approved ones; the
	// active one is simply the highest approved ordinal.
	got, err := testDB.GetCostEstimate(ctx, first.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)

	active, err := testDB.GetActiveCostEstimate(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}
