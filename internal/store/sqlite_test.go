package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadnexus/subiq/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "subiq.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run := model.Run{
		ID:          "run-1",
		RunDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowStart: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		Status:      model.RunStatusQueued,
	}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", model.RunStatusClassifying))
	require.NoError(t, s.CompleteRun(ctx, "run-1", 12))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 12, got.SubIDCount)
	assert.True(t, got.RunDate.Equal(run.RunDate))

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestSQLiteFailRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run := model.Run{
		ID:          "run-2",
		RunDate:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		WindowStart: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:      model.RunStatusQueued,
	}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.FailRun(ctx, "run-2", "upstream feed truncated"))

	got, err := s.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "upstream feed truncated", got.Error)
}

func TestSQLiteFactsRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	facts := []model.RawFactRow{
		{
			Date: day, Vertical: model.VerticalMedicare, TrafficType: model.TrafficFullOO,
			Tier: model.ChannelPremium, SubID: "sub-1",
			Calls: 100, PaidCalls: 80, QualPaidCalls: 60,
			CallRev: 1200.50, TotalRev: 1200.50,
		},
		{
			Date: day, Vertical: model.VerticalHealth, TrafficType: model.TrafficNonOO,
			Tier: model.ChannelStandard, SubID: "sub-2",
			Leads: 200, TransferCount: 30,
			LeadRev: 800, TotalRev: 800,
		},
	}

	n, err := s.UpsertFacts(ctx, facts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Replaying the same day overwrites rather than duplicating.
	facts[0].Calls = 110
	n, err = s.UpsertFacts(ctx, facts[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := s.FactsBetween(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(110), all[0].Calls)

	cohort, err := s.FactsByCohort(ctx, model.VerticalHealth, model.TrafficNonOO, day, day)
	require.NoError(t, err)
	require.Len(t, cohort, 1)
	assert.Equal(t, "sub-2", cohort[0].SubID)
}

func TestSQLiteRollupsRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run := model.Run{
		ID:          "run-3",
		RunDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowStart: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		Status:      model.RunStatusAggregating,
	}
	require.NoError(t, s.CreateRun(ctx, run))

	w := model.RollupWindow{
		RunID: "run-3", SubID: "sub-1",
		Vertical: model.VerticalMedicare, TrafficType: model.TrafficFullOO, Tier: model.ChannelPremium,
		WindowStart: run.WindowStart, WindowEnd: run.WindowEnd, DaysInWindow: 22,
		Calls: 300, PaidCalls: 240, QualPaidCalls: 180, TotalRev: 5000,
		CallQualityRate: model.Ptr(0.75), QRRate: model.Ptr(0.80),
		CallActionable: true, CallRelevant: true,
	}
	require.NoError(t, s.UpsertRollups(ctx, []model.RollupWindow{w}))

	got, err := s.ListRollups(ctx, "run-3")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(300), got[0].Calls)
	require.NotNil(t, got[0].CallQualityRate)
	assert.InDelta(t, 0.75, *got[0].CallQualityRate, 1e-9)
	assert.Nil(t, got[0].LeadTransferRate)
	assert.True(t, got[0].CallActionable)
	assert.False(t, got[0].LeadActionable)
}

func TestSQLiteUpsertIdempotence(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run := model.Run{
		ID:          "run-4",
		RunDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowStart: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		Status:      model.RunStatusAggregating,
	}
	require.NoError(t, s.CreateRun(ctx, run))

	w := model.RollupWindow{
		RunID: "run-4", SubID: "sub-1",
		Vertical: model.VerticalMedicare, TrafficType: model.TrafficFullOO, Tier: model.ChannelPremium,
		WindowStart: run.WindowStart, WindowEnd: run.WindowEnd, DaysInWindow: 20,
		Calls: 300, PaidCalls: 240, QualPaidCalls: 180, TotalRev: 5000,
		CallQualityRate: model.Ptr(0.75),
		CallActionable:  true, CallRelevant: true,
	}
	require.NoError(t, s.UpsertRollups(ctx, []model.RollupWindow{w}))

	// Re-aggregating the same window replaces the row in place.
	w.Calls = 320
	w.CallQualityRate = model.Ptr(0.70)
	require.NoError(t, s.UpsertRollups(ctx, []model.RollupWindow{w}))

	rollups, err := s.ListRollups(ctx, "run-4")
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	assert.Equal(t, int64(320), rollups[0].Calls)
	require.NotNil(t, rollups[0].CallQualityRate)
	assert.InDelta(t, 0.70, *rollups[0].CallQualityRate, 1e-9)

	c := model.ClassificationResult{
		RunID: "run-4", SubID: "sub-1",
		Vertical: model.VerticalMedicare, TrafficType: model.TrafficFullOO,
		DecisionDate:       run.RunDate,
		CurrentChannel:     model.ChannelPremium,
		RecommendedChannel: model.ChannelPremium,
		ActionType:         model.ActionKeepPremium,
		CallTier:           model.TierPremium,
		LeadTier:           model.TierNA,
		Confidence:         model.ConfidenceHigh,
		ReasonCodes:        []string{"call_tier=premium"},
	}
	require.NoError(t, s.UpsertClassifications(ctx, []model.ClassificationResult{c}))

	c.ActionType = model.ActionKeepPremiumWatch
	c.Confidence = model.ConfidenceMedium
	require.NoError(t, s.UpsertClassifications(ctx, []model.ClassificationResult{c}))

	classified, err := s.ListClassifications(ctx, "run-4")
	require.NoError(t, err)
	require.Len(t, classified, 1)
	assert.Equal(t, model.ActionKeepPremiumWatch, classified[0].ActionType)
	assert.Equal(t, model.ConfidenceMedium, classified[0].Confidence)

	actionDate := run.RunDate
	require.NoError(t, s.CreateAction(ctx, model.ActionRecord{
		ActionID: "act-iso", SubID: "sub-1",
		ActionType: model.ActionKeepPremiumWatch, ActionDate: actionDate,
		Vertical: model.VerticalMedicare, TrafficType: model.TrafficFullOO,
	}))

	out := model.ActionOutcome{
		ActionID: "act-iso", SubID: "sub-1",
		Status:   model.OutcomeMeasured,
		PreStart: actionDate.AddDate(0, 0, -14), PreEnd: actionDate.AddDate(0, 0, -1),
		PostEnd:      actionDate.AddDate(0, 0, 13),
		TreatedPre:   model.Ptr(0.60), TreatedPost: model.Ptr(0.62),
		CohortPre:    model.Ptr(0.61), CohortPost: model.Ptr(0.62),
		DiDEstimate:  model.Ptr(0.01),
		OutcomeLabel: model.OutcomeStable,
		CohortSize:   6,
	}
	require.NoError(t, s.UpsertOutcome(ctx, out))

	out.DiDEstimate = model.Ptr(0.09)
	out.OutcomeLabel = model.OutcomeImproved
	require.NoError(t, s.UpsertOutcome(ctx, out))

	stored, err := s.GetOutcome(ctx, "act-iso")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.DiDEstimate)
	assert.InDelta(t, 0.09, *stored.DiDEstimate, 1e-9)
	assert.Equal(t, model.OutcomeImproved, stored.OutcomeLabel)
}

func TestSQLiteClassificationHistory(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, runID := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, s.CreateRun(ctx, model.Run{
			ID: runID, RunDate: base.AddDate(0, 0, i),
			WindowStart: base.AddDate(0, 0, i-30), WindowEnd: base.AddDate(0, 0, i-1),
			Status: model.RunStatusComplete,
		}))
		warning := base.AddDate(0, 0, i+14)
		result := model.ClassificationResult{
			RunID: runID, SubID: "sub-1",
			Vertical: model.VerticalAuto, TrafficType: model.TrafficPartialOO,
			DecisionDate:       base.AddDate(0, 0, i),
			CurrentChannel:     model.ChannelStandard,
			RecommendedChannel: model.ChannelStandard,
			ActionType:         model.ActionKeepStandard,
			CallTier:           model.TierStandard,
			LeadTier:           model.TierNA,
			Confidence:         model.ConfidenceMedium,
			ReasonCodes:        []string{"lead_volume_gated"},
		}
		if i == 1 {
			result.ActionType = model.ActionWarning14Day
			result.WarningUntil = &warning
		}
		require.NoError(t, s.UpsertClassifications(ctx, []model.ClassificationResult{result}))
	}

	hist, err := s.ClassificationHistory(ctx, "sub-1", base)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	// Latest first.
	assert.Equal(t, "run-c", hist[0].RunID)
	assert.Equal(t, "run-a", hist[2].RunID)
	require.NotNil(t, hist[1].WarningUntil)
	assert.True(t, hist[1].WarningUntil.Equal(base.AddDate(0, 0, 15)))
	assert.Equal(t, []string{"lead_volume_gated"}, hist[0].ReasonCodes)

	listed, err := s.ListClassifications(ctx, "run-b")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, model.ActionWarning14Day, listed[0].ActionType)
}

func TestSQLiteActionsAndOutcomes(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	actionDate := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	a := model.ActionRecord{
		ActionID: "act-1", SubID: "sub-1",
		ActionType: model.ActionDemoteToStandard, ActionDate: actionDate,
		Vertical: model.VerticalLife, TrafficType: model.TrafficFullOO,
		ConfirmedBy: "ops",
	}
	require.NoError(t, s.CreateAction(ctx, a))

	got, err := s.GetAction(ctx, "act-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ActionDemoteToStandard, got.ActionType)

	missing, err := s.GetAction(ctx, "act-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	due, err := s.DueActions(ctx, actionDate.AddDate(0, 0, 28))
	require.NoError(t, err)
	require.Len(t, due, 1)

	between, err := s.ActionsBetween(ctx, model.VerticalLife, model.TrafficFullOO, actionDate, actionDate)
	require.NoError(t, err)
	assert.Len(t, between, 1)

	did := 0.07
	outcome := model.ActionOutcome{
		ActionID: "act-1", SubID: "sub-1",
		Status:   model.OutcomeMeasured,
		PreStart: actionDate.AddDate(0, 0, -14), PreEnd: actionDate.AddDate(0, 0, -1),
		PostEnd:      actionDate.AddDate(0, 0, 13),
		TreatedPre:   model.Ptr(0.60), TreatedPost: model.Ptr(0.70),
		CohortPre:    model.Ptr(0.61), CohortPost: model.Ptr(0.64),
		DiDEstimate:  &did,
		OutcomeLabel: model.OutcomeImproved,
		CohortSize:   6,
	}
	require.NoError(t, s.UpsertOutcome(ctx, outcome))

	// Once measured, the action is no longer due.
	due, err = s.DueActions(ctx, actionDate.AddDate(0, 0, 28))
	require.NoError(t, err)
	assert.Empty(t, due)

	stored, err := s.GetOutcome(ctx, "act-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.OutcomeImproved, stored.OutcomeLabel)
	require.NotNil(t, stored.DiDEstimate)
	assert.InDelta(t, 0.07, *stored.DiDEstimate, 1e-9)
	assert.Equal(t, 6, stored.CohortSize)
}
