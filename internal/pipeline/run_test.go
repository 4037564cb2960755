package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/model"
	"github.com/leadnexus/subiq/internal/rules"
	"github.com/leadnexus/subiq/internal/store"
)

// memStore is a minimal in-memory Store for exercising the runner.
type memStore struct {
	mu              sync.Mutex
	runs            map[string]*model.Run
	facts           []model.RawFactRow
	rollups         []model.RollupWindow
	classifications []model.ClassificationResult
	history         map[string][]model.ClassificationResult
}

func newMemStore() *memStore {
	return &memStore{
		runs:    map[string]*model.Run{},
		history: map[string][]model.ClassificationResult{},
	}
}

func (m *memStore) CreateRun(_ context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = &run
	return nil
}

func (m *memStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].Status = status
	return nil
}

func (m *memStore) CompleteRun(_ context.Context, runID string, subIDCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].Status = model.RunStatusComplete
	m.runs[runID].SubIDCount = subIDCount
	return nil
}

func (m *memStore) FailRun(_ context.Context, runID string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].Status = model.RunStatusFailed
	m.runs[runID].Error = message
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runID], nil
}

func (m *memStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (m *memStore) UpsertFacts(_ context.Context, facts []model.RawFactRow) (int64, error) {
	m.facts = append(m.facts, facts...)
	return int64(len(facts)), nil
}

func (m *memStore) FactsBetween(_ context.Context, start, end time.Time) ([]model.RawFactRow, error) {
	var out []model.RawFactRow
	for _, f := range m.facts {
		if !f.Date.Before(start) && !f.Date.After(end) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) FactsByCohort(_ context.Context, _ model.Vertical, _ model.TrafficType, _, _ time.Time) ([]model.RawFactRow, error) {
	return nil, nil
}

func (m *memStore) UpsertRollups(_ context.Context, windows []model.RollupWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollups = append(m.rollups, windows...)
	return nil
}

func (m *memStore) ListRollups(_ context.Context, _ string) ([]model.RollupWindow, error) {
	return m.rollups, nil
}

func (m *memStore) UpsertClassifications(_ context.Context, results []model.ClassificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifications = append(m.classifications, results...)
	return nil
}

func (m *memStore) ListClassifications(_ context.Context, _ string) ([]model.ClassificationResult, error) {
	return m.classifications, nil
}

func (m *memStore) ClassificationHistory(_ context.Context, subID string, _ time.Time) ([]model.ClassificationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[subID], nil
}

func (m *memStore) CreateAction(_ context.Context, _ model.ActionRecord) error { return nil }
func (m *memStore) GetAction(_ context.Context, _ string) (*model.ActionRecord, error) {
	return nil, nil
}
func (m *memStore) DueActions(_ context.Context, _ time.Time) ([]model.ActionRecord, error) {
	return nil, nil
}
func (m *memStore) ActionsBetween(_ context.Context, _ model.Vertical, _ model.TrafficType, _, _ time.Time) ([]model.ActionRecord, error) {
	return nil, nil
}
func (m *memStore) UpsertOutcome(_ context.Context, _ model.ActionOutcome) error { return nil }
func (m *memStore) GetOutcome(_ context.Context, _ string) (*model.ActionOutcome, error) {
	return nil, nil
}
func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

var _ store.Store = (*memStore)(nil)

func testEngine(t *testing.T) *rules.Engine {
	t.Helper()
	thresholds := rules.ThresholdSet{
		model.VerticalMedicare: {
			Call: &rules.RateThresholds{Premium: 0.70, Standard: 0.50},
			Lead: &rules.RateThresholds{Premium: 0.20, Standard: 0.10},
		},
	}
	return rules.New(thresholds, config.RulesConfig{
		WarningWindowDays:    14,
		SustainedPremiumDays: 30,
		ThresholdProximity:   0.10,
	})
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Rollup.WindowDays = 30
	cfg.Rollup.MinCallsWindow = 50
	cfg.Rollup.MinLeadsWindow = 100
	cfg.Rollup.PresenceThreshold = 0.10
	cfg.Pipeline.MaxConcurrentSubIDs = 4
	cfg.Pipeline.HistoryLookbackDays = 45
	return cfg
}

func TestRunnerExecute(t *testing.T) {
	st := newMemStore()
	runDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Twenty in-window days of strong premium-tier call traffic.
	for i := 0; i < 20; i++ {
		st.facts = append(st.facts, model.RawFactRow{
			Date:          runDate.AddDate(0, 0, -1-i),
			Vertical:      model.VerticalMedicare,
			TrafficType:   model.TrafficFullOO,
			Tier:          model.ChannelPremium,
			SubID:         "sub-good",
			Calls:         10,
			PaidCalls:     9,
			QualPaidCalls: 8,
			CallRev:       150,
			TotalRev:      150,
		})
	}
	// A row outside the window must not contribute.
	st.facts = append(st.facts, model.RawFactRow{
		Date:     runDate,
		Vertical: model.VerticalMedicare, TrafficType: model.TrafficFullOO,
		Tier: model.ChannelPremium, SubID: "sub-good",
		Calls: 1000, PaidCalls: 1000, QualPaidCalls: 0,
	})
	st.history["sub-good"] = []model.ClassificationResult{{
		SubID:              "sub-good",
		RecommendedChannel: model.ChannelPremium,
	}}

	runner := NewRunner(st, testEngine(t), testConfig())
	run, err := runner.Execute(context.Background(), runDate)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 1, run.SubIDCount)

	require.Len(t, st.rollups, 1)
	assert.Equal(t, run.ID, st.rollups[0].RunID)
	assert.Equal(t, int64(200), st.rollups[0].Calls)

	require.Len(t, st.classifications, 1)
	got := st.classifications[0]
	assert.Equal(t, run.ID, got.RunID)
	assert.Equal(t, model.ChannelPremium, got.CurrentChannel)
	assert.Equal(t, model.ActionKeepPremium, got.ActionType)
	assert.True(t, got.DecisionDate.Equal(runDate))
}

func TestRunnerExecuteEmptyWindow(t *testing.T) {
	st := newMemStore()
	runner := NewRunner(st, testEngine(t), testConfig())

	run, err := runner.Execute(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Zero(t, run.SubIDCount)
	assert.Empty(t, st.classifications)
}

func TestRunnerDefaultsNewSubIDToStandard(t *testing.T) {
	st := newMemStore()
	runDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		st.facts = append(st.facts, model.RawFactRow{
			Date:     runDate.AddDate(0, 0, -1-i),
			Vertical: model.VerticalMedicare, TrafficType: model.TrafficFullOO,
			Tier: model.ChannelStandard, SubID: "sub-new",
			Calls: 10, PaidCalls: 8, QualPaidCalls: 7, CallRev: 90, TotalRev: 90,
		})
	}

	runner := NewRunner(st, testEngine(t), testConfig())
	_, err := runner.Execute(context.Background(), runDate)
	require.NoError(t, err)

	require.Len(t, st.classifications, 1)
	assert.Equal(t, model.ChannelStandard, st.classifications[0].CurrentChannel)
}
