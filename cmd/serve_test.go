package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/model"
	"github.com/leadnexus/subiq/internal/store"
)

// stubStore backs the router tests without a database.
type stubStore struct {
	runs            map[string]*model.Run
	classifications map[string][]model.ClassificationResult
	outcomes        map[string]*model.ActionOutcome
	actions         []model.ActionRecord
}

func newStubStore() *stubStore {
	return &stubStore{
		runs:            map[string]*model.Run{},
		classifications: map[string][]model.ClassificationResult{},
		outcomes:        map[string]*model.ActionOutcome{},
	}
}

func (s *stubStore) CreateRun(context.Context, model.Run) error                     { return nil }
func (s *stubStore) UpdateRunStatus(context.Context, string, model.RunStatus) error { return nil }
func (s *stubStore) CompleteRun(context.Context, string, int) error                 { return nil }
func (s *stubStore) FailRun(context.Context, string, string) error                  { return nil }

func (s *stubStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	return s.runs[id], nil
}

func (s *stubStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	var out []model.Run
	for _, r := range s.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (s *stubStore) UpsertFacts(context.Context, []model.RawFactRow) (int64, error) { return 0, nil }
func (s *stubStore) FactsBetween(context.Context, time.Time, time.Time) ([]model.RawFactRow, error) {
	return nil, nil
}
func (s *stubStore) FactsByCohort(context.Context, model.Vertical, model.TrafficType, time.Time, time.Time) ([]model.RawFactRow, error) {
	return nil, nil
}
func (s *stubStore) UpsertRollups(context.Context, []model.RollupWindow) error { return nil }
func (s *stubStore) ListRollups(context.Context, string) ([]model.RollupWindow, error) {
	return nil, nil
}
func (s *stubStore) UpsertClassifications(context.Context, []model.ClassificationResult) error {
	return nil
}

func (s *stubStore) ListClassifications(_ context.Context, runID string) ([]model.ClassificationResult, error) {
	return s.classifications[runID], nil
}

func (s *stubStore) ClassificationHistory(context.Context, string, time.Time) ([]model.ClassificationResult, error) {
	return nil, nil
}

func (s *stubStore) CreateAction(_ context.Context, a model.ActionRecord) error {
	s.actions = append(s.actions, a)
	return nil
}

func (s *stubStore) GetAction(context.Context, string) (*model.ActionRecord, error) {
	return nil, nil
}
func (s *stubStore) DueActions(context.Context, time.Time) ([]model.ActionRecord, error) {
	return nil, nil
}
func (s *stubStore) ActionsBetween(context.Context, model.Vertical, model.TrafficType, time.Time, time.Time) ([]model.ActionRecord, error) {
	return nil, nil
}
func (s *stubStore) UpsertOutcome(context.Context, model.ActionOutcome) error { return nil }

func (s *stubStore) GetOutcome(_ context.Context, actionID string) (*model.ActionOutcome, error) {
	return s.outcomes[actionID], nil
}

func (s *stubStore) Migrate(context.Context) error { return nil }
func (s *stubStore) Close() error                  { return nil }

var _ store.Store = (*stubStore)(nil)

func testServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newRouter(st, config.ServerConfig{ConfirmRatePerMin: 600}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServeHealth(t *testing.T) {
	srv := testServer(t, newStubStore())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeGetRun(t *testing.T) {
	st := newStubStore()
	st.runs["run-1"] = &model.Run{
		ID:      "run-1",
		RunDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:  model.RunStatusComplete,
	}
	srv := testServer(t, st)

	resp, err := http.Get(srv.URL + "/api/runs/run-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var run model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, model.RunStatusComplete, run.Status)

	missing, err := http.Get(srv.URL + "/api/runs/run-404")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServeListClassifications(t *testing.T) {
	st := newStubStore()
	st.classifications["run-1"] = []model.ClassificationResult{
		{RunID: "run-1", SubID: "sub-1", ActionType: model.ActionKeepPremium},
		{RunID: "run-1", SubID: "sub-2", ActionType: model.ActionWarning14Day},
	}
	srv := testServer(t, st)

	resp, err := http.Get(srv.URL + "/api/runs/run-1/classifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var results []model.ClassificationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 2)
	assert.Equal(t, model.ActionWarning14Day, results[1].ActionType)
}

func TestServeCreateAction(t *testing.T) {
	st := newStubStore()
	srv := testServer(t, st)

	body := `{"subid":"sub-1","action_type":"pause_immediate","action_date":"2026-03-01","vertical":"medicare","traffic_type":"non_oo","confirmed_by":"ops"}`
	resp, err := http.Post(srv.URL+"/api/actions", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.ActionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ActionID)
	assert.Equal(t, model.ActionPauseImmediate, created.ActionType)

	require.Len(t, st.actions, 1)
	assert.Equal(t, "sub-1", st.actions[0].SubID)
}

func TestServeCreateActionValidation(t *testing.T) {
	srv := testServer(t, newStubStore())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing subid", `{"action_type":"review","vertical":"auto","traffic_type":"full_oo"}`},
		{"bad action", `{"subid":"s","action_type":"nuke","vertical":"auto","traffic_type":"full_oo"}`},
		{"bad vertical", `{"subid":"s","action_type":"review","vertical":"plumbing","traffic_type":"full_oo"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/actions", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestServeActionRateLimit(t *testing.T) {
	st := newStubStore()
	// One request per minute with no burst headroom beyond the first call.
	srv := httptest.NewServer(newRouter(st, config.ServerConfig{ConfirmRatePerMin: 1}))
	defer srv.Close()

	body := `{"subid":"sub-1","action_type":"review","vertical":"auto","traffic_type":"full_oo"}`
	first, err := http.Post(srv.URL+"/api/actions", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, err := http.Post(srv.URL+"/api/actions", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}
