package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadnexus/subiq/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresCreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	run := model.Run{
		ID:          "run-1",
		RunDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowStart: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		Status:      model.RunStatusQueued,
	}

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(run.ID, run.RunDate, run.WindowStart, run.WindowEnd, string(run.Status),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	runDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "run_date", "window_start", "window_end", "status", "subid_count", "error", "created_at", "updated_at",
	}).AddRow("run-1", runDate, runDate.AddDate(0, 0, -30), runDate.AddDate(0, 0, -1),
		"complete", 42, (*string)(nil), now, now)

	mock.ExpectQuery(`SELECT id, run_date`).WithArgs("run-1").WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 42, run.SubIDCount)
	assert.Empty(t, run.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRunNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, run_date`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	run, err := s.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateRunStatusNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("complete", 17, pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), "run-1", 17))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetActionNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT action_id`).WithArgs("a-404").WillReturnError(pgx.ErrNoRows)

	a, err := s.GetAction(context.Background(), "a-404")
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDueActions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	actionDate := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	confirmedBy := "ops@leadnexus.com"
	rows := pgxmock.NewRows([]string{
		"action_id", "subid", "action_type", "action_date", "vertical", "traffic_type", "confirmed_by", "created_at",
	}).AddRow("a-1", "sub-9", "pause_immediate", actionDate, "medicare", "non_oo", &confirmedBy, time.Now().UTC())

	mock.ExpectQuery(`LEFT JOIN action_outcomes`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(rows)

	actions, err := s.DueActions(context.Background(), actionDate.AddDate(0, 0, 28))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionPauseImmediate, actions[0].ActionType)
	assert.Equal(t, "ops@leadnexus.com", actions[0].ConfirmedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertClassifications(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	decisionDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	warningUntil := decisionDate.AddDate(0, 0, 14)
	result := model.ClassificationResult{
		RunID:              "run-1",
		SubID:              "sub-9",
		Vertical:           model.VerticalMedicare,
		TrafficType:        model.TrafficNonOO,
		DecisionDate:       decisionDate,
		CurrentChannel:     model.ChannelStandard,
		RecommendedChannel: model.ChannelStandard,
		ActionType:         model.ActionWarning14Day,
		CallTier:           model.TierPause,
		LeadTier:           model.TierStandard,
		Confidence:         model.ConfidenceHigh,
		ReasonCodes:        []string{"call_below_standard_floor"},
		WarningUntil:       &warningUntil,
	}

	mock.ExpectExec(`INSERT INTO classifications`).
		WithArgs("run-1", "sub-9", "medicare", "non_oo", decisionDate,
			"standard", "standard", "warning_14_day",
			"pause", "standard", "high", []byte(`["call_below_standard_floor"]`),
			&warningUntil, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertClassifications(context.Background(), []model.ClassificationResult{result}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertOutcome(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	did := -0.18
	outcome := model.ActionOutcome{
		ActionID:    "a-1",
		SubID:       "sub-9",
		Status:      model.OutcomeMeasured,
		PreStart:    time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC),
		PreEnd:      time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		PostEnd:     time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		DiDEstimate: &did,
		OutcomeLabel: model.OutcomeDeclined,
		CohortSize:  8,
	}

	mock.ExpectExec(`INSERT INTO action_outcomes`).
		WithArgs(outcome.ActionID, outcome.SubID, "measured",
			outcome.PreStart, outcome.PreEnd, outcome.PostEnd,
			outcome.TreatedPre, outcome.TreatedPost, outcome.CohortPre, outcome.CohortPost,
			&did, outcome.RevenueImpact, "declined", 8, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertOutcome(context.Background(), outcome))
	assert.NoError(t, mock.ExpectationsWereMet())
}
