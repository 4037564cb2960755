package store

import (
	"context"
	"time"

	"github.com/leadnexus/subiq/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the decision pipeline.
// Every write is an upsert keyed by its natural key ((run_id, subid) for
// rollups and classifications, action_id for outcomes), so retries and
// re-runs overwrite rather than duplicate.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, subIDCount int) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Raw facts
	UpsertFacts(ctx context.Context, rows []model.RawFactRow) (int64, error)
	FactsBetween(ctx context.Context, start, end time.Time) ([]model.RawFactRow, error)
	FactsByCohort(ctx context.Context, vertical model.Vertical, trafficType model.TrafficType, start, end time.Time) ([]model.RawFactRow, error)

	// Rollups and classifications
	UpsertRollups(ctx context.Context, windows []model.RollupWindow) error
	ListRollups(ctx context.Context, runID string) ([]model.RollupWindow, error)
	UpsertClassifications(ctx context.Context, results []model.ClassificationResult) error
	ListClassifications(ctx context.Context, runID string) ([]model.ClassificationResult, error)
	// ClassificationHistory returns results for one sub_id since the given
	// date, latest-first.
	ClassificationHistory(ctx context.Context, subID string, since time.Time) ([]model.ClassificationResult, error)

	// Actions and outcomes
	CreateAction(ctx context.Context, action model.ActionRecord) error
	GetAction(ctx context.Context, actionID string) (*model.ActionRecord, error)
	// DueActions returns confirmed actions dated on or before cutoff that
	// have no outcome yet.
	DueActions(ctx context.Context, cutoff time.Time) ([]model.ActionRecord, error)
	ActionsBetween(ctx context.Context, vertical model.Vertical, trafficType model.TrafficType, start, end time.Time) ([]model.ActionRecord, error)
	UpsertOutcome(ctx context.Context, outcome model.ActionOutcome) error
	GetOutcome(ctx context.Context, actionID string) (*model.ActionOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
