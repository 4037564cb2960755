package model

import "time"

// ClassificationInput is the immutable snapshot fed to the rules engine.
// It is derived from a RollupWindow plus prior state; the engine never
// reads anything beyond this struct and its configured thresholds.
type ClassificationInput struct {
	Rollup         RollupWindow
	CurrentChannel Channel
	DecisionDate   time.Time

	// PriorWarningUntil is the end of the most recent warning window, if
	// one was started for this sub_id.
	PriorWarningUntil *time.Time

	// History holds prior classification results for this sub_id,
	// latest-first, one per daily run. It backs the sustained-premium
	// lookback for upgrades.
	History []ClassificationResult
}

// ClassificationResult is the decision output for one sub_id in one run.
// Results are owned by the run that produced them and never mutated.
type ClassificationResult struct {
	RunID       string      `json:"run_id"`
	SubID       string      `json:"subid"`
	Vertical    Vertical    `json:"vertical"`
	TrafficType TrafficType `json:"traffic_type"`

	DecisionDate       time.Time  `json:"decision_date"`
	CurrentChannel     Channel    `json:"current_channel"`
	RecommendedChannel Channel    `json:"recommended_channel"`
	ActionType         ActionType `json:"action_type"`

	CallTier MetricTier `json:"call_tier"`
	LeadTier MetricTier `json:"lead_tier"`

	Confidence   Confidence `json:"confidence"`
	ReasonCodes  []string   `json:"reason_codes"`
	WarningUntil *time.Time `json:"warning_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RunStatus tracks an analysis run through the pipeline.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run is one execution of the aggregation+classification pipeline. A re-run
// creates a new Run with fresh rows; history is never rewritten.
type Run struct {
	ID          string    `json:"id"`
	RunDate     time.Time `json:"run_date"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Status      RunStatus `json:"status"`
	SubIDCount  int       `json:"subid_count"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
