package model

import "time"

// ActionRecord is a human-confirmed action. The system only recommends;
// a record exists here only after a person approved the recommendation.
type ActionRecord struct {
	ActionID    string      `json:"action_id"`
	SubID       string      `json:"subid"`
	ActionType  ActionType  `json:"action_type"`
	ActionDate  time.Time   `json:"action_date"`
	Vertical    Vertical    `json:"vertical"`
	TrafficType TrafficType `json:"traffic_type"`
	ConfirmedBy string      `json:"confirmed_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ActionOutcome is the difference-in-differences measurement for one
// confirmed action, computed once its pre and post windows have fully
// elapsed. Exactly one outcome exists per action_id.
type ActionOutcome struct {
	ActionID string        `json:"action_id"`
	SubID    string        `json:"subid"`
	Status   OutcomeStatus `json:"status"`

	PreStart time.Time `json:"pre_start"`
	PreEnd   time.Time `json:"pre_end"`
	PostEnd  time.Time `json:"post_end"`

	TreatedPre  *float64 `json:"treated_pre"`
	TreatedPost *float64 `json:"treated_post"`
	CohortPre   *float64 `json:"cohort_pre"`
	CohortPost  *float64 `json:"cohort_post"`

	DiDEstimate   *float64 `json:"did_estimate"`
	RevenueImpact *float64 `json:"revenue_impact"`

	OutcomeLabel OutcomeLabel `json:"outcome_label,omitempty"`
	CohortSize   int          `json:"cohort_size"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}
