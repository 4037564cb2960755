package model

import "time"

// RollupWindow is the trailing-window aggregate for one sub_id within one
// analysis run. Derived rates are pointers: nil means the denominator was
// zero and no rate exists (never fabricated, never divide-by-zero).
type RollupWindow struct {
	RunID       string      `json:"run_id"`
	SubID       string      `json:"subid"`
	Vertical    Vertical    `json:"vertical"`
	TrafficType TrafficType `json:"traffic_type"`
	Tier        Channel     `json:"tier"`

	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	DaysInWindow int       `json:"days_in_window"`

	Calls         int64 `json:"calls"`
	PaidCalls     int64 `json:"paid_calls"`
	QualPaidCalls int64 `json:"qual_paid_calls"`
	Leads         int64 `json:"leads"`
	TransferCount int64 `json:"transfer_count"`
	Clicks        int64 `json:"clicks"`
	Redirects     int64 `json:"redirects"`

	CallRev     float64 `json:"call_rev"`
	LeadRev     float64 `json:"lead_rev"`
	ClickRev    float64 `json:"click_rev"`
	RedirectRev float64 `json:"redirect_rev"`
	TotalRev    float64 `json:"total_rev"`

	QRRate           *float64 `json:"qr_rate"`
	CallQualityRate  *float64 `json:"call_quality_rate"`
	LeadTransferRate *float64 `json:"lead_transfer_rate"`
	RPLead           *float64 `json:"rp_lead"`
	RPQCall          *float64 `json:"rp_qcall"`
	RPClick          *float64 `json:"rp_click"`
	RPRedirect       *float64 `json:"rp_redirect"`
	CallPresence     *float64 `json:"call_presence"`
	LeadPresence     *float64 `json:"lead_presence"`

	// Gating flags, resolved at aggregation time so the engine never
	// re-derives them from raw volume.
	CallActionable bool `json:"call_actionable"`
	LeadActionable bool `json:"lead_actionable"`
	CallRelevant   bool `json:"call_relevant"`
	LeadRelevant   bool `json:"lead_relevant"`
}

// Ptr returns a pointer to v. Convenience for building windows in tests.
func Ptr(v float64) *float64 { return &v }
