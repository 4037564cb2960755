package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// RawFactRow is one day of raw metrics for a sub_id, as delivered by the
// feed loaders. Rows are unique per (date, subid, vertical, traffic_type).
type RawFactRow struct {
	Date        time.Time   `json:"date"`
	Vertical    Vertical    `json:"vertical"`
	TrafficType TrafficType `json:"traffic_type"`
	Tier        Channel     `json:"tier"`
	SubID       string      `json:"subid"`

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
}

// Validate checks the invariants the aggregator relies on.
func (r RawFactRow) Validate() error {
	if r.SubID == "" {
		return eris.New("model: fact row missing subid")
	}
	if r.Date.IsZero() {
		return eris.Errorf("model: fact row for %s missing date", r.SubID)
	}
	counts := []int64{r.Calls, r.PaidCalls, r.QualPaidCalls, r.Leads, r.TransferCount, r.Clicks, r.Redirects}
	for _, c := range counts {
		if c < 0 {
			return eris.Errorf("model: fact row for %s on %s has negative count", r.SubID, r.Date.Format("2006-01-02"))
		}
	}
	if r.PaidCalls > r.Calls {
		return eris.Errorf("model: fact row for %s has paid_calls > calls", r.SubID)
	}
	if r.QualPaidCalls > r.PaidCalls {
		return eris.Errorf("model: fact row for %s has qual_paid_calls > paid_calls", r.SubID)
	}
	return nil
}
