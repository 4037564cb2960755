// Package rollup aggregates raw daily fact rows into trailing-window
// metrics per sub_id, the input to the classification engine.
package rollup

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/leadnexus/subiq/internal/model"
)

// Gates holds the volume and relevance floors applied at aggregation time.
type Gates struct {
	MinCallsWindow    int64
	MinLeadsWindow    int64
	PresenceThreshold float64
}

type groupKey struct {
	vertical    model.Vertical
	trafficType model.TrafficType
	tier        model.Channel
	subID       string
}

// Aggregate sums fact rows into one RollupWindow per (vertical,
// traffic_type, tier, subid) group observed within [windowStart, windowEnd].
// Rows outside the window are ignored. Missing days contribute zero;
// DaysInWindow records the distinct days actually observed. Sub_ids with
// zero total revenue and zero volume are dropped: nothing is actionable
// about them, and absence is not an error.
//
// The result is deterministic: windows are returned sorted by subid.
func Aggregate(facts []model.RawFactRow, windowStart, windowEnd time.Time, gates Gates) []model.RollupWindow {
	groups := make(map[groupKey]*model.RollupWindow)
	days := make(map[groupKey]map[string]struct{})

	for _, f := range facts {
		if f.Date.Before(windowStart) || f.Date.After(windowEnd) {
			continue
		}

		key := groupKey{f.Vertical, f.TrafficType, f.Tier, f.SubID}
		w, ok := groups[key]
		if !ok {
			w = &model.RollupWindow{
				SubID:       f.SubID,
				Vertical:    f.Vertical,
				TrafficType: f.TrafficType,
				Tier:        f.Tier,
				WindowStart: windowStart,
				WindowEnd:   windowEnd,
			}
			groups[key] = w
			days[key] = make(map[string]struct{})
		}

		w.Calls += f.Calls
		w.PaidCalls += f.PaidCalls
		w.QualPaidCalls += f.QualPaidCalls
		w.Leads += f.Leads
		w.TransferCount += f.TransferCount
		w.Clicks += f.Clicks
		w.Redirects += f.Redirects

		w.CallRev += f.CallRev
		w.LeadRev += f.LeadRev
		w.ClickRev += f.ClickRev
		w.RedirectRev += f.RedirectRev
		w.TotalRev += f.TotalRev

		days[key][f.Date.Format("2006-01-02")] = struct{}{}
	}

	out := make([]model.RollupWindow, 0, len(groups))
	dropped := 0
	for key, w := range groups {
		if w.TotalRev == 0 && w.Calls == 0 && w.Leads == 0 && w.Clicks == 0 && w.Redirects == 0 {
			dropped++
			continue
		}

		w.DaysInWindow = len(days[key])
		deriveRates(w)
		applyGates(w, gates)
		out = append(out, *w)
	}

	if dropped > 0 {
		zap.L().Debug("rollup: dropped zero-volume sub_ids", zap.Int("count", dropped))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubID != out[j].SubID {
			return out[i].SubID < out[j].SubID
		}
		return out[i].Vertical < out[j].Vertical
	})
	return out
}

// deriveRates fills all derived rate fields using guarded division:
// a rate is nil whenever its denominator is zero.
func deriveRates(w *model.RollupWindow) {
	w.QRRate = ratio(float64(w.PaidCalls), float64(w.Calls))
	w.CallQualityRate = ratio(float64(w.QualPaidCalls), float64(w.PaidCalls))
	w.LeadTransferRate = ratio(float64(w.TransferCount), float64(w.Leads))
	w.RPLead = ratio(w.LeadRev, float64(w.Leads))
	w.RPQCall = ratio(w.CallRev, float64(w.PaidCalls))
	w.RPClick = ratio(w.ClickRev, float64(w.Clicks))
	w.RPRedirect = ratio(w.RedirectRev, float64(w.Redirects))
	w.CallPresence = ratio(w.CallRev, w.TotalRev)
	w.LeadPresence = ratio(w.LeadRev, w.TotalRev)
}

// applyGates resolves the volume and relevance flags the engine consumes.
// A metric with insufficient volume is not actionable; a metric whose
// revenue presence is below the floor is not relevant to the decision.
func applyGates(w *model.RollupWindow, g Gates) {
	w.CallActionable = w.Calls >= g.MinCallsWindow
	w.LeadActionable = w.Leads >= g.MinLeadsWindow
	w.CallRelevant = w.CallPresence != nil && *w.CallPresence >= g.PresenceThreshold
	w.LeadRelevant = w.LeadPresence != nil && *w.LeadPresence >= g.PresenceThreshold
}

func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den
	return &v
}
