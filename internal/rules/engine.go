// Package rules implements the 2026 classification rules: a pure decision
// function turning windowed metrics plus prior state into a tier
// recommendation, action type, confidence and warning timer.
package rules

import (
	"fmt"
	"time"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/model"
)

// Engine evaluates classification inputs against configured thresholds.
// It holds no mutable state; identical inputs always produce identical
// results.
type Engine struct {
	thresholds           ThresholdSet
	warningWindowDays    int
	sustainedPremiumDays int
	thresholdProximity   float64
}

// New creates an Engine from an explicit threshold set and rules config.
func New(thresholds ThresholdSet, cfg config.RulesConfig) *Engine {
	return &Engine{
		thresholds:           thresholds,
		warningWindowDays:    cfg.WarningWindowDays,
		sustainedPremiumDays: cfg.SustainedPremiumDays,
		thresholdProximity:   cfg.ThresholdProximity,
	}
}

// metricSignal is one metric's resolved state for a single decision.
type metricSignal struct {
	name       string
	tier       model.MetricTier
	rate       *float64
	thresholds *RateThresholds
}

// Classify turns one snapshot into a decision. It is total: every
// well-formed input yields a result, never an error. Gated-out metrics
// resolve to NA, missing threshold config to Unknown, and unmodeled tier
// combinations to the conservative review action.
func (e *Engine) Classify(in model.ClassificationInput) model.ClassificationResult {
	w := in.Rollup

	res := model.ClassificationResult{
		RunID:          w.RunID,
		SubID:          w.SubID,
		Vertical:       w.Vertical,
		TrafficType:    w.TrafficType,
		DecisionDate:   in.DecisionDate,
		CurrentChannel: in.CurrentChannel,
	}

	call := e.metricTier("call", w.CallQualityRate, w.CallActionable, w.CallRelevant, e.callThresholds(w.Vertical), &res)
	lead := e.metricTier("lead", w.LeadTransferRate, w.LeadActionable, w.LeadRelevant, e.leadThresholds(w.Vertical), &res)
	res.CallTier = call.tier
	res.LeadTier = lead.tier

	signals := usableSignals(call, lead)

	action := e.decide(in, call, lead, signals, &res)
	res.ActionType = action
	res.RecommendedChannel = recommendedChannel(action, in.CurrentChannel)

	if action.SetsWarning() {
		until := in.DecisionDate.AddDate(0, 0, e.warningWindowDays)
		res.WarningUntil = &until
	}

	res.Confidence = e.confidence(action, call, lead, signals, w)
	return res
}

// metricTier resolves one metric's tier, honoring relevance gating first,
// then volume gating, then threshold configuration.
func (e *Engine) metricTier(name string, rate *float64, actionable, relevant bool, th *RateThresholds, res *model.ClassificationResult) metricSignal {
	sig := metricSignal{name: name, rate: rate, thresholds: th}

	switch {
	case !relevant:
		sig.tier = model.TierNA
		res.ReasonCodes = append(res.ReasonCodes, name+"_not_relevant")
	case !actionable:
		sig.tier = model.TierNA
		res.ReasonCodes = append(res.ReasonCodes, name+"_volume_gated")
	case !th.valid():
		sig.tier = model.TierUnknown
		res.ReasonCodes = append(res.ReasonCodes, name+"_thresholds_missing")
	case rate == nil:
		sig.tier = model.TierNA
		res.ReasonCodes = append(res.ReasonCodes, name+"_rate_unavailable")
	case *rate >= th.Premium:
		sig.tier = model.TierPremium
	case *rate >= th.Standard:
		sig.tier = model.TierStandard
	default:
		sig.tier = model.TierPause
	}

	if sig.tier.Usable() {
		res.ReasonCodes = append(res.ReasonCodes, fmt.Sprintf("%s_tier=%s", name, sig.tier))
	}
	return sig
}

func (e *Engine) callThresholds(v model.Vertical) *RateThresholds { return e.thresholds[v].Call }
func (e *Engine) leadThresholds(v model.Vertical) *RateThresholds { return e.thresholds[v].Lead }

func usableSignals(call, lead metricSignal) []metricSignal {
	var out []metricSignal
	if call.tier.Usable() {
		out = append(out, call)
	}
	if lead.tier.Usable() {
		out = append(out, lead)
	}
	return out
}

// decide walks the decision table. Premium eligibility of the traffic type
// is checked before any tier logic; a Premium channel (or a Premium-implying
// decision) under a forbidding traffic type reports no_premium_available and
// is capped at Standard.
func (e *Engine) decide(in model.ClassificationInput, call, lead metricSignal, signals []metricSignal, res *model.ClassificationResult) model.ActionType {
	premiumAllowed := in.Rollup.TrafficType.AllowsPremium(in.Rollup.Vertical)

	if in.CurrentChannel == model.ChannelPremium && !premiumAllowed {
		res.ReasonCodes = append(res.ReasonCodes, "no_premium_for_traffic_type")
		return model.ActionNoPremiumAvailable
	}

	if call.tier == model.TierUnknown || lead.tier == model.TierUnknown {
		return model.ActionReview
	}

	if len(signals) == 0 {
		res.ReasonCodes = append(res.ReasonCodes, "all_metrics_gated")
		return model.ActionInsufficientVolume
	}

	premiums, standards, pauses := 0, 0, 0
	for _, s := range signals {
		switch s.tier {
		case model.TierPremium:
			premiums++
		case model.TierStandard:
			standards++
		case model.TierPause:
			pauses++
		}
	}

	if in.CurrentChannel == model.ChannelPremium {
		return decidePremium(premiums, standards, pauses, len(signals))
	}
	return e.decideStandard(in, premiums, standards, pauses, len(signals), premiumAllowed, res)
}

// decidePremium: a Premium source is never paused directly. Any Pause
// signal demotes to Standard with a warning window, so a grace period
// always precedes a pause.
func decidePremium(premiums, standards, pauses, total int) model.ActionType {
	switch {
	case pauses > 0:
		return model.ActionDemoteWithWarning
	case premiums == total:
		return model.ActionKeepPremium
	case premiums > 0:
		return model.ActionKeepPremiumWatch
	case standards == total:
		return model.ActionDemoteToStandard
	default:
		return model.ActionReview
	}
}

func (e *Engine) decideStandard(in model.ClassificationInput, premiums, standards, pauses, total int, premiumAllowed bool, res *model.ClassificationResult) model.ActionType {
	switch {
	case pauses == total && total >= 2:
		// No higher tier to fall back from: paused immediately.
		return model.ActionPauseImmediate

	case pauses > 0 && premiums > 0:
		// Contradictory signals; precedence is deliberately unresolved.
		res.ReasonCodes = append(res.ReasonCodes, "contradictory_signals")
		return model.ActionReview

	case pauses > 0:
		return e.decideWarning(in, res)

	case premiums == total:
		if !premiumAllowed {
			res.ReasonCodes = append(res.ReasonCodes, "no_premium_for_traffic_type")
			return model.ActionNoPremiumAvailable
		}
		streak := e.premiumStreakDays(in)
		if streak >= e.sustainedPremiumDays {
			res.ReasonCodes = append(res.ReasonCodes, fmt.Sprintf("premium_streak=%dd", streak))
			return model.ActionUpgradeToPremium
		}
		res.ReasonCodes = append(res.ReasonCodes, fmt.Sprintf("premium_streak=%dd", streak))
		return model.ActionKeepStandardClose

	case premiums > 0:
		return model.ActionKeepStandardClose

	default:
		return model.ActionKeepStandard
	}
}

// decideWarning handles a Standard source with a failing metric. An active
// warning window is never re-triggered (no clock reset): while it runs the
// source holds at Standard, and once it expires without recovery the source
// pauses.
func (e *Engine) decideWarning(in model.ClassificationInput, res *model.ClassificationResult) model.ActionType {
	prior := in.PriorWarningUntil
	if prior != nil && recoveredSinceWarning(in.History) {
		prior = nil
	}

	switch {
	case prior == nil:
		return model.ActionWarning14Day
	case prior.After(in.DecisionDate):
		res.ReasonCodes = append(res.ReasonCodes, "warning_active")
		return model.ActionKeepStandard
	default:
		res.ReasonCodes = append(res.ReasonCodes, "warning_expired_unrecovered")
		return model.ActionPauseImmediate
	}
}

// recoveredSinceWarning reports whether any classification newer than the
// most recent warning-setting one saw the source with no failing metric.
// A recovered source that fails again gets a fresh warning, not an
// immediate pause.
func recoveredSinceWarning(history []model.ClassificationResult) bool {
	warningIdx := -1
	for i, h := range history {
		if h.WarningUntil != nil {
			warningIdx = i
			break
		}
	}
	if warningIdx <= 0 {
		return false
	}
	for _, h := range history[:warningIdx] {
		if h.CallTier != model.TierPause && h.LeadTier != model.TierPause {
			return true
		}
	}
	return false
}

// premiumStreakDays counts how many consecutive days, ending today, this
// sub_id has held every usable metric at Premium level. History is
// latest-first with one entry per daily run; a gap breaks the streak.
func (e *Engine) premiumStreakDays(in model.ClassificationInput) int {
	oldest := in.DecisionDate
	expected := in.DecisionDate.AddDate(0, 0, -1)

	for _, h := range in.History {
		day := h.DecisionDate.Truncate(24 * time.Hour)
		if !day.Equal(expected.Truncate(24 * time.Hour)) {
			break
		}
		if !premiumLevelDay(h) {
			break
		}
		oldest = h.DecisionDate
		expected = expected.AddDate(0, 0, -1)
	}

	return int(in.DecisionDate.Sub(oldest).Hours()/24) + 1
}

// premiumLevelDay reports whether a prior result had every usable metric at
// Premium level (NA metrics carry no signal and do not break a streak, but
// at least one metric must actually be Premium).
func premiumLevelDay(h model.ClassificationResult) bool {
	premium := 0
	for _, t := range []model.MetricTier{h.CallTier, h.LeadTier} {
		switch t {
		case model.TierPremium:
			premium++
		case model.TierNA:
		default:
			return false
		}
	}
	return premium > 0
}

// recommendedChannel maps the action onto the channel it implies.
func recommendedChannel(action model.ActionType, current model.Channel) model.Channel {
	switch action {
	case model.ActionKeepPremium, model.ActionKeepPremiumWatch, model.ActionUpgradeToPremium:
		return model.ChannelPremium
	case model.ActionReview, model.ActionInsufficientVolume:
		return current
	default:
		return model.ChannelStandard
	}
}

// confidence grades signal clarity: High when every metric is unambiguous
// with solid volume, Medium when a rate sits near a threshold or the window
// is thin, Low when gating excluded a metric or the decision fell through
// to review.
func (e *Engine) confidence(action model.ActionType, call, lead metricSignal, signals []metricSignal, w model.RollupWindow) model.Confidence {
	if action == model.ActionReview || action == model.ActionInsufficientVolume {
		return model.ConfidenceLow
	}
	if len(signals) < 2 {
		return model.ConfidenceLow
	}

	for _, s := range signals {
		if e.borderline(s) {
			return model.ConfidenceMedium
		}
	}

	windowDays := int(w.WindowEnd.Sub(w.WindowStart).Hours()/24) + 1
	if windowDays > 0 && w.DaysInWindow*2 < windowDays {
		return model.ConfidenceMedium
	}

	return model.ConfidenceHigh
}

// borderline reports whether the rate lies within the configured relative
// proximity of the threshold that governs its tier.
func (e *Engine) borderline(s metricSignal) bool {
	if s.rate == nil || !s.thresholds.valid() || e.thresholdProximity <= 0 {
		return false
	}

	governing := s.thresholds.Standard
	if s.tier == model.TierPremium || (s.tier == model.TierStandard && *s.rate >= (s.thresholds.Premium+s.thresholds.Standard)/2) {
		governing = s.thresholds.Premium
	}

	dist := *s.rate - governing
	if dist < 0 {
		dist = -dist
	}
	return dist <= governing*e.thresholdProximity
}
