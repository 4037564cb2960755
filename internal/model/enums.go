package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Vertical is the business line a sub_id sells into.
type Vertical string

const (
	VerticalMedicare Vertical = "medicare"
	VerticalHealth   Vertical = "health"
	VerticalLife     Vertical = "life"
	VerticalAuto     Vertical = "auto"
	VerticalHome     Vertical = "home"
)

// Verticals lists every known vertical.
var Verticals = []Vertical{VerticalMedicare, VerticalHealth, VerticalLife, VerticalAuto, VerticalHome}

// ParseVertical converts a feed value into a Vertical.
func ParseVertical(s string) (Vertical, error) {
	v := Vertical(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Verticals {
		if v == known {
			return v, nil
		}
	}
	return "", eris.Errorf("model: unknown vertical %q", s)
}

// TrafficType is the ownership class of a traffic source. It constrains
// Premium eligibility: Full O&O sources may go Premium in every vertical,
// Partial O&O only in Health and Life, Non O&O never.
type TrafficType string

const (
	TrafficFullOO    TrafficType = "full_oo"
	TrafficPartialOO TrafficType = "partial_oo"
	TrafficNonOO     TrafficType = "non_oo"
)

// ParseTrafficType converts a feed value into a TrafficType. It accepts both
// the storage form ("full_oo") and the display form ("Full O&O").
func ParseTrafficType(s string) (TrafficType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "&", "", "o_o", "oo").Replace(norm)
	switch TrafficType(norm) {
	case TrafficFullOO:
		return TrafficFullOO, nil
	case TrafficPartialOO:
		return TrafficPartialOO, nil
	case TrafficNonOO:
		return TrafficNonOO, nil
	}
	return "", eris.Errorf("model: unknown traffic type %q", s)
}

// AllowsPremium reports whether this traffic type may hold the Premium
// channel in the given vertical.
func (t TrafficType) AllowsPremium(v Vertical) bool {
	switch t {
	case TrafficFullOO:
		return true
	case TrafficPartialOO:
		return v == VerticalHealth || v == VerticalLife
	default:
		return false
	}
}

// Channel is the routing tier a sub_id currently holds or is recommended for.
type Channel string

const (
	ChannelPremium  Channel = "premium"
	ChannelStandard Channel = "standard"
)

// ParseChannel converts a stored value into a Channel.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelPremium:
		return ChannelPremium, nil
	case ChannelStandard:
		return ChannelStandard, nil
	}
	return "", eris.Errorf("model: unknown channel %q", s)
}

// MetricTier is the per-metric classification state.
//
// NA means the metric was gated out (volume or relevance) and carries no
// signal. Unknown is reserved for missing or malformed threshold
// configuration and always surfaces as low confidence.
type MetricTier string

const (
	TierPremium  MetricTier = "premium"
	TierStandard MetricTier = "standard"
	TierPause    MetricTier = "pause"
	TierUnknown  MetricTier = "unknown"
	TierNA       MetricTier = "na"
)

// Usable reports whether the tier carries an actionable signal.
func (t MetricTier) Usable() bool {
	return t == TierPremium || t == TierStandard || t == TierPause
}

// ActionType is the closed set of recommended actions.
type ActionType string

const (
	ActionKeepPremium        ActionType = "keep_premium"
	ActionKeepPremiumWatch   ActionType = "keep_premium_watch"
	ActionDemoteToStandard   ActionType = "demote_to_standard"
	ActionDemoteWithWarning  ActionType = "demote_with_warning"
	ActionUpgradeToPremium   ActionType = "upgrade_to_premium"
	ActionKeepStandardClose  ActionType = "keep_standard_close"
	ActionKeepStandard       ActionType = "keep_standard"
	ActionWarning14Day       ActionType = "warning_14_day"
	ActionPauseImmediate     ActionType = "pause_immediate"
	ActionInsufficientVolume ActionType = "insufficient_volume"
	ActionNoPremiumAvailable ActionType = "no_premium_available"
	ActionReview             ActionType = "review"
)

// ActionTypes lists all twelve action variants.
var ActionTypes = []ActionType{
	ActionKeepPremium, ActionKeepPremiumWatch, ActionDemoteToStandard,
	ActionDemoteWithWarning, ActionUpgradeToPremium, ActionKeepStandardClose,
	ActionKeepStandard, ActionWarning14Day, ActionPauseImmediate,
	ActionInsufficientVolume, ActionNoPremiumAvailable, ActionReview,
}

// ParseActionType converts a stored value into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ActionTypes {
		if a == known {
			return a, nil
		}
	}
	return "", eris.Errorf("model: unknown action type %q", s)
}

// SetsWarning reports whether confirming this action starts a 14-day
// warning window.
func (a ActionType) SetsWarning() bool {
	return a == ActionDemoteWithWarning || a == ActionWarning14Day
}

// Confidence grades how unambiguous the signal behind a decision was.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// OutcomeLabel is the causal judgment for a confirmed action.
type OutcomeLabel string

const (
	OutcomeImproved OutcomeLabel = "improved"
	OutcomeStable   OutcomeLabel = "stable"
	OutcomeDeclined OutcomeLabel = "declined"
)

// OutcomeStatus distinguishes a measured estimate from the cases where the
// tracker refused to estimate.
type OutcomeStatus string

const (
	OutcomeMeasured           OutcomeStatus = "measured"
	OutcomeInsufficientCohort OutcomeStatus = "insufficient_cohort"
	OutcomeInsufficientData   OutcomeStatus = "insufficient_data"
)
