// Package outcome measures whether a confirmed action worked, using a
// matched-cohort difference-in-differences estimate over rollup history.
package outcome

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/model"
)

// SeriesPoint is one observed day for a sub_id: the quality rate (nil when
// unobserved or denominator-free) and the revenue for that day.
type SeriesPoint struct {
	Date    time.Time
	Quality *float64
	Revenue float64
}

// SubSeries is the daily metric history for one sub_id.
type SubSeries struct {
	SubID       string
	Vertical    model.Vertical
	TrafficType model.TrafficType
	Points      []SeriesPoint
}

// Evaluate computes the causal outcome for one confirmed action. It is
// pure: the caller supplies the treated series, the candidate pool and the
// full action history, and is responsible for only invoking once both
// windows have fully elapsed. Evaluation is idempotent per action_id.
func Evaluate(action model.ActionRecord, treated SubSeries, candidates []SubSeries, actions []model.ActionRecord, cfg config.OutcomeConfig) model.ActionOutcome {
	preStart := action.ActionDate.AddDate(0, 0, -cfg.PreDays)
	preEnd := action.ActionDate.AddDate(0, 0, -1)
	postStart := action.ActionDate
	postEnd := action.ActionDate.AddDate(0, 0, cfg.PostDays-1)

	out := model.ActionOutcome{
		ActionID: action.ActionID,
		SubID:    action.SubID,
		PreStart: preStart,
		PreEnd:   preEnd,
		PostEnd:  postEnd,
	}

	treatedPre := meanQuality(treated, preStart, preEnd)
	treatedPost := meanQuality(treated, postStart, postEnd)
	if treatedPre == nil || treatedPost == nil {
		out.Status = model.OutcomeInsufficientData
		return out
	}
	out.TreatedPre = treatedPre
	out.TreatedPost = treatedPost

	cohort := matchCohort(action, *treatedPre, candidates, actions, preStart, preEnd, postEnd)
	out.CohortSize = len(cohort)
	if len(cohort) < cfg.MinCohortSize {
		// Never compute statistics on too small a control sample.
		out.Status = model.OutcomeInsufficientCohort
		zap.L().Info("outcome: cohort below floor",
			zap.String("action_id", action.ActionID),
			zap.Int("cohort_size", len(cohort)),
			zap.Int("min_cohort_size", cfg.MinCohortSize),
		)
		return out
	}

	cohortPre := cohortMean(cohort, preStart, preEnd)
	cohortPost := cohortMean(cohort, postStart, postEnd)
	out.CohortPre = cohortPre
	out.CohortPost = cohortPost
	if cohortPre == nil || cohortPost == nil {
		// A matched cohort can still go quality-silent in a window,
		// e.g. paused controls with no paid calls or leads.
		out.Status = model.OutcomeInsufficientData
		return out
	}

	did := (*treatedPost - *treatedPre) - (*cohortPost - *cohortPre)
	out.DiDEstimate = &did
	out.OutcomeLabel = label(did, cfg.NoiseThreshold)

	revImpact := revenueDiD(treated, cohort, preStart, preEnd, postStart, postEnd)
	out.RevenueImpact = revImpact

	out.Status = model.OutcomeMeasured
	return out
}

// matchCohort selects candidate sub_ids sharing the treated source's
// vertical and traffic type, with no confirmed action of their own
// overlapping [preStart, postEnd], and whose pre-period quality lies within
// one standard deviation (over the candidate pool) of the treated value.
func matchCohort(action model.ActionRecord, treatedPre float64, candidates []SubSeries, actions []model.ActionRecord, preStart, preEnd, postEnd time.Time) []SubSeries {
	type scored struct {
		series SubSeries
		pre    float64
	}

	var pool []scored
	for _, c := range candidates {
		if c.SubID == action.SubID {
			continue
		}
		if c.Vertical != action.Vertical || c.TrafficType != action.TrafficType {
			continue
		}
		if hasActionOverlap(c.SubID, actions, preStart, postEnd) {
			continue
		}
		pre := meanQuality(c, preStart, preEnd)
		if pre == nil {
			continue
		}
		pool = append(pool, scored{series: c, pre: *pre})
	}

	if len(pool) == 0 {
		return nil
	}

	sd := stddev(pool, func(s scored) float64 { return s.pre })

	var cohort []SubSeries
	for _, s := range pool {
		if math.Abs(s.pre-treatedPre) <= sd {
			cohort = append(cohort, s.series)
		}
	}
	return cohort
}

// hasActionOverlap reports whether the sub_id has its own confirmed action
// inside the measurement window, which would contaminate it as a control.
func hasActionOverlap(subID string, actions []model.ActionRecord, windowStart, windowEnd time.Time) bool {
	for _, a := range actions {
		if a.SubID != subID {
			continue
		}
		if !a.ActionDate.Before(windowStart) && !a.ActionDate.After(windowEnd) {
			return true
		}
	}
	return false
}

// meanQuality averages the quality rate over observed days in [start, end].
// Returns nil when no day in the range carries a rate.
func meanQuality(s SubSeries, start, end time.Time) *float64 {
	var sum float64
	var n int
	for _, p := range s.Points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		if p.Quality == nil {
			continue
		}
		sum += *p.Quality
		n++
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}

// cohortMean is the equal-weighted mean of per-member quality averages.
func cohortMean(cohort []SubSeries, start, end time.Time) *float64 {
	var sum float64
	var n int
	for _, c := range cohort {
		if m := meanQuality(c, start, end); m != nil {
			sum += *m
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}

// revenueDiD repeats the decomposition for average daily revenue.
func revenueDiD(treated SubSeries, cohort []SubSeries, preStart, preEnd, postStart, postEnd time.Time) *float64 {
	tPre := meanRevenue(treated, preStart, preEnd)
	tPost := meanRevenue(treated, postStart, postEnd)

	var cPreSum, cPostSum float64
	var n int
	for _, c := range cohort {
		cPreSum += meanRevenue(c, preStart, preEnd)
		cPostSum += meanRevenue(c, postStart, postEnd)
		n++
	}
	if n == 0 {
		return nil
	}

	did := (tPost - tPre) - (cPostSum/float64(n) - cPreSum/float64(n))
	return &did
}

// meanRevenue averages revenue over observed days in [start, end].
// Returns 0 when the range has no points.
func meanRevenue(s SubSeries, start, end time.Time) float64 {
	var sum float64
	var n int
	for _, p := range s.Points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		sum += p.Revenue
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// label converts a quality DiD into a judgment: higher quality rates are
// favorable, so a positive estimate beyond the noise threshold is an
// improvement.
func label(did, noise float64) model.OutcomeLabel {
	switch {
	case did > noise:
		return model.OutcomeImproved
	case did < -noise:
		return model.OutcomeDeclined
	default:
		return model.OutcomeStable
	}
}

func stddev[T any](items []T, value func(T) float64) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += value(it)
	}
	mean := sum / float64(len(items))

	var sq float64
	for _, it := range items {
		d := value(it) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(items)))
}
