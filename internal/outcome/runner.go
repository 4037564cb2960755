package outcome

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/model"
	"github.com/leadnexus/subiq/internal/store"
)

// Runner evaluates confirmed actions whose post-period has fully elapsed
// and persists the resulting outcome per action.
type Runner struct {
	store store.Store
	cfg   config.OutcomeConfig
}

func NewRunner(st store.Store, cfg config.OutcomeConfig) *Runner {
	return &Runner{store: st, cfg: cfg}
}

// EvaluateDue measures every unmeasured action dated at least
// PreDays+PostDays before asOf. Returns the number of actions evaluated.
func (r *Runner) EvaluateDue(ctx context.Context, asOf time.Time) (int, error) {
	cutoff := asOf.AddDate(0, 0, -(r.cfg.PreDays + r.cfg.PostDays))
	due, err := r.store.DueActions(ctx, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "outcome: list due actions")
	}
	if len(due) == 0 {
		return 0, nil
	}
	zap.L().Info("outcome: evaluating due actions", zap.Int("count", len(due)))

	evaluated := 0
	for _, action := range due {
		if err := r.EvaluateAction(ctx, action); err != nil {
			return evaluated, err
		}
		evaluated++
	}
	return evaluated, nil
}

// EvaluateAction measures a single action and stores its outcome.
func (r *Runner) EvaluateAction(ctx context.Context, action model.ActionRecord) error {
	preStart := action.ActionDate.AddDate(0, 0, -r.cfg.PreDays)
	postEnd := action.ActionDate.AddDate(0, 0, r.cfg.PostDays-1)

	facts, err := r.store.FactsByCohort(ctx, action.Vertical, action.TrafficType, preStart, postEnd)
	if err != nil {
		return eris.Wrapf(err, "outcome: load cohort facts for %s", action.ActionID)
	}
	actions, err := r.store.ActionsBetween(ctx, action.Vertical, action.TrafficType, preStart, postEnd)
	if err != nil {
		return eris.Wrapf(err, "outcome: load cohort actions for %s", action.ActionID)
	}

	series := BuildSeries(facts)
	treated := SubSeries{
		SubID:       action.SubID,
		Vertical:    action.Vertical,
		TrafficType: action.TrafficType,
	}
	candidates := make([]SubSeries, 0, len(series))
	for _, s := range series {
		if s.SubID == action.SubID {
			treated = s
			continue
		}
		candidates = append(candidates, s)
	}

	out := Evaluate(action, treated, candidates, actions, r.cfg)
	if err := r.store.UpsertOutcome(ctx, out); err != nil {
		return eris.Wrapf(err, "outcome: persist outcome for %s", action.ActionID)
	}

	zap.L().Info("outcome: action evaluated",
		zap.String("action_id", action.ActionID),
		zap.String("subid", action.SubID),
		zap.String("status", string(out.Status)),
		zap.String("label", string(out.OutcomeLabel)),
		zap.Int("cohort_size", out.CohortSize))
	return nil
}

// BuildSeries converts daily fact rows into per-sub_id quality and revenue
// series. The quality rate for a day is qualified over paid calls when the
// sub_id had paid call volume that day, otherwise transfers over leads.
func BuildSeries(facts []model.RawFactRow) []SubSeries {
	bySubID := make(map[string]*SubSeries)
	for _, f := range facts {
		s, ok := bySubID[f.SubID]
		if !ok {
			s = &SubSeries{SubID: f.SubID, Vertical: f.Vertical, TrafficType: f.TrafficType}
			bySubID[f.SubID] = s
		}
		s.Points = append(s.Points, SeriesPoint{
			Date:    f.Date,
			Quality: dailyQuality(f),
			Revenue: f.TotalRev,
		})
	}

	out := make([]SubSeries, 0, len(bySubID))
	for _, s := range bySubID {
		sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Date.Before(s.Points[j].Date) })
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubID < out[j].SubID })
	return out
}

func dailyQuality(f model.RawFactRow) *float64 {
	if f.PaidCalls > 0 {
		return model.Ptr(float64(f.QualPaidCalls) / float64(f.PaidCalls))
	}
	if f.Leads > 0 {
		return model.Ptr(float64(f.TransferCount) / float64(f.Leads))
	}
	return nil
}
