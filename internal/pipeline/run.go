package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/model"
	"github.com/leadnexus/subiq/internal/resilience"
	"github.com/leadnexus/subiq/internal/rollup"
	"github.com/leadnexus/subiq/internal/rules"
	"github.com/leadnexus/subiq/internal/store"
)

// Runner drives a full classification run: load the fact window,
// aggregate rollups, classify each sub_id, and persist everything
// under a single run record.
type Runner struct {
	store  store.Store
	engine *rules.Engine
	cfg    config.Config
}

func NewRunner(st store.Store, engine *rules.Engine, cfg config.Config) *Runner {
	return &Runner{store: st, engine: engine, cfg: cfg}
}

// Execute performs one run for runDate. The aggregation window is the
// trailing closed interval ending the day before runDate.
func (r *Runner) Execute(ctx context.Context, runDate time.Time) (*model.Run, error) {
	runDate = runDate.Truncate(24 * time.Hour)
	windowEnd := runDate.AddDate(0, 0, -1)
	windowStart := runDate.AddDate(0, 0, -r.cfg.Rollup.WindowDays)

	run := model.Run{
		ID:          uuid.NewString(),
		RunDate:     runDate,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Status:      model.RunStatusQueued,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.Time("run_date", runDate))
	log.Info("pipeline: run started",
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd))

	result, err := r.execute(ctx, log, run)
	if err != nil {
		if failErr := r.store.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			log.Error("pipeline: failed to record run failure", zap.Error(failErr))
		}
		return nil, err
	}
	return result, nil
}

func (r *Runner) execute(ctx context.Context, log *zap.Logger, run model.Run) (*model.Run, error) {
	if err := r.store.UpdateRunStatus(ctx, run.ID, model.RunStatusAggregating); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark aggregating")
	}

	facts, err := resilience.DoVal(ctx, resilience.RetryConfig{
		OnRetry: resilience.LogRetries("load facts"),
	}, func(ctx context.Context) ([]model.RawFactRow, error) {
		return r.store.FactsBetween(ctx, run.WindowStart, run.WindowEnd)
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load facts")
	}
	log.Info("pipeline: facts loaded", zap.Int("rows", len(facts)))

	windows := rollup.Aggregate(facts, run.WindowStart, run.WindowEnd, rollup.Gates{
		MinCallsWindow:    r.cfg.Rollup.MinCallsWindow,
		MinLeadsWindow:    r.cfg.Rollup.MinLeadsWindow,
		PresenceThreshold: r.cfg.Rollup.PresenceThreshold,
	})
	for i := range windows {
		windows[i].RunID = run.ID
	}
	log.Info("pipeline: rollups aggregated", zap.Int("windows", len(windows)))

	if err := r.store.UpsertRollups(ctx, windows); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist rollups")
	}
	if err := r.store.UpdateRunStatus(ctx, run.ID, model.RunStatusClassifying); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark classifying")
	}

	results, err := r.classifyAll(ctx, run, windows)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertClassifications(ctx, results); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist classifications")
	}
	if err := r.store.CompleteRun(ctx, run.ID, len(results)); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}
	log.Info("pipeline: run complete", zap.Int("classified", len(results)))

	run.Status = model.RunStatusComplete
	run.SubIDCount = len(results)
	return &run, nil
}

func (r *Runner) classifyAll(ctx context.Context, run model.Run, windows []model.RollupWindow) ([]model.ClassificationResult, error) {
	historySince := run.RunDate.AddDate(0, 0, -r.cfg.Pipeline.HistoryLookbackDays)

	var mu sync.Mutex
	results := make([]model.ClassificationResult, 0, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.cfg.Pipeline.MaxConcurrentSubIDs
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, w := range windows {
		w := w
		g.Go(func() error {
			history, err := r.store.ClassificationHistory(gctx, w.SubID, historySince)
			if err != nil {
				return eris.Wrapf(err, "pipeline: history %s", w.SubID)
			}
			in := model.ClassificationInput{
				Rollup:            w,
				CurrentChannel:    currentChannel(history),
				DecisionDate:      run.RunDate,
				PriorWarningUntil: priorWarning(history),
				History:           history,
			}
			out := r.engine.Classify(in)
			out.RunID = run.ID

			mu.Lock()
			results = append(results, out)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SubID < results[j].SubID })
	return results, nil
}

// currentChannel resolves a sub_id's channel from its most recent
// classification, defaulting new sub_ids to standard.
func currentChannel(history []model.ClassificationResult) model.Channel {
	if len(history) == 0 {
		return model.ChannelStandard
	}
	return history[0].RecommendedChannel
}

// priorWarning returns the most recent warning expiry on record, if any.
func priorWarning(history []model.ClassificationResult) *time.Time {
	for _, h := range history {
		if h.WarningUntil != nil {
			return h.WarningUntil
		}
	}
	return nil
}
