package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/db"
	"github.com/leadnexus/subiq/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_run":          `SELECT id, run_date, window_start, window_end, status, subid_count, error, created_at, updated_at FROM runs WHERE id = $1`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_outcome":      `SELECT action_id, subid, status, pre_start, pre_end, post_end, treated_pre, treated_post, cohort_pre, cohort_post, did_estimate, revenue_impact, outcome_label, cohort_size, evaluated_at FROM action_outcomes WHERE action_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	run_date     DATE NOT NULL,
	window_start DATE NOT NULL,
	window_end   DATE NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	subid_count  INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fact_rows (
	fact_date       DATE NOT NULL,
	vertical        TEXT NOT NULL,
	traffic_type    TEXT NOT NULL,
	tier            TEXT NOT NULL,
	subid           TEXT NOT NULL,
	calls           BIGINT NOT NULL DEFAULT 0,
	paid_calls      BIGINT NOT NULL DEFAULT 0,
	qual_paid_calls BIGINT NOT NULL DEFAULT 0,
	leads           BIGINT NOT NULL DEFAULT 0,
	transfer_count  BIGINT NOT NULL DEFAULT 0,
	clicks          BIGINT NOT NULL DEFAULT 0,
	redirects       BIGINT NOT NULL DEFAULT 0,
	call_rev        DOUBLE PRECISION NOT NULL DEFAULT 0,
	lead_rev        DOUBLE PRECISION NOT NULL DEFAULT 0,
	click_rev       DOUBLE PRECISION NOT NULL DEFAULT 0,
	redirect_rev    DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_rev       DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (fact_date, subid, vertical, traffic_type)
);

CREATE INDEX IF NOT EXISTS idx_fact_rows_date ON fact_rows(fact_date);
CREATE INDEX IF NOT EXISTS idx_fact_rows_cohort ON fact_rows(vertical, traffic_type, fact_date);

CREATE TABLE IF NOT EXISTS rollup_windows (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	subid           TEXT NOT NULL,
	vertical        TEXT NOT NULL,
	traffic_type    TEXT NOT NULL,
	tier            TEXT NOT NULL,
	window_start    DATE NOT NULL,
	window_end      DATE NOT NULL,
	days_in_window  INTEGER NOT NULL,
	calls           BIGINT NOT NULL,
	paid_calls      BIGINT NOT NULL,
	qual_paid_calls BIGINT NOT NULL,
	leads           BIGINT NOT NULL,
	transfer_count  BIGINT NOT NULL,
	clicks          BIGINT NOT NULL,
	redirects       BIGINT NOT NULL,
	call_rev        DOUBLE PRECISION NOT NULL,
	lead_rev        DOUBLE PRECISION NOT NULL,
	click_rev       DOUBLE PRECISION NOT NULL,
	redirect_rev    DOUBLE PRECISION NOT NULL,
	total_rev       DOUBLE PRECISION NOT NULL,
	qr_rate            DOUBLE PRECISION,
	call_quality_rate  DOUBLE PRECISION,
	lead_transfer_rate DOUBLE PRECISION,
	rp_lead            DOUBLE PRECISION,
	rp_qcall           DOUBLE PRECISION,
	rp_click           DOUBLE PRECISION,
	rp_redirect        DOUBLE PRECISION,
	call_presence      DOUBLE PRECISION,
	lead_presence      DOUBLE PRECISION,
	call_actionable BOOLEAN NOT NULL,
	lead_actionable BOOLEAN NOT NULL,
	call_relevant   BOOLEAN NOT NULL,
	lead_relevant   BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, subid)
);

CREATE TABLE IF NOT EXISTS classifications (
	run_id              TEXT NOT NULL REFERENCES runs(id),
	subid               TEXT NOT NULL,
	vertical            TEXT NOT NULL,
	traffic_type        TEXT NOT NULL,
	decision_date       DATE NOT NULL,
	current_channel     TEXT NOT NULL,
	recommended_channel TEXT NOT NULL,
	action_type         TEXT NOT NULL,
	call_tier           TEXT NOT NULL,
	lead_tier           TEXT NOT NULL,
	confidence          TEXT NOT NULL,
	reason_codes        JSONB NOT NULL DEFAULT '[]',
	warning_until       DATE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, subid)
);

CREATE INDEX IF NOT EXISTS idx_classifications_subid ON classifications(subid, decision_date DESC);

CREATE TABLE IF NOT EXISTS action_records (
	action_id    TEXT PRIMARY KEY,
	subid        TEXT NOT NULL,
	action_type  TEXT NOT NULL,
	action_date  DATE NOT NULL,
	vertical     TEXT NOT NULL,
	traffic_type TEXT NOT NULL,
	confirmed_by TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_action_records_subid ON action_records(subid, action_date);
CREATE INDEX IF NOT EXISTS idx_action_records_cohort ON action_records(vertical, traffic_type, action_date);

CREATE TABLE IF NOT EXISTS action_outcomes (
	action_id      TEXT PRIMARY KEY REFERENCES action_records(action_id),
	subid          TEXT NOT NULL,
	status         TEXT NOT NULL,
	pre_start      DATE NOT NULL,
	pre_end        DATE NOT NULL,
	post_end       DATE NOT NULL,
	treated_pre    DOUBLE PRECISION,
	treated_post   DOUBLE PRECISION,
	cohort_pre     DOUBLE PRECISION,
	cohort_post    DOUBLE PRECISION,
	did_estimate   DOUBLE PRECISION,
	revenue_impact DOUBLE PRECISION,
	outcome_label  TEXT,
	cohort_size    INTEGER NOT NULL DEFAULT 0,
	evaluated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, run_date, window_start, window_end, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.RunDate, run.WindowStart, run.WindowEnd, string(run.Status), now, now,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, subIDCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, subid_count = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), subIDCount, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), message, time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "postgres: fail run %s", runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var errMsg *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, run_date, window_start, window_end, status, subid_count, error, created_at, updated_at
		 FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.RunDate, &r.WindowStart, &r.WindowEnd, &r.Status, &r.SubIDCount, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, run_date, window_start, window_end, status, subid_count, error, created_at, updated_at
	          FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY run_date DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errMsg *string
		if err := rows.Scan(&r.ID, &r.RunDate, &r.WindowStart, &r.WindowEnd, &r.Status, &r.SubIDCount, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var factColumns = []string{
	"fact_date", "vertical", "traffic_type", "tier", "subid",
	"calls", "paid_calls", "qual_paid_calls", "leads", "transfer_count", "clicks", "redirects",
	"call_rev", "lead_rev", "click_rev", "redirect_rev", "total_rev",
}

func (s *PostgresStore) UpsertFacts(ctx context.Context, facts []model.RawFactRow) (int64, error) {
	rows := make([][]any, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, []any{
			f.Date, string(f.Vertical), string(f.TrafficType), string(f.Tier), f.SubID,
			f.Calls, f.PaidCalls, f.QualPaidCalls, f.Leads, f.TransferCount, f.Clicks, f.Redirects,
			f.CallRev, f.LeadRev, f.ClickRev, f.RedirectRev, f.TotalRev,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "fact_rows",
		Columns:      factColumns,
		ConflictKeys: []string{"fact_date", "subid", "vertical", "traffic_type"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert facts")
}

const selectFacts = `SELECT fact_date, vertical, traffic_type, tier, subid,
	calls, paid_calls, qual_paid_calls, leads, transfer_count, clicks, redirects,
	call_rev, lead_rev, click_rev, redirect_rev, total_rev FROM fact_rows`

func (s *PostgresStore) FactsBetween(ctx context.Context, start, end time.Time) ([]model.RawFactRow, error) {
	rows, err := s.pool.Query(ctx,
		selectFacts+` WHERE fact_date BETWEEN $1 AND $2 ORDER BY fact_date, subid`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: facts between")
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *PostgresStore) FactsByCohort(ctx context.Context, vertical model.Vertical, trafficType model.TrafficType, start, end time.Time) ([]model.RawFactRow, error) {
	rows, err := s.pool.Query(ctx,
		selectFacts+` WHERE vertical = $1 AND traffic_type = $2 AND fact_date BETWEEN $3 AND $4 ORDER BY subid, fact_date`,
		string(vertical), string(trafficType), start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: facts by cohort")
	}
	defer rows.Close()
	return scanFacts(rows)
}

func scanFacts(rows pgx.Rows) ([]model.RawFactRow, error) {
	var facts []model.RawFactRow
	for rows.Next() {
		var f model.RawFactRow
		if err := rows.Scan(
			&f.Date, &f.Vertical, &f.TrafficType, &f.Tier, &f.SubID,
			&f.Calls, &f.PaidCalls, &f.QualPaidCalls, &f.Leads, &f.TransferCount, &f.Clicks, &f.Redirects,
			&f.CallRev, &f.LeadRev, &f.ClickRev, &f.RedirectRev, &f.TotalRev,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact row")
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: facts iterate")
}

func (s *PostgresStore) UpsertRollups(ctx context.Context, windows []model.RollupWindow) error {
	for _, w := range windows {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO rollup_windows (
				run_id, subid, vertical, traffic_type, tier, window_start, window_end, days_in_window,
				calls, paid_calls, qual_paid_calls, leads, transfer_count, clicks, redirects,
				call_rev, lead_rev, click_rev, redirect_rev, total_rev,
				qr_rate, call_quality_rate, lead_transfer_rate, rp_lead, rp_qcall, rp_click, rp_redirect,
				call_presence, lead_presence,
				call_actionable, lead_actionable, call_relevant, lead_relevant
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8,
				$9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20,
				$21, $22, $23, $24, $25, $26, $27,
				$28, $29,
				$30, $31, $32, $33
			)
			ON CONFLICT (run_id, subid) DO UPDATE SET
				vertical = EXCLUDED.vertical, traffic_type = EXCLUDED.traffic_type, tier = EXCLUDED.tier,
				window_start = EXCLUDED.window_start, window_end = EXCLUDED.window_end,
				days_in_window = EXCLUDED.days_in_window,
				calls = EXCLUDED.calls, paid_calls = EXCLUDED.paid_calls,
				qual_paid_calls = EXCLUDED.qual_paid_calls, leads = EXCLUDED.leads,
				transfer_count = EXCLUDED.transfer_count, clicks = EXCLUDED.clicks, redirects = EXCLUDED.redirects,
				call_rev = EXCLUDED.call_rev, lead_rev = EXCLUDED.lead_rev,
				click_rev = EXCLUDED.click_rev, redirect_rev = EXCLUDED.redirect_rev, total_rev = EXCLUDED.total_rev,
				qr_rate = EXCLUDED.qr_rate, call_quality_rate = EXCLUDED.call_quality_rate,
				lead_transfer_rate = EXCLUDED.lead_transfer_rate,
				rp_lead = EXCLUDED.rp_lead, rp_qcall = EXCLUDED.rp_qcall,
				rp_click = EXCLUDED.rp_click, rp_redirect = EXCLUDED.rp_redirect,
				call_presence = EXCLUDED.call_presence, lead_presence = EXCLUDED.lead_presence,
				call_actionable = EXCLUDED.call_actionable, lead_actionable = EXCLUDED.lead_actionable,
				call_relevant = EXCLUDED.call_relevant, lead_relevant = EXCLUDED.lead_relevant`,
			w.RunID, w.SubID, string(w.Vertical), string(w.TrafficType), string(w.Tier),
			w.WindowStart, w.WindowEnd, w.DaysInWindow,
			w.Calls, w.PaidCalls, w.QualPaidCalls, w.Leads, w.TransferCount, w.Clicks, w.Redirects,
			w.CallRev, w.LeadRev, w.ClickRev, w.RedirectRev, w.TotalRev,
			w.QRRate, w.CallQualityRate, w.LeadTransferRate, w.RPLead, w.RPQCall, w.RPClick, w.RPRedirect,
			w.CallPresence, w.LeadPresence,
			w.CallActionable, w.LeadActionable, w.CallRelevant, w.LeadRelevant,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert rollup %s/%s", w.RunID, w.SubID)
		}
	}
	return nil
}

const selectRollups = `SELECT run_id, subid, vertical, traffic_type, tier, window_start, window_end, days_in_window,
	calls, paid_calls, qual_paid_calls, leads, transfer_count, clicks, redirects,
	call_rev, lead_rev, click_rev, redirect_rev, total_rev,
	qr_rate, call_quality_rate, lead_transfer_rate, rp_lead, rp_qcall, rp_click, rp_redirect,
	call_presence, lead_presence,
	call_actionable, lead_actionable, call_relevant, lead_relevant
	FROM rollup_windows`

func (s *PostgresStore) ListRollups(ctx context.Context, runID string) ([]model.RollupWindow, error) {
	rows, err := s.pool.Query(ctx, selectRollups+` WHERE run_id = $1 ORDER BY subid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rollups")
	}
	defer rows.Close()

	var windows []model.RollupWindow
	for rows.Next() {
		var w model.RollupWindow
		if err := rows.Scan(
			&w.RunID, &w.SubID, &w.Vertical, &w.TrafficType, &w.Tier, &w.WindowStart, &w.WindowEnd, &w.DaysInWindow,
			&w.Calls, &w.PaidCalls, &w.QualPaidCalls, &w.Leads, &w.TransferCount, &w.Clicks, &w.Redirects,
			&w.CallRev, &w.LeadRev, &w.ClickRev, &w.RedirectRev, &w.TotalRev,
			&w.QRRate, &w.CallQualityRate, &w.LeadTransferRate, &w.RPLead, &w.RPQCall, &w.RPClick, &w.RPRedirect,
			&w.CallPresence, &w.LeadPresence,
			&w.CallActionable, &w.LeadActionable, &w.CallRelevant, &w.LeadRelevant,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rollup")
		}
		windows = append(windows, w)
	}
	return windows, eris.Wrap(rows.Err(), "postgres: rollups iterate")
}

func (s *PostgresStore) UpsertClassifications(ctx context.Context, results []model.ClassificationResult) error {
	for _, r := range results {
		reasons, err := json.Marshal(r.ReasonCodes)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal reason codes")
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err = s.pool.Exec(ctx,
			`INSERT INTO classifications (
				run_id, subid, vertical, traffic_type, decision_date,
				current_channel, recommended_channel, action_type,
				call_tier, lead_tier, confidence, reason_codes, warning_until, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (run_id, subid) DO UPDATE SET
				vertical = EXCLUDED.vertical, traffic_type = EXCLUDED.traffic_type,
				decision_date = EXCLUDED.decision_date,
				current_channel = EXCLUDED.current_channel,
				recommended_channel = EXCLUDED.recommended_channel,
				action_type = EXCLUDED.action_type,
				call_tier = EXCLUDED.call_tier, lead_tier = EXCLUDED.lead_tier,
				confidence = EXCLUDED.confidence, reason_codes = EXCLUDED.reason_codes,
				warning_until = EXCLUDED.warning_until`,
			r.RunID, r.SubID, string(r.Vertical), string(r.TrafficType), r.DecisionDate,
			string(r.CurrentChannel), string(r.RecommendedChannel), string(r.ActionType),
			string(r.CallTier), string(r.LeadTier), string(r.Confidence), reasons, r.WarningUntil, createdAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert classification %s/%s", r.RunID, r.SubID)
		}
	}
	return nil
}

const selectClassifications = `SELECT run_id, subid, vertical, traffic_type, decision_date,
	current_channel, recommended_channel, action_type,
	call_tier, lead_tier, confidence, reason_codes, warning_until, created_at
	FROM classifications`

func (s *PostgresStore) ListClassifications(ctx context.Context, runID string) ([]model.ClassificationResult, error) {
	rows, err := s.pool.Query(ctx, selectClassifications+` WHERE run_id = $1 ORDER BY subid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list classifications")
	}
	defer rows.Close()
	return scanClassifications(rows)
}

func (s *PostgresStore) ClassificationHistory(ctx context.Context, subID string, since time.Time) ([]model.ClassificationResult, error) {
	rows, err := s.pool.Query(ctx,
		selectClassifications+` WHERE subid = $1 AND decision_date >= $2 ORDER BY decision_date DESC`,
		subID, since,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: classification history %s", subID)
	}
	defer rows.Close()
	return scanClassifications(rows)
}

func scanClassifications(rows pgx.Rows) ([]model.ClassificationResult, error) {
	var results []model.ClassificationResult
	for rows.Next() {
		var r model.ClassificationResult
		var reasons []byte
		if err := rows.Scan(
			&r.RunID, &r.SubID, &r.Vertical, &r.TrafficType, &r.DecisionDate,
			&r.CurrentChannel, &r.RecommendedChannel, &r.ActionType,
			&r.CallTier, &r.LeadTier, &r.Confidence, &reasons, &r.WarningUntil, &r.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan classification")
		}
		if len(reasons) > 0 {
			if err := json.Unmarshal(reasons, &r.ReasonCodes); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal reason codes")
			}
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: classifications iterate")
}

func (s *PostgresStore) CreateAction(ctx context.Context, a model.ActionRecord) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO action_records (action_id, subid, action_type, action_date, vertical, traffic_type, confirmed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ActionID, a.SubID, string(a.ActionType), a.ActionDate, string(a.Vertical), string(a.TrafficType), a.ConfirmedBy, createdAt,
	)
	return eris.Wrapf(err, "postgres: insert action %s", a.ActionID)
}

const selectActions = `SELECT action_id, subid, action_type, action_date, vertical, traffic_type, confirmed_by, created_at
	FROM action_records`

func (s *PostgresStore) GetAction(ctx context.Context, actionID string) (*model.ActionRecord, error) {
	var a model.ActionRecord
	var confirmedBy *string
	err := s.pool.QueryRow(ctx, selectActions+` WHERE action_id = $1`, actionID).
		Scan(&a.ActionID, &a.SubID, &a.ActionType, &a.ActionDate, &a.Vertical, &a.TrafficType, &confirmedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get action %s", actionID)
	}
	if confirmedBy != nil {
		a.ConfirmedBy = *confirmedBy
	}
	return &a, nil
}

func (s *PostgresStore) DueActions(ctx context.Context, cutoff time.Time) ([]model.ActionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.action_id, a.subid, a.action_type, a.action_date, a.vertical, a.traffic_type, a.confirmed_by, a.created_at
		 FROM action_records a
		 LEFT JOIN action_outcomes o ON o.action_id = a.action_id
		 WHERE a.action_date <= $1 AND o.action_id IS NULL
		 ORDER BY a.action_date`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due actions")
	}
	defer rows.Close()
	return scanActions(rows)
}

func (s *PostgresStore) ActionsBetween(ctx context.Context, vertical model.Vertical, trafficType model.TrafficType, start, end time.Time) ([]model.ActionRecord, error) {
	rows, err := s.pool.Query(ctx,
		selectActions+` WHERE vertical = $1 AND traffic_type = $2 AND action_date BETWEEN $3 AND $4 ORDER BY action_date`,
		string(vertical), string(trafficType), start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: actions between")
	}
	defer rows.Close()
	return scanActions(rows)
}

func scanActions(rows pgx.Rows) ([]model.ActionRecord, error) {
	var actions []model.ActionRecord
	for rows.Next() {
		var a model.ActionRecord
		var confirmedBy *string
		if err := rows.Scan(&a.ActionID, &a.SubID, &a.ActionType, &a.ActionDate, &a.Vertical, &a.TrafficType, &confirmedBy, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan action")
		}
		if confirmedBy != nil {
			a.ConfirmedBy = *confirmedBy
		}
		actions = append(actions, a)
	}
	return actions, eris.Wrap(rows.Err(), "postgres: actions iterate")
}

func (s *PostgresStore) UpsertOutcome(ctx context.Context, o model.ActionOutcome) error {
	evaluatedAt := o.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO action_outcomes (
			action_id, subid, status, pre_start, pre_end, post_end,
			treated_pre, treated_post, cohort_pre, cohort_post,
			did_estimate, revenue_impact, outcome_label, cohort_size, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (action_id) DO UPDATE SET
			status = EXCLUDED.status,
			pre_start = EXCLUDED.pre_start, pre_end = EXCLUDED.pre_end, post_end = EXCLUDED.post_end,
			treated_pre = EXCLUDED.treated_pre, treated_post = EXCLUDED.treated_post,
			cohort_pre = EXCLUDED.cohort_pre, cohort_post = EXCLUDED.cohort_post,
			did_estimate = EXCLUDED.did_estimate, revenue_impact = EXCLUDED.revenue_impact,
			outcome_label = EXCLUDED.outcome_label, cohort_size = EXCLUDED.cohort_size,
			evaluated_at = EXCLUDED.evaluated_at`,
		o.ActionID, o.SubID, string(o.Status), o.PreStart, o.PreEnd, o.PostEnd,
		o.TreatedPre, o.TreatedPost, o.CohortPre, o.CohortPost,
		o.DiDEstimate, o.RevenueImpact, string(o.OutcomeLabel), o.CohortSize, evaluatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert outcome %s", o.ActionID)
}

func (s *PostgresStore) GetOutcome(ctx context.Context, actionID string) (*model.ActionOutcome, error) {
	var o model.ActionOutcome
	var label *string
	err := s.pool.QueryRow(ctx,
		`SELECT action_id, subid, status, pre_start, pre_end, post_end,
		        treated_pre, treated_post, cohort_pre, cohort_post,
		        did_estimate, revenue_impact, outcome_label, cohort_size, evaluated_at
		 FROM action_outcomes WHERE action_id = $1`,
		actionID,
	).Scan(&o.ActionID, &o.SubID, &o.Status, &o.PreStart, &o.PreEnd, &o.PostEnd,
		&o.TreatedPre, &o.TreatedPost, &o.CohortPre, &o.CohortPost,
		&o.DiDEstimate, &o.RevenueImpact, &label, &o.CohortSize, &o.EvaluatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get outcome %s", actionID)
	}
	if label != nil {
		o.OutcomeLabel = model.OutcomeLabel(*label)
	}
	return &o, nil
}
