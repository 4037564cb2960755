package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leadnexus/subiq/internal/model"
)

// SQLiteStore implements Store on a local sqlite file. It is the fallback
// backend for development and single-operator setups without Postgres.
type SQLiteStore struct {
	db *sql.DB
}

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339Nano
)

// NewSQLite opens or creates the sqlite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	run_date     TEXT NOT NULL,
	window_start TEXT NOT NULL,
	window_end   TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	subid_count  INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fact_rows (
	fact_date       TEXT NOT NULL,
	vertical        TEXT NOT NULL,
	traffic_type    TEXT NOT NULL,
	tier            TEXT NOT NULL,
	subid           TEXT NOT NULL,
	calls           INTEGER NOT NULL DEFAULT 0,
	paid_calls      INTEGER NOT NULL DEFAULT 0,
	qual_paid_calls INTEGER NOT NULL DEFAULT 0,
	leads           INTEGER NOT NULL DEFAULT 0,
	transfer_count  INTEGER NOT NULL DEFAULT 0,
	clicks          INTEGER NOT NULL DEFAULT 0,
	redirects       INTEGER NOT NULL DEFAULT 0,
	call_rev        REAL NOT NULL DEFAULT 0,
	lead_rev        REAL NOT NULL DEFAULT 0,
	click_rev       REAL NOT NULL DEFAULT 0,
	redirect_rev    REAL NOT NULL DEFAULT 0,
	total_rev       REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (fact_date, subid, vertical, traffic_type)
);

CREATE INDEX IF NOT EXISTS idx_fact_rows_cohort ON fact_rows(vertical, traffic_type, fact_date);

CREATE TABLE IF NOT EXISTS rollup_windows (
	run_id          TEXT NOT NULL,
	subid           TEXT NOT NULL,
	vertical        TEXT NOT NULL,
	traffic_type    TEXT NOT NULL,
	tier            TEXT NOT NULL,
	window_start    TEXT NOT NULL,
	window_end      TEXT NOT NULL,
	days_in_window  INTEGER NOT NULL,
	calls           INTEGER NOT NULL,
	paid_calls      INTEGER NOT NULL,
	qual_paid_calls INTEGER NOT NULL,
	leads           INTEGER NOT NULL,
	transfer_count  INTEGER NOT NULL,
	clicks          INTEGER NOT NULL,
	redirects       INTEGER NOT NULL,
	call_rev        REAL NOT NULL,
	lead_rev        REAL NOT NULL,
	click_rev       REAL NOT NULL,
	redirect_rev    REAL NOT NULL,
	total_rev       REAL NOT NULL,
	qr_rate            REAL,
	call_quality_rate  REAL,
	lead_transfer_rate REAL,
	rp_lead            REAL,
	rp_qcall           REAL,
	rp_click           REAL,
	rp_redirect        REAL,
	call_presence      REAL,
	lead_presence      REAL,
	call_actionable INTEGER NOT NULL,
	lead_actionable INTEGER NOT NULL,
	call_relevant   INTEGER NOT NULL,
	lead_relevant   INTEGER NOT NULL,
	PRIMARY KEY (run_id, subid)
);

CREATE TABLE IF NOT EXISTS classifications (
	run_id              TEXT NOT NULL,
	subid               TEXT NOT NULL,
	vertical            TEXT NOT NULL,
	traffic_type        TEXT NOT NULL,
	decision_date       TEXT NOT NULL,
	current_channel     TEXT NOT NULL,
	recommended_channel TEXT NOT NULL,
	action_type         TEXT NOT NULL,
	call_tier           TEXT NOT NULL,
	lead_tier           TEXT NOT NULL,
	confidence          TEXT NOT NULL,
	reason_codes        TEXT NOT NULL DEFAULT '[]',
	warning_until       TEXT,
	created_at          TEXT NOT NULL,
	PRIMARY KEY (run_id, subid)
);

CREATE INDEX IF NOT EXISTS idx_classifications_subid ON classifications(subid, decision_date DESC);

CREATE TABLE IF NOT EXISTS action_records (
	action_id    TEXT PRIMARY KEY,
	subid        TEXT NOT NULL,
	action_type  TEXT NOT NULL,
	action_date  TEXT NOT NULL,
	vertical     TEXT NOT NULL,
	traffic_type TEXT NOT NULL,
	confirmed_by TEXT,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS action_outcomes (
	action_id      TEXT PRIMARY KEY,
	subid          TEXT NOT NULL,
	status         TEXT NOT NULL,
	pre_start      TEXT NOT NULL,
	pre_end        TEXT NOT NULL,
	post_end       TEXT NOT NULL,
	treated_pre    REAL,
	treated_post   REAL,
	cohort_pre     REAL,
	cohort_post    REAL,
	did_estimate   REAL,
	revenue_impact REAL,
	outcome_label  TEXT,
	cohort_size    INTEGER NOT NULL DEFAULT 0,
	evaluated_at   TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func fmtDate(t time.Time) string { return t.Format(dateLayout) }

func fmtDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(dateLayout)
	return &v
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		// Older rows may carry a full timestamp in date columns.
		t, err = time.Parse(tsLayout, s)
	}
	return t, eris.Wrapf(err, "sqlite: parse date %q", s)
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse timestamp %q", s)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	now := time.Now().UTC().Format(tsLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_date, window_start, window_end, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, fmtDate(run.RunDate), fmtDate(run.WindowStart), fmtDate(run.WindowEnd), string(run.Status), now, now,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(tsLayout), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, subIDCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, subid_count = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), subIDCount, time.Now().UTC().Format(tsLayout), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), message, time.Now().UTC().Format(tsLayout), runID,
	)
	return eris.Wrapf(err, "sqlite: fail run %s", runID)
}

func (s *SQLiteStore) scanRun(row interface{ Scan(...any) error }) (*model.Run, error) {
	var r model.Run
	var runDate, winStart, winEnd, createdAt, updatedAt string
	var errMsg *string
	err := row.Scan(&r.ID, &runDate, &winStart, &winEnd, &r.Status, &r.SubIDCount, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if r.RunDate, err = parseDate(runDate); err != nil {
		return nil, err
	}
	if r.WindowStart, err = parseDate(winStart); err != nil {
		return nil, err
	}
	if r.WindowEnd, err = parseDate(winEnd); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_date, window_start, window_end, status, subid_count, error, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return s.scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, run_date, window_start, window_end, status, subid_count, error, created_at, updated_at
	          FROM runs WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY run_date DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) UpsertFacts(ctx context.Context, facts []model.RawFactRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert facts")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fact_rows (
			fact_date, vertical, traffic_type, tier, subid,
			calls, paid_calls, qual_paid_calls, leads, transfer_count, clicks, redirects,
			call_rev, lead_rev, click_rev, redirect_rev, total_rev
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fact_date, subid, vertical, traffic_type) DO UPDATE SET
			tier = excluded.tier,
			calls = excluded.calls, paid_calls = excluded.paid_calls,
			qual_paid_calls = excluded.qual_paid_calls, leads = excluded.leads,
			transfer_count = excluded.transfer_count, clicks = excluded.clicks, redirects = excluded.redirects,
			call_rev = excluded.call_rev, lead_rev = excluded.lead_rev,
			click_rev = excluded.click_rev, redirect_rev = excluded.redirect_rev, total_rev = excluded.total_rev`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert facts")
	}
	defer stmt.Close()

	var count int64
	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx,
			fmtDate(f.Date), string(f.Vertical), string(f.TrafficType), string(f.Tier), f.SubID,
			f.Calls, f.PaidCalls, f.QualPaidCalls, f.Leads, f.TransferCount, f.Clicks, f.Redirects,
			f.CallRev, f.LeadRev, f.ClickRev, f.RedirectRev, f.TotalRev,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert fact %s/%s", fmtDate(f.Date), f.SubID)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert facts")
	}
	return count, nil
}

const sqliteSelectFacts = `SELECT fact_date, vertical, traffic_type, tier, subid,
	calls, paid_calls, qual_paid_calls, leads, transfer_count, clicks, redirects,
	call_rev, lead_rev, click_rev, redirect_rev, total_rev FROM fact_rows`

func (s *SQLiteStore) FactsBetween(ctx context.Context, start, end time.Time) ([]model.RawFactRow, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelectFacts+` WHERE fact_date BETWEEN ? AND ? ORDER BY fact_date, subid`,
		fmtDate(start), fmtDate(end),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: facts between")
	}
	defer rows.Close()
	return sqliteScanFacts(rows)
}

func (s *SQLiteStore) FactsByCohort(ctx context.Context, vertical model.Vertical, trafficType model.TrafficType, start, end time.Time) ([]model.RawFactRow, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelectFacts+` WHERE vertical = ? AND traffic_type = ? AND fact_date BETWEEN ? AND ? ORDER BY subid, fact_date`,
		string(vertical), string(trafficType), fmtDate(start), fmtDate(end),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: facts by cohort")
	}
	defer rows.Close()
	return sqliteScanFacts(rows)
}

func sqliteScanFacts(rows *sql.Rows) ([]model.RawFactRow, error) {
	var facts []model.RawFactRow
	for rows.Next() {
		var f model.RawFactRow
		var date string
		if err := rows.Scan(
			&date, &f.Vertical, &f.TrafficType, &f.Tier, &f.SubID,
			&f.Calls, &f.PaidCalls, &f.QualPaidCalls, &f.Leads, &f.TransferCount, &f.Clicks, &f.Redirects,
			&f.CallRev, &f.LeadRev, &f.ClickRev, &f.RedirectRev, &f.TotalRev,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact row")
		}
		var err error
		if f.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: facts iterate")
}

func (s *SQLiteStore) UpsertRollups(ctx context.Context, windows []model.RollupWindow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert rollups")
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 33), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO rollup_windows (
			run_id, subid, vertical, traffic_type, tier, window_start, window_end, days_in_window,
			calls, paid_calls, qual_paid_calls, leads, transfer_count, clicks, redirects,
			call_rev, lead_rev, click_rev, redirect_rev, total_rev,
			qr_rate, call_quality_rate, lead_transfer_rate, rp_lead, rp_qcall, rp_click, rp_redirect,
			call_presence, lead_presence,
			call_actionable, lead_actionable, call_relevant, lead_relevant
		) VALUES (%s)`, placeholders))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert rollups")
	}
	defer stmt.Close()

	for _, w := range windows {
		if _, err := stmt.ExecContext(ctx,
			w.RunID, w.SubID, string(w.Vertical), string(w.TrafficType), string(w.Tier),
			fmtDate(w.WindowStart), fmtDate(w.WindowEnd), w.DaysInWindow,
			w.Calls, w.PaidCalls, w.QualPaidCalls, w.Leads, w.TransferCount, w.Clicks, w.Redirects,
			w.CallRev, w.LeadRev, w.ClickRev, w.RedirectRev, w.TotalRev,
			w.QRRate, w.CallQualityRate, w.LeadTransferRate, w.RPLead, w.RPQCall, w.RPClick, w.RPRedirect,
			w.CallPresence, w.LeadPresence,
			w.CallActionable, w.LeadActionable, w.CallRelevant, w.LeadRelevant,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert rollup %s/%s", w.RunID, w.SubID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert rollups")
}

func (s *SQLiteStore) ListRollups(ctx context.Context, runID string) ([]model.RollupWindow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, subid, vertical, traffic_type, tier, window_start, window_end, days_in_window,
			calls, paid_calls, qual_paid_calls, leads, transfer_count, clicks, redirects,
			call_rev, lead_rev, click_rev, redirect_rev, total_rev,
			qr_rate, call_quality_rate, lead_transfer_rate, rp_lead, rp_qcall, rp_click, rp_redirect,
			call_presence, lead_presence,
			call_actionable, lead_actionable, call_relevant, lead_relevant
		 FROM rollup_windows WHERE run_id = ? ORDER BY subid`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rollups")
	}
	defer rows.Close()

	var windows []model.RollupWindow
	for rows.Next() {
		var w model.RollupWindow
		var winStart, winEnd string
		if err := rows.Scan(
			&w.RunID, &w.SubID, &w.Vertical, &w.TrafficType, &w.Tier, &winStart, &winEnd, &w.DaysInWindow,
			&w.Calls, &w.PaidCalls, &w.QualPaidCalls, &w.Leads, &w.TransferCount, &w.Clicks, &w.Redirects,
			&w.CallRev, &w.LeadRev, &w.ClickRev, &w.RedirectRev, &w.TotalRev,
			&w.QRRate, &w.CallQualityRate, &w.LeadTransferRate, &w.RPLead, &w.RPQCall, &w.RPClick, &w.RPRedirect,
			&w.CallPresence, &w.LeadPresence,
			&w.CallActionable, &w.LeadActionable, &w.CallRelevant, &w.LeadRelevant,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rollup")
		}
		if w.WindowStart, err = parseDate(winStart); err != nil {
			return nil, err
		}
		if w.WindowEnd, err = parseDate(winEnd); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, eris.Wrap(rows.Err(), "sqlite: rollups iterate")
}

func (s *SQLiteStore) UpsertClassifications(ctx context.Context, results []model.ClassificationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert classifications")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO classifications (
			run_id, subid, vertical, traffic_type, decision_date,
			current_channel, recommended_channel, action_type,
			call_tier, lead_tier, confidence, reason_codes, warning_until, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert classifications")
	}
	defer stmt.Close()

	for _, r := range results {
		reasons, err := json.Marshal(r.ReasonCodes)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal reason codes")
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.SubID, string(r.Vertical), string(r.TrafficType), fmtDate(r.DecisionDate),
			string(r.CurrentChannel), string(r.RecommendedChannel), string(r.ActionType),
			string(r.CallTier), string(r.LeadTier), string(r.Confidence),
			string(reasons), fmtDatePtr(r.WarningUntil), createdAt.Format(tsLayout),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert classification %s/%s", r.RunID, r.SubID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert classifications")
}

const sqliteSelectClassifications = `SELECT run_id, subid, vertical, traffic_type, decision_date,
	current_channel, recommended_channel, action_type,
	call_tier, lead_tier, confidence, reason_codes, warning_until, created_at
	FROM classifications`

func (s *SQLiteStore) ListClassifications(ctx context.Context, runID string) ([]model.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectClassifications+` WHERE run_id = ? ORDER BY subid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list classifications")
	}
	defer rows.Close()
	return sqliteScanClassifications(rows)
}

func (s *SQLiteStore) ClassificationHistory(ctx context.Context, subID string, since time.Time) ([]model.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelectClassifications+` WHERE subid = ? AND decision_date >= ? ORDER BY decision_date DESC`,
		subID, fmtDate(since),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: classification history %s", subID)
	}
	defer rows.Close()
	return sqliteScanClassifications(rows)
}

func sqliteScanClassifications(rows *sql.Rows) ([]model.ClassificationResult, error) {
	var results []model.ClassificationResult
	for rows.Next() {
		var r model.ClassificationResult
		var decisionDate, createdAt, reasons string
		var warningUntil *string
		if err := rows.Scan(
			&r.RunID, &r.SubID, &r.Vertical, &r.TrafficType, &decisionDate,
			&r.CurrentChannel, &r.RecommendedChannel, &r.ActionType,
			&r.CallTier, &r.LeadTier, &r.Confidence, &reasons, &warningUntil, &createdAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan classification")
		}
		var err error
		if r.DecisionDate, err = parseDate(decisionDate); err != nil {
			return nil, err
		}
		if r.WarningUntil, err = parseDatePtr(warningUntil); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTS(createdAt); err != nil {
			return nil, err
		}
		if reasons != "" && reasons != "null" {
			if err := json.Unmarshal([]byte(reasons), &r.ReasonCodes); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal reason codes")
			}
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: classifications iterate")
}

func (s *SQLiteStore) CreateAction(ctx context.Context, a model.ActionRecord) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_records (action_id, subid, action_type, action_date, vertical, traffic_type, confirmed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ActionID, a.SubID, string(a.ActionType), fmtDate(a.ActionDate),
		string(a.Vertical), string(a.TrafficType), a.ConfirmedBy, createdAt.Format(tsLayout),
	)
	return eris.Wrapf(err, "sqlite: insert action %s", a.ActionID)
}

const sqliteSelectActions = `SELECT action_id, subid, action_type, action_date, vertical, traffic_type, confirmed_by, created_at
	FROM action_records`

func (s *SQLiteStore) GetAction(ctx context.Context, actionID string) (*model.ActionRecord, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectActions+` WHERE action_id = ?`, actionID)
	a, err := sqliteScanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get action %s", actionID)
	}
	return a, nil
}

func (s *SQLiteStore) DueActions(ctx context.Context, cutoff time.Time) ([]model.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.action_id, a.subid, a.action_type, a.action_date, a.vertical, a.traffic_type, a.confirmed_by, a.created_at
		 FROM action_records a
		 LEFT JOIN action_outcomes o ON o.action_id = a.action_id
		 WHERE a.action_date <= ? AND o.action_id IS NULL
		 ORDER BY a.action_date`,
		fmtDate(cutoff),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due actions")
	}
	defer rows.Close()
	return sqliteScanActions(rows)
}

func (s *SQLiteStore) ActionsBetween(ctx context.Context, vertical model.Vertical, trafficType model.TrafficType, start, end time.Time) ([]model.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelectActions+` WHERE vertical = ? AND traffic_type = ? AND action_date BETWEEN ? AND ? ORDER BY action_date`,
		string(vertical), string(trafficType), fmtDate(start), fmtDate(end),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: actions between")
	}
	defer rows.Close()
	return sqliteScanActions(rows)
}

func sqliteScanAction(row interface{ Scan(...any) error }) (*model.ActionRecord, error) {
	var a model.ActionRecord
	var actionDate, createdAt string
	var confirmedBy *string
	if err := row.Scan(&a.ActionID, &a.SubID, &a.ActionType, &actionDate, &a.Vertical, &a.TrafficType, &confirmedBy, &createdAt); err != nil {
		return nil, err
	}
	if confirmedBy != nil {
		a.ConfirmedBy = *confirmedBy
	}
	var err error
	if a.ActionDate, err = parseDate(actionDate); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func sqliteScanActions(rows *sql.Rows) ([]model.ActionRecord, error) {
	var actions []model.ActionRecord
	for rows.Next() {
		a, err := sqliteScanAction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action")
		}
		actions = append(actions, *a)
	}
	return actions, eris.Wrap(rows.Err(), "sqlite: actions iterate")
}

func (s *SQLiteStore) UpsertOutcome(ctx context.Context, o model.ActionOutcome) error {
	evaluatedAt := o.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO action_outcomes (
			action_id, subid, status, pre_start, pre_end, post_end,
			treated_pre, treated_post, cohort_pre, cohort_post,
			did_estimate, revenue_impact, outcome_label, cohort_size, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ActionID, o.SubID, string(o.Status), fmtDate(o.PreStart), fmtDate(o.PreEnd), fmtDate(o.PostEnd),
		o.TreatedPre, o.TreatedPost, o.CohortPre, o.CohortPost,
		o.DiDEstimate, o.RevenueImpact, string(o.OutcomeLabel), o.CohortSize, evaluatedAt.Format(tsLayout),
	)
	return eris.Wrapf(err, "sqlite: upsert outcome %s", o.ActionID)
}

func (s *SQLiteStore) GetOutcome(ctx context.Context, actionID string) (*model.ActionOutcome, error) {
	var o model.ActionOutcome
	var preStart, preEnd, postEnd, evaluatedAt string
	var label *string
	err := s.db.QueryRowContext(ctx,
		`SELECT action_id, subid, status, pre_start, pre_end, post_end,
		        treated_pre, treated_post, cohort_pre, cohort_post,
		        did_estimate, revenue_impact, outcome_label, cohort_size, evaluated_at
		 FROM action_outcomes WHERE action_id = ?`,
		actionID,
	).Scan(&o.ActionID, &o.SubID, &o.Status, &preStart, &preEnd, &postEnd,
		&o.TreatedPre, &o.TreatedPost, &o.CohortPre, &o.CohortPost,
		&o.DiDEstimate, &o.RevenueImpact, &label, &o.CohortSize, &evaluatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get outcome %s", actionID)
	}
	if label != nil {
		o.OutcomeLabel = model.OutcomeLabel(*label)
	}
	if o.PreStart, err = parseDate(preStart); err != nil {
		return nil, err
	}
	if o.PreEnd, err = parseDate(preEnd); err != nil {
		return nil, err
	}
	if o.PostEnd, err = parseDate(postEnd); err != nil {
		return nil, err
	}
	if o.EvaluatedAt, err = parseTS(evaluatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
