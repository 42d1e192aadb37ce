package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/openquant/indexfill/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bronze_price_daily (
	date       TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	adj_close  REAL NOT NULL,
	volume     INTEGER NOT NULL,
	ingest_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS bronze_dividend_events (
	date       TEXT NOT NULL,
	ex_date    TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	amount     REAL NOT NULL,
	ingest_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS membership_changes (
	effective_date TEXT NOT NULL,
	action         TEXT NOT NULL,
	ticker         TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	year           INTEGER NOT NULL,
	UNIQUE(effective_date, action, ticker)
);

CREATE TABLE IF NOT EXISTS membership_daily (
	date      TEXT NOT NULL,
	ticker    TEXT NOT NULL,
	in_date   TEXT NOT NULL,
	out_date  TEXT,
	is_member INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS silver_dividend_metrics_daily (
	date               TEXT NOT NULL,
	ticker             TEXT NOT NULL,
	last_price         REAL NOT NULL,
	market_cap         REAL NOT NULL DEFAULT 0,
	dividend_ttm       REAL NOT NULL DEFAULT 0,
	dividend_yield_ttm REAL NOT NULL DEFAULT 0,
	div_count_1y       INTEGER NOT NULL DEFAULT 0,
	last_div_date      TEXT,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS backfill_runs (
	id           TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	start_date   TEXT NOT NULL,
	end_date     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	failed_dates TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS collection_failures (
	id         TEXT PRIMARY KEY,
	date       TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	layer      TEXT NOT NULL,
	reason     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bronze_price_date ON bronze_price_daily(date);
CREATE INDEX IF NOT EXISTS idx_bronze_price_ticker ON bronze_price_daily(ticker);
CREATE INDEX IF NOT EXISTS idx_bronze_dividend_ex_date ON bronze_dividend_events(ex_date);
CREATE INDEX IF NOT EXISTS idx_membership_changes_date ON membership_changes(effective_date);
CREATE INDEX IF NOT EXISTS idx_membership_daily_date ON membership_daily(date);
CREATE INDEX IF NOT EXISTS idx_silver_metrics_date ON silver_dividend_metrics_daily(date);
CREATE INDEX IF NOT EXISTS idx_backfill_runs_status ON backfill_runs(status);
CREATE INDEX IF NOT EXISTS idx_collection_failures_date ON collection_failures(date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendPrices(ctx context.Context, rows []model.PriceRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append prices")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bronze_price_daily (date, ticker, open, high, low, close, adj_close, volume, ingest_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append prices")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			dateStr(r.Date), r.Ticker, r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume, r.IngestAt.UTC(),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert price %s %s", r.Ticker, dateStr(r.Date))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append prices")
	}
	return len(rows), nil
}

func (s *SQLiteStore) HasPriceDate(ctx context.Context, date time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bronze_price_daily WHERE date = ?`, dateStr(date),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has price date")
	}
	return n > 0, nil
}

func (s *SQLiteStore) PricesForDate(ctx context.Context, date time.Time) ([]model.PriceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, ticker, open, high, low, close, adj_close, volume, ingest_at
		 FROM bronze_price_daily WHERE date = ? ORDER BY ticker`, dateStr(date))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prices for date")
	}
	defer rows.Close()

	var out []model.PriceRow
	for rows.Next() {
		var r model.PriceRow
		var d string
		if err := rows.Scan(&d, &r.Ticker, &r.Open, &r.High, &r.Low, &r.Close, &r.AdjClose, &r.Volume, &r.IngestAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price row")
		}
		if r.Date, err = model.ParseDate(d); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse price date %q", d)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: prices for date iterate")
}

func (s *SQLiteStore) PriceDates(ctx context.Context) ([]time.Time, error) {
	return s.distinctDates(ctx, `SELECT DISTINCT date FROM bronze_price_daily ORDER BY date`)
}

func (s *SQLiteStore) AppendDividendEvents(ctx context.Context, events []model.DividendEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append dividends")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bronze_dividend_events (date, ex_date, ticker, amount, ingest_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append dividends")
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			dateStr(e.Date), dateStr(e.ExDate), e.Ticker, e.Amount, e.IngestAt.UTC(),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert dividend %s %s", e.Ticker, dateStr(e.ExDate))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append dividends")
	}
	return len(events), nil
}

func (s *SQLiteStore) DividendEventsBetween(ctx context.Context, since, until time.Time) ([]model.DividendEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, ex_date, ticker, amount, ingest_at FROM bronze_dividend_events
		 WHERE ex_date >= ? AND ex_date <= ? ORDER BY ex_date, ticker`,
		dateStr(since), dateStr(until))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dividend events between")
	}
	defer rows.Close()

	var out []model.DividendEvent
	for rows.Next() {
		var e model.DividendEvent
		var d, ex string
		if err := rows.Scan(&d, &ex, &e.Ticker, &e.Amount, &e.IngestAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dividend row")
		}
		if e.Date, err = model.ParseDate(d); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse dividend date %q", d)
		}
		if e.ExDate, err = model.ParseDate(ex); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse ex date %q", ex)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: dividend events iterate")
}

func (s *SQLiteStore) InsertMembershipChanges(ctx context.Context, events []model.MembershipChangeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert changes")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO membership_changes (effective_date, action, ticker, description, year)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert changes")
	}
	defer stmt.Close()

	appended := 0
	for _, e := range events {
		res, err := stmt.ExecContext(ctx,
			dateStr(e.EffectiveDate), string(e.Action), e.Ticker, e.Description, e.EffectiveDate.Year())
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert change %s %s", e.Ticker, dateStr(e.EffectiveDate))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		appended += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert changes")
	}
	return appended, nil
}

func (s *SQLiteStore) LoadMembershipChanges(ctx context.Context) ([]model.MembershipChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT effective_date, action, ticker, description FROM membership_changes
		 ORDER BY effective_date, ticker`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load membership changes")
	}
	defer rows.Close()

	var out []model.MembershipChangeEvent
	for rows.Next() {
		var e model.MembershipChangeEvent
		var d, action string
		if err := rows.Scan(&d, &action, &e.Ticker, &e.Description); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan membership change")
		}
		if e.EffectiveDate, err = model.ParseDate(d); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse change date %q", d)
		}
		e.Action = model.Action(action)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load membership changes iterate")
}

func (s *SQLiteStore) ReplaceDailyMembership(ctx context.Context, start, end time.Time, recs []model.DailyMembershipRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace membership")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM membership_daily WHERE date >= ? AND date <= ?`,
		dateStr(start), dateStr(end)); err != nil {
		return eris.Wrap(err, "sqlite: delete membership partitions")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO membership_daily (date, ticker, in_date, out_date, is_member) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert membership")
	}
	defer stmt.Close()

	for _, r := range recs {
		var outDate any
		if r.OutDate != nil {
			outDate = dateStr(*r.OutDate)
		}
		if _, err := stmt.ExecContext(ctx,
			dateStr(r.Date), r.Ticker, dateStr(r.InDate), outDate, boolInt(r.IsMember)); err != nil {
			return eris.Wrapf(err, "sqlite: insert membership %s %s", r.Ticker, dateStr(r.Date))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace membership")
}

func (s *SQLiteStore) DailyMembers(ctx context.Context, date time.Time) ([]model.DailyMembershipRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, ticker, in_date, out_date, is_member FROM membership_daily
		 WHERE date = ? ORDER BY ticker`, dateStr(date))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: daily members")
	}
	defer rows.Close()

	var out []model.DailyMembershipRecord
	for rows.Next() {
		var r model.DailyMembershipRecord
		var d, in string
		var outDate sql.NullString
		var member int
		if err := rows.Scan(&d, &r.Ticker, &in, &outDate, &member); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan membership row")
		}
		if r.Date, err = model.ParseDate(d); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse membership date %q", d)
		}
		if r.InDate, err = model.ParseDate(in); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse in date %q", in)
		}
		if outDate.Valid {
			od, err := model.ParseDate(outDate.String)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: parse out date %q", outDate.String)
			}
			r.OutDate = &od
		}
		r.IsMember = member != 0
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: daily members iterate")
}

func (s *SQLiteStore) ReplaceSilverMetrics(ctx context.Context, date time.Time, metrics []model.DividendMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace silver")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM silver_dividend_metrics_daily WHERE date = ?`, dateStr(date)); err != nil {
		return eris.Wrap(err, "sqlite: delete silver partition")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO silver_dividend_metrics_daily
		 (date, ticker, last_price, market_cap, dividend_ttm, dividend_yield_ttm, div_count_1y, last_div_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert silver")
	}
	defer stmt.Close()

	for _, m := range metrics {
		var lastDiv any
		if m.LastDivDate != nil {
			lastDiv = dateStr(*m.LastDivDate)
		}
		if _, err := stmt.ExecContext(ctx,
			dateStr(m.Date), m.Ticker, m.LastPrice, m.MarketCap, m.DividendTTM,
			m.DividendYieldTTM, m.DivCount1Y, lastDiv, m.UpdatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "sqlite: insert silver %s %s", m.Ticker, dateStr(m.Date))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace silver")
}

func (s *SQLiteStore) SilverMetricsForDate(ctx context.Context, date time.Time) ([]model.DividendMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, ticker, last_price, market_cap, dividend_ttm, dividend_yield_ttm, div_count_1y, last_div_date, updated_at
		 FROM silver_dividend_metrics_daily WHERE date = ? ORDER BY ticker`, dateStr(date))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: silver metrics for date")
	}
	defer rows.Close()

	var out []model.DividendMetrics
	for rows.Next() {
		var m model.DividendMetrics
		var d string
		var lastDiv sql.NullString
		if err := rows.Scan(&d, &m.Ticker, &m.LastPrice, &m.MarketCap, &m.DividendTTM,
			&m.DividendYieldTTM, &m.DivCount1Y, &lastDiv, &m.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan silver row")
		}
		if m.Date, err = model.ParseDate(d); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse silver date %q", d)
		}
		if lastDiv.Valid {
			ld, err := model.ParseDate(lastDiv.String)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: parse last div date %q", lastDiv.String)
			}
			m.LastDivDate = &ld
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: silver metrics iterate")
}

func (s *SQLiteStore) SilverDates(ctx context.Context) ([]time.Time, error) {
	return s.distinctDates(ctx, `SELECT DISTINCT date FROM silver_dividend_metrics_daily ORDER BY date`)
}

const sqliteGoldViews = `
DROP VIEW IF EXISTS gold_dividend_snapshot;
CREATE VIEW gold_dividend_snapshot AS
	SELECT m.date, m.ticker, m.last_price, m.dividend_ttm, m.dividend_yield_ttm, m.div_count_1y, m.last_div_date
	FROM silver_dividend_metrics_daily m
	WHERE m.date = (SELECT MAX(date) FROM silver_dividend_metrics_daily);

DROP VIEW IF EXISTS gold_top_yield;
CREATE VIEW gold_top_yield AS
	SELECT date, ticker, last_price, dividend_ttm, dividend_yield_ttm
	FROM silver_dividend_metrics_daily
	WHERE dividend_ttm > 0
	ORDER BY date, dividend_yield_ttm DESC;
`

func (s *SQLiteStore) RefreshGoldViews(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteGoldViews)
	return eris.Wrap(err, "sqlite: refresh gold views")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, mode model.Mode, start, end time.Time) (*model.BackfillRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backfill_runs (id, mode, start_date, end_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(mode), dateStr(start), dateStr(end), string(model.RunStatusRunning), now, now)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.BackfillRun{
		ID:        id,
		Mode:      mode,
		StartDate: model.Day(start),
		EndDate:   model.Day(end),
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, failures []model.DateFailure) error {
	var failedJSON any
	if len(failures) > 0 {
		b, err := json.Marshal(failures)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal failed dates")
		}
		failedJSON = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE backfill_runs SET status = ?, failed_dates = ?, updated_at = ? WHERE id = ?`,
		string(status), failedJSON, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.BackfillRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, start_date, end_date, status, failed_dates, created_at, updated_at
		 FROM backfill_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.BackfillRun
	for rows.Next() {
		var r model.BackfillRun
		var mode, start, end, status string
		var failedJSON sql.NullString
		if err := rows.Scan(&r.ID, &mode, &start, &end, &status, &failedJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Mode = model.Mode(mode)
		r.Status = model.RunStatus(status)
		if r.StartDate, err = model.ParseDate(start); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse run start %q", start)
		}
		if r.EndDate, err = model.ParseDate(end); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse run end %q", end)
		}
		if failedJSON.Valid {
			if err := json.Unmarshal([]byte(failedJSON.String), &r.FailedDates); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal failed dates")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordCollectionFailures(ctx context.Context, failures []model.CollectionFailure) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record failures")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO collection_failures (id, date, ticker, layer, reason) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare record failures")
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), dateStr(f.Date), f.Ticker, f.Layer, f.Reason); err != nil {
			return eris.Wrapf(err, "sqlite: insert failure %s %s", f.Ticker, dateStr(f.Date))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit record failures")
}

// helpers

func (s *SQLiteStore) distinctDates(ctx context.Context, query string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: distinct dates")
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan date")
		}
		t, err := model.ParseDate(d)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse date %q", d)
		}
		dates = append(dates, t)
	}
	return dates, eris.Wrap(rows.Err(), "sqlite: distinct dates iterate")
}

func dateStr(t time.Time) string {
	return t.Format(model.DateLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
