package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/openquant/indexfill/internal/db"
	"github.com/openquant/indexfill/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which is how the Postgres store is unit tested without a database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bronze_price_daily (
	date       DATE NOT NULL,
	ticker     TEXT NOT NULL,
	open       DOUBLE PRECISION NOT NULL,
	high       DOUBLE PRECISION NOT NULL,
	low        DOUBLE PRECISION NOT NULL,
	close      DOUBLE PRECISION NOT NULL,
	adj_close  DOUBLE PRECISION NOT NULL,
	volume     BIGINT NOT NULL,
	ingest_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bronze_dividend_events (
	date       DATE NOT NULL,
	ex_date    DATE NOT NULL,
	ticker     TEXT NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	ingest_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS membership_changes (
	effective_date DATE NOT NULL,
	action         TEXT NOT NULL,
	ticker         TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	year           INT NOT NULL,
	UNIQUE(effective_date, action, ticker)
);

CREATE TABLE IF NOT EXISTS membership_daily (
	date      DATE NOT NULL,
	ticker    TEXT NOT NULL,
	in_date   DATE NOT NULL,
	out_date  DATE,
	is_member BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS silver_dividend_metrics_daily (
	date               DATE NOT NULL,
	ticker             TEXT NOT NULL,
	last_price         DOUBLE PRECISION NOT NULL,
	market_cap         DOUBLE PRECISION NOT NULL DEFAULT 0,
	dividend_ttm       DOUBLE PRECISION NOT NULL DEFAULT 0,
	dividend_yield_ttm DOUBLE PRECISION NOT NULL DEFAULT 0,
	div_count_1y       INT NOT NULL DEFAULT 0,
	last_div_date      DATE,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS backfill_runs (
	id           TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	start_date   DATE NOT NULL,
	end_date     DATE NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	failed_dates JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS collection_failures (
	id         TEXT PRIMARY KEY,
	date       DATE NOT NULL,
	ticker     TEXT NOT NULL,
	layer      TEXT NOT NULL,
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bronze_price_date ON bronze_price_daily(date);
CREATE INDEX IF NOT EXISTS idx_bronze_price_ticker ON bronze_price_daily(ticker);
CREATE INDEX IF NOT EXISTS idx_bronze_dividend_ex_date ON bronze_dividend_events(ex_date);
CREATE INDEX IF NOT EXISTS idx_membership_changes_date ON membership_changes(effective_date);
CREATE INDEX IF NOT EXISTS idx_membership_daily_date ON membership_daily(date);
CREATE INDEX IF NOT EXISTS idx_silver_metrics_date ON silver_dividend_metrics_daily(date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendPrices(ctx context.Context, rows []model.PriceRow) (int, error) {
	vals := make([][]any, 0, len(rows))
	for _, r := range rows {
		vals = append(vals, []any{
			model.Day(r.Date), r.Ticker, r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume, r.IngestAt.UTC(),
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, "bronze_price_daily",
		[]string{"date", "ticker", "open", "high", "low", "close", "adj_close", "volume", "ingest_at"}, vals)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append prices")
	}
	return int(n), nil
}

func (s *PostgresStore) HasPriceDate(ctx context.Context, date time.Time) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM bronze_price_daily WHERE date = $1`, model.Day(date),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "postgres: has price date")
	}
	return n > 0, nil
}

func (s *PostgresStore) PricesForDate(ctx context.Context, date time.Time) ([]model.PriceRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, ticker, open, high, low, close, adj_close, volume, ingest_at
		 FROM bronze_price_daily WHERE date = $1 ORDER BY ticker`, model.Day(date))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: prices for date")
	}
	defer rows.Close()

	var out []model.PriceRow
	for rows.Next() {
		var r model.PriceRow
		if err := rows.Scan(&r.Date, &r.Ticker, &r.Open, &r.High, &r.Low, &r.Close, &r.AdjClose, &r.Volume, &r.IngestAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price row")
		}
		r.Date = model.Day(r.Date)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: prices for date iterate")
}

func (s *PostgresStore) PriceDates(ctx context.Context) ([]time.Time, error) {
	return s.distinctDates(ctx, `SELECT DISTINCT date FROM bronze_price_daily ORDER BY date`)
}

func (s *PostgresStore) AppendDividendEvents(ctx context.Context, events []model.DividendEvent) (int, error) {
	vals := make([][]any, 0, len(events))
	for _, e := range events {
		vals = append(vals, []any{
			model.Day(e.Date), model.Day(e.ExDate), e.Ticker, e.Amount, e.IngestAt.UTC(),
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, "bronze_dividend_events",
		[]string{"date", "ex_date", "ticker", "amount", "ingest_at"}, vals)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append dividends")
	}
	return int(n), nil
}

func (s *PostgresStore) DividendEventsBetween(ctx context.Context, since, until time.Time) ([]model.DividendEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, ex_date, ticker, amount, ingest_at FROM bronze_dividend_events
		 WHERE ex_date >= $1 AND ex_date <= $2 ORDER BY ex_date, ticker`,
		model.Day(since), model.Day(until))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dividend events between")
	}
	defer rows.Close()

	var out []model.DividendEvent
	for rows.Next() {
		var e model.DividendEvent
		if err := rows.Scan(&e.Date, &e.ExDate, &e.Ticker, &e.Amount, &e.IngestAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dividend row")
		}
		e.Date = model.Day(e.Date)
		e.ExDate = model.Day(e.ExDate)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: dividend events iterate")
}

func (s *PostgresStore) InsertMembershipChanges(ctx context.Context, events []model.MembershipChangeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin insert changes")
	}
	defer tx.Rollback(ctx)

	appended := 0
	for _, e := range events {
		tag, err := tx.Exec(ctx,
			`INSERT INTO membership_changes (effective_date, action, ticker, description, year)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (effective_date, action, ticker) DO NOTHING`,
			model.Day(e.EffectiveDate), string(e.Action), e.Ticker, e.Description, e.EffectiveDate.Year())
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert change %s %s", e.Ticker, dateStr(e.EffectiveDate))
		}
		appended += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit insert changes")
	}
	return appended, nil
}

func (s *PostgresStore) LoadMembershipChanges(ctx context.Context) ([]model.MembershipChangeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT effective_date, action, ticker, description FROM membership_changes
		 ORDER BY effective_date, ticker`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load membership changes")
	}
	defer rows.Close()

	var out []model.MembershipChangeEvent
	for rows.Next() {
		var e model.MembershipChangeEvent
		var action string
		if err := rows.Scan(&e.EffectiveDate, &action, &e.Ticker, &e.Description); err != nil {
			return nil, eris.Wrap(err, "postgres: scan membership change")
		}
		e.EffectiveDate = model.Day(e.EffectiveDate)
		e.Action = model.Action(action)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: load membership changes iterate")
}

func (s *PostgresStore) ReplaceDailyMembership(ctx context.Context, start, end time.Time, recs []model.DailyMembershipRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace membership")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM membership_daily WHERE date >= $1 AND date <= $2`,
		model.Day(start), model.Day(end)); err != nil {
		return eris.Wrap(err, "postgres: delete membership partitions")
	}

	for _, r := range recs {
		var outDate any
		if r.OutDate != nil {
			outDate = model.Day(*r.OutDate)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO membership_daily (date, ticker, in_date, out_date, is_member)
			 VALUES ($1, $2, $3, $4, $5)`,
			model.Day(r.Date), r.Ticker, model.Day(r.InDate), outDate, r.IsMember); err != nil {
			return eris.Wrapf(err, "postgres: insert membership %s %s", r.Ticker, dateStr(r.Date))
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace membership")
}

func (s *PostgresStore) DailyMembers(ctx context.Context, date time.Time) ([]model.DailyMembershipRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, ticker, in_date, out_date, is_member FROM membership_daily
		 WHERE date = $1 ORDER BY ticker`, model.Day(date))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: daily members")
	}
	defer rows.Close()

	var out []model.DailyMembershipRecord
	for rows.Next() {
		var r model.DailyMembershipRecord
		var outDate *time.Time
		if err := rows.Scan(&r.Date, &r.Ticker, &r.InDate, &outDate, &r.IsMember); err != nil {
			return nil, eris.Wrap(err, "postgres: scan membership row")
		}
		r.Date = model.Day(r.Date)
		r.InDate = model.Day(r.InDate)
		if outDate != nil {
			od := model.Day(*outDate)
			r.OutDate = &od
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: daily members iterate")
}

func (s *PostgresStore) ReplaceSilverMetrics(ctx context.Context, date time.Time, metrics []model.DividendMetrics) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace silver")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM silver_dividend_metrics_daily WHERE date = $1`, model.Day(date)); err != nil {
		return eris.Wrap(err, "postgres: delete silver partition")
	}

	for _, m := range metrics {
		var lastDiv any
		if m.LastDivDate != nil {
			lastDiv = model.Day(*m.LastDivDate)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO silver_dividend_metrics_daily
			 (date, ticker, last_price, market_cap, dividend_ttm, dividend_yield_ttm, div_count_1y, last_div_date, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			model.Day(m.Date), m.Ticker, m.LastPrice, m.MarketCap, m.DividendTTM,
			m.DividendYieldTTM, m.DivCount1Y, lastDiv, m.UpdatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "postgres: insert silver %s %s", m.Ticker, dateStr(m.Date))
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace silver")
}

func (s *PostgresStore) SilverMetricsForDate(ctx context.Context, date time.Time) ([]model.DividendMetrics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, ticker, last_price, market_cap, dividend_ttm, dividend_yield_ttm, div_count_1y, last_div_date, updated_at
		 FROM silver_dividend_metrics_daily WHERE date = $1 ORDER BY ticker`, model.Day(date))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: silver metrics for date")
	}
	defer rows.Close()

	var out []model.DividendMetrics
	for rows.Next() {
		var m model.DividendMetrics
		var lastDiv *time.Time
		if err := rows.Scan(&m.Date, &m.Ticker, &m.LastPrice, &m.MarketCap, &m.DividendTTM,
			&m.DividendYieldTTM, &m.DivCount1Y, &lastDiv, &m.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan silver row")
		}
		m.Date = model.Day(m.Date)
		if lastDiv != nil {
			ld := model.Day(*lastDiv)
			m.LastDivDate = &ld
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: silver metrics iterate")
}

func (s *PostgresStore) SilverDates(ctx context.Context) ([]time.Time, error) {
	return s.distinctDates(ctx, `SELECT DISTINCT date FROM silver_dividend_metrics_daily ORDER BY date`)
}

const postgresGoldViews = `
CREATE OR REPLACE VIEW gold_dividend_snapshot AS
	SELECT m.date, m.ticker, m.last_price, m.dividend_ttm, m.dividend_yield_ttm, m.div_count_1y, m.last_div_date
	FROM silver_dividend_metrics_daily m
	WHERE m.date = (SELECT MAX(date) FROM silver_dividend_metrics_daily);

CREATE OR REPLACE VIEW gold_top_yield AS
	SELECT date, ticker, last_price, dividend_ttm, dividend_yield_ttm
	FROM silver_dividend_metrics_daily
	WHERE dividend_ttm > 0
	ORDER BY date, dividend_yield_ttm DESC;
`

func (s *PostgresStore) RefreshGoldViews(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresGoldViews)
	return eris.Wrap(err, "postgres: refresh gold views")
}

func (s *PostgresStore) CreateRun(ctx context.Context, mode model.Mode, start, end time.Time) (*model.BackfillRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO backfill_runs (id, mode, start_date, end_date, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(mode), model.Day(start), model.Day(end), string(model.RunStatusRunning), now, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, failures []model.DateFailure) error {
	var failedJSON any
	if len(failures) > 0 {
		b, err := json.Marshal(failures)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal failed dates")
		}
		failedJSON = string(b)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE backfill_runs SET status = $1, failed_dates = $2, updated_at = $3 WHERE id = $4`,
		string(status), failedJSON, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.BackfillRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, mode, start_date, end_date, status, failed_dates, created_at, updated_at
		 FROM backfill_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.BackfillRun
	for rows.Next() {
		var r model.BackfillRun
		var mode, status string
		var failedJSON []byte
		if err := rows.Scan(&r.ID, &mode, &r.StartDate, &r.EndDate, &status, &failedJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Mode = model.Mode(mode)
		r.Status = model.RunStatus(status)
		r.StartDate = model.Day(r.StartDate)
		r.EndDate = model.Day(r.EndDate)
		if len(failedJSON) > 0 {
			if err := json.Unmarshal(failedJSON, &r.FailedDates); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal failed dates")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordCollectionFailures(ctx context.Context, failures []model.CollectionFailure) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin record failures")
	}
	defer tx.Rollback(ctx)

	for _, f := range failures {
		if _, err := tx.Exec(ctx,
			`INSERT INTO collection_failures (id, date, ticker, layer, reason) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), model.Day(f.Date), f.Ticker, f.Layer, f.Reason); err != nil {
			return eris.Wrapf(err, "postgres: insert failure %s %s", f.Ticker, dateStr(f.Date))
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit record failures")
}

// helpers

func (s *PostgresStore) distinctDates(ctx context.Context, query string) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: distinct dates")
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan date")
		}
		dates = append(dates, model.Day(d))
	}
	return dates, eris.Wrap(rows.Err(), "postgres: distinct dates iterate")
}
