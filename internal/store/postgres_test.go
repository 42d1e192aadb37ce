package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquant/indexfill/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_HasPriceDate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := day("2024-01-02")

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM bronze_price_daily WHERE date = \$1`).
		WithArgs(d).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(503))

	ok, err := s.HasPriceDate(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasPriceDate_EmptyPartition(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := day("2024-01-03")

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM bronze_price_daily`).
		WithArgs(d).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	ok, err := s.HasPriceDate(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendPrices_BulkCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := day("2024-01-02")
	ingest := time.Now().UTC()

	mock.ExpectCopyFrom(pgx.Identifier{"bronze_price_daily"},
		[]string{"date", "ticker", "open", "high", "low", "close", "adj_close", "volume", "ingest_at"}).
		WillReturnResult(2)

	n, err := s.AppendPrices(context.Background(), []model.PriceRow{
		{Date: d, Ticker: "AAPL", Open: 185.1, High: 186.0, Low: 184.2, Close: 185.6, AdjClose: 185.6, Volume: 40000000, IngestAt: ingest},
		{Date: d, Ticker: "MSFT", Open: 373.0, High: 375.9, Low: 372.1, Close: 374.1, AdjClose: 374.1, Volume: 21000000, IngestAt: ingest},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendDividendEvents_BulkCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := day("2024-01-02")

	mock.ExpectCopyFrom(pgx.Identifier{"bronze_dividend_events"},
		[]string{"date", "ex_date", "ticker", "amount", "ingest_at"}).
		WillReturnResult(1)

	n, err := s.AppendDividendEvents(context.Background(), []model.DividendEvent{
		{Date: d, ExDate: day("2023-11-10"), Ticker: "AAPL", Amount: 0.24, IngestAt: time.Now().UTC()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertMembershipChanges_ConflictIgnored(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := day("1997-05-15")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO membership_changes .* ON CONFLICT`).
		WithArgs(d, "add", "AMZN", "", 1997).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO membership_changes .* ON CONFLICT`).
		WithArgs(d, "add", "AMZN", "", 1997).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := s.InsertMembershipChanges(context.Background(), []model.MembershipChangeEvent{
		{EffectiveDate: d, Action: model.ActionAdd, Ticker: "AMZN"},
		{EffectiveDate: d, Action: model.ActionAdd, Ticker: "AMZN"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceSilverMetrics_DeletesPartitionFirst(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := day("2024-06-03")
	updated := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM silver_dividend_metrics_daily WHERE date = \$1`).
		WithArgs(d).
		WillReturnResult(pgxmock.NewResult("DELETE", 503))
	mock.ExpectExec(`INSERT INTO silver_dividend_metrics_daily`).
		WithArgs(d, "AAPL", 194.0, 0.0, 0.97, 0.5, 4, nil, updated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.ReplaceSilverMetrics(context.Background(), d, []model.DividendMetrics{
		{Date: d, Ticker: "AAPL", LastPrice: 194.0, DividendTTM: 0.97, DividendYieldTTM: 0.5, DivCount1Y: 4, UpdatedAt: updated},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE backfill_runs SET status`).
		WithArgs("failed", nil, pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing-run", model.RunStatusFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, mode, start_date, end_date, status, failed_dates, created_at, updated_at`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "mode", "start_date", "end_date", "status", "failed_dates", "created_at", "updated_at"}).
			AddRow("run-1", "full", day("2023-01-01"), day("2024-01-01"), "failed",
				[]byte(`[{"date":"2023-03-15T00:00:00Z","error":"all tickers failed"}]`), now, now))

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.ModeFull, runs[0].Mode)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	require.Len(t, runs[0].FailedDates, 1)
	assert.True(t, runs[0].FailedDates[0].Date.Equal(day("2023-03-15")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RefreshGoldViews(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE OR REPLACE VIEW gold_dividend_snapshot`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.RefreshGoldViews(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
