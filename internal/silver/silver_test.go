package silver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
)

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestBuildMetrics_YieldComputation(t *testing.T) {
	prices := []model.PriceRow{
		{Date: day("2024-06-03"), Ticker: "AAPL", Close: 194.0},
	}
	dividends := []model.DividendEvent{
		{ExDate: day("2023-08-11"), Ticker: "AAPL", Amount: 0.24},
		{ExDate: day("2023-11-10"), Ticker: "AAPL", Amount: 0.24},
		{ExDate: day("2024-02-09"), Ticker: "AAPL", Amount: 0.24},
		{ExDate: day("2024-05-10"), Ticker: "AAPL", Amount: 0.25},
	}

	metrics := BuildMetrics(prices, dividends, day("2024-06-03"))
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.InDelta(t, 0.97, m.DividendTTM, 1e-9)
	assert.InDelta(t, 0.97/194.0*100, m.DividendYieldTTM, 1e-9)
	assert.Equal(t, 4, m.DivCount1Y)
	require.NotNil(t, m.LastDivDate)
	assert.True(t, m.LastDivDate.Equal(day("2024-05-10")))
	assert.Zero(t, m.MarketCap)
}

func TestBuildMetrics_NonPayerGetsZeroRow(t *testing.T) {
	prices := []model.PriceRow{
		{Date: day("2024-06-03"), Ticker: "GOOG", Close: 174.4},
	}

	metrics := BuildMetrics(prices, nil, day("2024-06-03"))
	require.Len(t, metrics, 1)
	assert.Zero(t, metrics[0].DividendTTM)
	assert.Zero(t, metrics[0].DividendYieldTTM)
	assert.Zero(t, metrics[0].DivCount1Y)
	assert.Nil(t, metrics[0].LastDivDate)
	assert.Equal(t, 174.4, metrics[0].LastPrice)
}

func TestProcessDate_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendPrices(ctx, []model.PriceRow{
		{Date: day("2024-06-03"), Ticker: "AAPL", Open: 193, High: 195, Low: 192, Close: 194, AdjClose: 194, Volume: 1000, IngestAt: time.Now()},
		{Date: day("2024-06-03"), Ticker: "GOOG", Open: 173, High: 175, Low: 172, Close: 174.4, AdjClose: 174.4, Volume: 900, IngestAt: time.Now()},
	})
	require.NoError(t, err)

	_, err = s.AppendDividendEvents(ctx, []model.DividendEvent{
		{Date: day("2024-06-03"), ExDate: day("2024-05-10"), Ticker: "AAPL", Amount: 0.25, IngestAt: time.Now()},
		// Outside the TTM window, must be excluded.
		{Date: day("2024-06-03"), ExDate: day("2022-05-06"), Ticker: "AAPL", Amount: 0.23, IngestAt: time.Now()},
	})
	require.NoError(t, err)

	p := NewProcessor(s)
	require.NoError(t, p.ProcessDate(ctx, day("2024-06-03")))

	metrics, err := s.SilverMetricsForDate(ctx, day("2024-06-03"))
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.InDelta(t, 0.25, metrics[0].DividendTTM, 1e-9)
	assert.Equal(t, 1, metrics[0].DivCount1Y)
	assert.Zero(t, metrics[1].DividendTTM)
}

func TestProcessDate_NoBronzeIsNoOp(t *testing.T) {
	s := newTestStore(t)
	p := NewProcessor(s)

	require.NoError(t, p.ProcessDate(context.Background(), day("2024-06-03")))

	dates, err := s.SilverDates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestMissingDates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-04"} {
		_, err := s.AppendPrices(ctx, []model.PriceRow{
			{Date: day(d), Ticker: "AAPL", Open: 1, High: 1, Low: 1, Close: 1, AdjClose: 1, Volume: 1, IngestAt: time.Now()},
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.ReplaceSilverMetrics(ctx, day("2024-01-03"), []model.DividendMetrics{
		{Date: day("2024-01-03"), Ticker: "AAPL", LastPrice: 1, UpdatedAt: time.Now()},
	}))

	p := NewProcessor(s)
	missing, err := p.MissingDates(ctx, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2024-01-02"), day("2024-01-04")}, missing)

	// Range bounds exclude bronze dates outside the window.
	missing, err = p.MissingDates(ctx, day("2024-01-03"), day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2024-01-04")}, missing)
}
