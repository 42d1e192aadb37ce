package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquant/indexfill/internal/collector"
	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
	"github.com/openquant/indexfill/pkg/yahoo"
)

type stubMarketData struct{}

func (stubMarketData) DailyBar(ctx context.Context, ticker string, date time.Time) (*model.PriceRow, error) {
	return nil, nil
}

func (stubMarketData) Dividends(ctx context.Context, ticker string, since, until time.Time) ([]model.DividendEvent, error) {
	return nil, nil
}

var _ yahoo.Client = stubMarketData{}

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	coll := collector.New(stubMarketData{}, collector.Config{TickersPerSecond: 1})
	return newRouter(st, coll), st
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "closed", body["circuit"])
}

func TestMembershipEndpoint(t *testing.T) {
	router, st := newTestRouter(t)

	d := day(t, "2024-01-02")
	require.NoError(t, st.ReplaceDailyMembership(context.Background(), d, d, []model.DailyMembershipRecord{
		{Date: d, Ticker: "AAPL", InDate: day(t, "2000-01-01"), IsMember: true},
		{Date: d, Ticker: "MSFT", InDate: day(t, "2000-01-01"), IsMember: true},
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/membership?date=2024-01-02", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Date    string                        `json:"date"`
		Count   int                           `json:"count"`
		Members []model.DailyMembershipRecord `json:"members"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-01-02", body.Date)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Members, 2)
}

func TestMembershipEndpoint_BadDate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/membership?date=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/membership", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, st := newTestRouter(t)

	d := day(t, "2024-01-02")
	require.NoError(t, st.ReplaceSilverMetrics(context.Background(), d, []model.DividendMetrics{
		{Date: d, Ticker: "AAPL", LastPrice: 185.5, DividendTTM: 0.96, DividendYieldTTM: 0.52, DivCount1Y: 4, UpdatedAt: time.Now()},
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics?date=2024-01-02", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count   int                     `json:"count"`
		Metrics []model.DividendMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "AAPL", body.Metrics[0].Ticker)
}

func TestRunsEndpoint(t *testing.T) {
	router, st := newTestRouter(t)

	_, err := st.CreateRun(context.Background(), model.ModeBronze, day(t, "2024-01-02"), day(t, "2024-01-05"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int                 `json:"count"`
		Runs  []model.BackfillRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, model.ModeBronze, body.Runs[0].Mode)
}

func TestRunsEndpoint_BadLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
