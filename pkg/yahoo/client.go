// Package yahoo provides a client for the Yahoo Finance chart API, covering
// daily OHLCV bars and dividend event history.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/resilience"
)

// Client defines the market data operations used by the collectors.
type Client interface {
	// DailyBar fetches the OHLCV bar for one ticker on one date. A nil row
	// with a nil error means the provider has no bar for that date.
	DailyBar(ctx context.Context, ticker string, date time.Time) (*model.PriceRow, error)
	// Dividends fetches dividend events with ex-dates in [since, until].
	// A ticker that pays no dividends returns an empty slice, not an error.
	Dividends(ctx context.Context, ticker string, since, until time.Time) ([]model.DividendEvent, error)
}

// Option configures the Yahoo client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the retry behavior for chart requests.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a Yahoo Finance chart API client.
func NewClient(opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = 1 * time.Second
	c := &httpClient{
		baseURL: "https://query1.finance.yahoo.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chartResponse mirrors the subset of the chart API payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type fetchResult struct {
	body   []byte
	status int
}

// fetch executes a chart request, retrying transient failures.
func (c *httpClient) fetch(ctx context.Context, reqURL string) ([]byte, int, error) {
	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("yahoo", "chart request")
	}
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (fetchResult, error) {
		return c.fetchOnce(ctx, reqURL)
	})
	if err != nil {
		return nil, 0, err
	}
	return res.body, res.status, nil
}

func (c *httpClient) fetchOnce(ctx context.Context, reqURL string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fetchResult{}, eris.Wrap(err, "yahoo: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; indexfill)")

	resp, err := c.http.Do(req)
	if err != nil {
		return fetchResult{}, eris.Wrap(err, "yahoo: request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, eris.Wrap(err, "yahoo: read response body")
	}
	if resilience.RetryableStatus(resp.StatusCode) {
		return fetchResult{}, resilience.NewTransientError(
			eris.Errorf("yahoo: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}
	return fetchResult{body: body, status: resp.StatusCode}, nil
}

func (c *httpClient) chart(ctx context.Context, ticker string, period1, period2 time.Time, withDividends bool) (*chartResponse, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", period1.Unix()))
	q.Set("period2", fmt.Sprintf("%d", period2.Unix()))
	q.Set("interval", "1d")
	if withDividends {
		q.Set("events", "div")
	}
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), q.Encode())

	body, status, err := c.fetch(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrapf(err, "yahoo: chart %s", ticker)
	}
	// 404 means the symbol is unknown; callers treat that as a soft miss.
	if status == http.StatusNotFound {
		return &chartResponse{}, nil
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("yahoo: chart %s: status %d: %s", ticker, status, string(body))
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrapf(err, "yahoo: parse chart %s", ticker)
	}
	if parsed.Chart.Error != nil {
		return nil, eris.Errorf("yahoo: chart %s: %s: %s",
			ticker, parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	return &parsed, nil
}

func (c *httpClient) DailyBar(ctx context.Context, ticker string, date time.Time) (*model.PriceRow, error) {
	day := model.Day(date)
	resp, err := c.chart(ctx, ticker, day, day.AddDate(0, 0, 1), false)
	if err != nil {
		return nil, err
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	for i, ts := range result.Timestamp {
		barDay := model.Day(time.Unix(ts, 0).UTC())
		if !barDay.Equal(day) {
			continue
		}
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		row := &model.PriceRow{
			Date:     day,
			Ticker:   ticker,
			Close:    *quote.Close[i],
			AdjClose: *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			row.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			row.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			row.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			row.Volume = *quote.Volume[i]
		}
		if len(result.Indicators.AdjClose) > 0 &&
			i < len(result.Indicators.AdjClose[0].AdjClose) &&
			result.Indicators.AdjClose[0].AdjClose[i] != nil {
			row.AdjClose = *result.Indicators.AdjClose[0].AdjClose[i]
		}
		return row, nil
	}
	return nil, nil
}

func (c *httpClient) Dividends(ctx context.Context, ticker string, since, until time.Time) ([]model.DividendEvent, error) {
	since, until = model.Day(since), model.Day(until)
	resp, err := c.chart(ctx, ticker, since, until.AddDate(0, 0, 1), true)
	if err != nil {
		return nil, err
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	var events []model.DividendEvent
	for _, div := range resp.Chart.Result[0].Events.Dividends {
		exDate := model.Day(time.Unix(div.Date, 0).UTC())
		if exDate.Before(since) || exDate.After(until) {
			continue
		}
		events = append(events, model.DividendEvent{
			ExDate: exDate,
			Ticker: ticker,
			Amount: div.Amount,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ExDate.Before(events[j].ExDate) })
	return events, nil
}
