// Package collector pulls market data from the provider for a set of
// tickers, pacing requests and tolerating per-ticker failures.
package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/resilience"
	"github.com/openquant/indexfill/pkg/yahoo"
)

// SuccessThreshold is the minimum per-date success rate for a collection to
// count as successful.
const SuccessThreshold = 0.9

// Config tunes pacing and batching.
type Config struct {
	// TickersPerSecond paces individual provider calls.
	TickersPerSecond float64 `yaml:"tickers_per_second" mapstructure:"tickers_per_second"`
	// BatchDelay is the pause between batches.
	BatchDelay time.Duration `yaml:"batch_delay" mapstructure:"batch_delay"`
	// BatchSize caps how many tickers are processed per batch.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// Circuit tunes the breaker guarding the provider. Only transient
	// errors (rate limits, outages) trip it; ordinary per-ticker failures
	// do not.
	Circuit resilience.CircuitBreakerConfig `yaml:"circuit" mapstructure:"circuit"`
}

// DefaultConfig mirrors the provider's informal rate expectations: two
// tickers per second with a short breather between batches.
func DefaultConfig() Config {
	return Config{
		TickersPerSecond: 2,
		BatchDelay:       500 * time.Millisecond,
		BatchSize:        50,
	}
}

// Collector fetches daily bars and dividend histories.
type Collector struct {
	client  yahoo.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	cfg     Config
}

func New(client yahoo.Client, cfg Config) *Collector {
	if cfg.TickersPerSecond <= 0 {
		cfg.TickersPerSecond = DefaultConfig().TickersPerSecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	circuit := cfg.Circuit
	circuit.ShouldTrip = resilience.IsTransient
	circuit.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("provider circuit state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	}
	return &Collector{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.TickersPerSecond), 1),
		breaker: resilience.NewCircuitBreaker(circuit),
		cfg:     cfg,
	}
}

// Breaker exposes the provider circuit for health reporting.
func (c *Collector) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// CollectPrices fetches one day's bar for every ticker. Per-ticker failures
// and empty results are recorded in the outcome, never returned as errors;
// only context cancellation aborts the date.
func (c *Collector) CollectPrices(ctx context.Context, tickers []string, date time.Time) ([]model.PriceRow, model.CollectionOutcome, error) {
	date = model.Day(date)
	outcome := model.CollectionOutcome{Date: date, Requested: tickers}
	log := zap.L().With(zap.String("date", date.Format(model.DateLayout)))
	log.Info("collecting daily prices", zap.Int("tickers", len(tickers)))

	var rows []model.PriceRow
	for i := 0; i < len(tickers); i += c.cfg.BatchSize {
		end := i + c.cfg.BatchSize
		if end > len(tickers) {
			end = len(tickers)
		}
		batch := tickers[i:end]

		for _, ticker := range batch {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, outcome, eris.Wrap(err, "collector: pacing wait")
			}

			row, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*model.PriceRow, error) {
				return c.client.DailyBar(ctx, ticker, date)
			})
			switch {
			case ctx.Err() != nil:
				return nil, outcome, eris.Wrap(ctx.Err(), "collector: collect prices")
			case err != nil:
				outcome.Failed = append(outcome.Failed, ticker)
				log.Warn("price fetch failed", zap.String("ticker", ticker), zap.Error(err))
			case row == nil:
				outcome.Failed = append(outcome.Failed, ticker)
				log.Debug("no bar for date", zap.String("ticker", ticker))
			default:
				row.IngestAt = time.Now().UTC()
				rows = append(rows, *row)
				outcome.Successful = append(outcome.Successful, ticker)
			}
		}

		if end < len(tickers) && c.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, outcome, eris.Wrap(ctx.Err(), "collector: batch delay")
			case <-time.After(c.cfg.BatchDelay):
			}
		}
		log.Info("price batch done",
			zap.Int("processed", end),
			zap.Int("total", len(tickers)),
			zap.Int("failed", len(outcome.Failed)))
	}

	log.Info("price collection finished",
		zap.Int("successful", len(outcome.Successful)),
		zap.Int("failed", len(outcome.Failed)),
		zap.Float64("success_rate", outcome.SuccessRate()))
	return rows, outcome, nil
}

// CollectDividends fetches dividend events with ex-dates in [since, until]
// for every ticker. collectionDate stamps the partition the events land in.
// A ticker with no events contributes zero rows.
func (c *Collector) CollectDividends(ctx context.Context, tickers []string, since, until, collectionDate time.Time) ([]model.DividendEvent, model.CollectionOutcome, error) {
	collectionDate = model.Day(collectionDate)
	outcome := model.CollectionOutcome{Date: collectionDate, Requested: tickers}
	log := zap.L().With(zap.String("date", collectionDate.Format(model.DateLayout)))
	log.Info("collecting dividend events",
		zap.Int("tickers", len(tickers)),
		zap.String("since", model.Day(since).Format(model.DateLayout)),
		zap.String("until", model.Day(until).Format(model.DateLayout)))

	now := time.Now().UTC()
	var events []model.DividendEvent
	for _, ticker := range tickers {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, outcome, eris.Wrap(err, "collector: pacing wait")
		}

		tickerEvents, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]model.DividendEvent, error) {
			return c.client.Dividends(ctx, ticker, since, until)
		})
		switch {
		case ctx.Err() != nil:
			return nil, outcome, eris.Wrap(ctx.Err(), "collector: collect dividends")
		case err != nil:
			outcome.Failed = append(outcome.Failed, ticker)
			log.Warn("dividend fetch failed", zap.String("ticker", ticker), zap.Error(err))
		default:
			for _, e := range tickerEvents {
				e.Date = collectionDate
				e.IngestAt = now
				events = append(events, e)
			}
			outcome.Successful = append(outcome.Successful, ticker)
		}
	}

	log.Info("dividend collection finished",
		zap.Int("events", len(events)),
		zap.Int("successful", len(outcome.Successful)),
		zap.Int("failed", len(outcome.Failed)))
	return events, outcome, nil
}

// CheckThreshold converts a below-threshold outcome into a
// PartialCollectionError; a passing outcome returns nil.
func CheckThreshold(outcome model.CollectionOutcome) error {
	if len(outcome.Requested) == 0 {
		return nil
	}
	if rate := outcome.SuccessRate(); rate < SuccessThreshold {
		return &model.PartialCollectionError{
			Date:        outcome.Date,
			SuccessRate: rate,
			Failed:      len(outcome.Failed),
		}
	}
	return nil
}
