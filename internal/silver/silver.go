// Package silver derives trailing-twelve-month dividend metrics from the
// bronze layer.
package silver

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
)

// TTMWindowDays is the dividend lookback for trailing metrics.
const TTMWindowDays = 365

// BuildMetrics computes per-ticker dividend metrics for one date from that
// date's price partition and the TTM dividend events. Tickers without
// dividends get zeroed metrics, not dropped. MarketCap stays zero: shares
// outstanding are not in the bronze layer.
func BuildMetrics(prices []model.PriceRow, dividends []model.DividendEvent, date time.Time) []model.DividendMetrics {
	date = model.Day(date)
	now := time.Now().UTC()

	byTicker := make(map[string][]model.DividendEvent)
	for _, d := range dividends {
		byTicker[d.Ticker] = append(byTicker[d.Ticker], d)
	}

	metrics := make([]model.DividendMetrics, 0, len(prices))
	for _, p := range prices {
		m := model.DividendMetrics{
			Date:      date,
			Ticker:    p.Ticker,
			LastPrice: p.Close,
			UpdatedAt: now,
		}
		for _, d := range byTicker[p.Ticker] {
			m.DividendTTM += d.Amount
			m.DivCount1Y++
			if m.LastDivDate == nil || d.ExDate.After(*m.LastDivDate) {
				ex := d.ExDate
				m.LastDivDate = &ex
			}
		}
		if m.DividendTTM > 0 && p.Close > 0 {
			m.DividendYieldTTM = m.DividendTTM / p.Close * 100
		}
		metrics = append(metrics, m)
	}
	return metrics
}

// Processor runs silver derivation against the store.
type Processor struct {
	store store.Store
}

func NewProcessor(s store.Store) *Processor {
	return &Processor{store: s}
}

// ProcessDate rebuilds the silver partition for one date. Missing bronze
// prices make it a no-op, not an error: the bronze layer decides which dates
// exist.
func (p *Processor) ProcessDate(ctx context.Context, date time.Time) error {
	date = model.Day(date)
	log := zap.L().With(zap.String("date", date.Format(model.DateLayout)))

	prices, err := p.store.PricesForDate(ctx, date)
	if err != nil {
		return eris.Wrap(err, "silver: load prices")
	}
	if len(prices) == 0 {
		log.Warn("no bronze prices for date, skipping silver")
		return nil
	}

	since := date.AddDate(0, 0, -TTMWindowDays)
	dividends, err := p.store.DividendEventsBetween(ctx, since, date)
	if err != nil {
		return eris.Wrap(err, "silver: load dividend events")
	}

	metrics := BuildMetrics(prices, dividends, date)
	if err := p.store.ReplaceSilverMetrics(ctx, date, metrics); err != nil {
		return eris.Wrap(err, "silver: persist metrics")
	}

	payers := 0
	for _, m := range metrics {
		if m.DividendTTM > 0 {
			payers++
		}
	}
	log.Info("silver metrics written",
		zap.Int("tickers", len(metrics)),
		zap.Int("dividend_payers", payers))
	return nil
}

// MissingDates returns bronze dates in [start, end] that have no silver
// partition yet. The silver layer pulls from bronze instead of being pushed.
func (p *Processor) MissingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	start, end = model.Day(start), model.Day(end)

	bronzeDates, err := p.store.PriceDates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "silver: bronze dates")
	}
	silverDates, err := p.store.SilverDates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "silver: silver dates")
	}

	done := make(map[time.Time]struct{}, len(silverDates))
	for _, d := range silverDates {
		done[d] = struct{}{}
	}

	var missing []time.Time
	for _, d := range bronzeDates {
		if d.Before(start) || d.After(end) {
			continue
		}
		if _, ok := done[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing, nil
}
