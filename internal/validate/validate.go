// Package validate filters malformed market rows before persistence.
// Offending rows are dropped; their siblings proceed.
package validate

import (
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/model"
)

// Prices drops rows with non-positive prices, negative volume or an
// inconsistent OHLC range. When any rows were dropped, the returned error is
// a *model.ValidationError describing them; the cleaned slice is still
// usable.
func Prices(rows []model.PriceRow) ([]model.PriceRow, error) {
	valid := rows[:0:0]
	dropped := 0
	for _, r := range rows {
		if !priceRowOK(r) {
			dropped++
			zap.L().Warn("dropping invalid price row",
				zap.String("ticker", r.Ticker),
				zap.String("date", r.Date.Format(model.DateLayout)),
				zap.Float64("open", r.Open),
				zap.Float64("high", r.High),
				zap.Float64("low", r.Low),
				zap.Float64("close", r.Close),
				zap.Int64("volume", r.Volume))
			continue
		}
		valid = append(valid, r)
	}
	if dropped > 0 {
		return valid, &model.ValidationError{
			Table:  "bronze_price_daily",
			Count:  dropped,
			Reason: "non-positive price, negative volume or OHLC ordering",
		}
	}
	return valid, nil
}

func priceRowOK(r model.PriceRow) bool {
	if r.Ticker == "" || r.Date.IsZero() {
		return false
	}
	if r.Open <= 0 || r.High <= 0 || r.Low <= 0 || r.Close <= 0 {
		return false
	}
	if r.Volume < 0 {
		return false
	}
	if r.High < r.Open || r.High < r.Close || r.High < r.Low {
		return false
	}
	if r.Low > r.Open || r.Low > r.Close {
		return false
	}
	return true
}

// Dividends drops events with a non-positive amount, a missing ticker or a
// zero ex-date.
func Dividends(events []model.DividendEvent) ([]model.DividendEvent, error) {
	valid := events[:0:0]
	dropped := 0
	for _, e := range events {
		if e.Ticker == "" || e.ExDate.IsZero() || e.Amount <= 0 {
			dropped++
			zap.L().Warn("dropping invalid dividend event",
				zap.String("ticker", e.Ticker),
				zap.Float64("amount", e.Amount))
			continue
		}
		valid = append(valid, e)
	}
	if dropped > 0 {
		return valid, &model.ValidationError{
			Table:  "bronze_dividend_events",
			Count:  dropped,
			Reason: "non-positive amount or missing key fields",
		}
	}
	return valid, nil
}
