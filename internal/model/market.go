package model

import (
	"time"
)

// PriceRow is one daily OHLCV bar as ingested into the bronze layer.
type PriceRow struct {
	Date     time.Time `json:"date"`
	Ticker   string    `json:"ticker"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
	IngestAt time.Time `json:"ingest_at"`
}

// DividendEvent is one dividend payment as ingested into the bronze layer.
// Date is the collection date the event was fetched under, not the ex-date.
type DividendEvent struct {
	ExDate   time.Time `json:"ex_date"`
	Ticker   string    `json:"ticker"`
	Amount   float64   `json:"amount"`
	Date     time.Time `json:"date"`
	IngestAt time.Time `json:"ingest_at"`
}

// DividendMetrics is one silver-layer row of trailing-twelve-month dividend
// aggregates for a ticker on a date.
type DividendMetrics struct {
	Date             time.Time  `json:"date"`
	Ticker           string     `json:"ticker"`
	LastPrice        float64    `json:"last_price"`
	MarketCap        float64    `json:"market_cap"`
	DividendTTM      float64    `json:"dividend_ttm"`
	DividendYieldTTM float64    `json:"dividend_yield_ttm"`
	DivCount1Y       int        `json:"div_count_1y"`
	LastDivDate      *time.Time `json:"last_div_date,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CollectionOutcome summarizes one date's collection. Outcomes are computed
// fresh per date and never merged, except for end-of-run summary reporting.
type CollectionOutcome struct {
	Date       time.Time `json:"date"`
	Requested  []string  `json:"requested_tickers"`
	Successful []string  `json:"successful_tickers"`
	Failed     []string  `json:"failed_tickers"`
}

// SuccessRate returns the fraction of requested tickers with usable data.
func (o CollectionOutcome) SuccessRate() float64 {
	total := len(o.Successful) + len(o.Failed)
	if total == 0 {
		return 0
	}
	return float64(len(o.Successful)) / float64(total)
}

// CollectionFailure is a persisted record of a single ticker's soft failure,
// kept so a later run can retry selectively.
type CollectionFailure struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Layer  string    `json:"layer"`
	Reason string    `json:"reason"`
}
