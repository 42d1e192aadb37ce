// Package calendar enumerates trading days for backfill date ranges.
package calendar

import (
	"time"

	"github.com/openquant/indexfill/internal/model"
)

// TradingDay reports whether a date is eligible for collection. The default
// implementation excludes weekends only; exchange holidays are still
// collected and come back as empty provider results.
type TradingDay func(t time.Time) bool

// Weekdays is the default trading-day predicate.
func Weekdays(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// TradingDates returns every trading day in [start, end] inclusive, in order.
func TradingDates(start, end time.Time, isTradingDay TradingDay) []time.Time {
	if isTradingDay == nil {
		isTradingDay = Weekdays
	}
	var dates []time.Time
	for d := model.Day(start); !d.After(model.Day(end)); d = d.AddDate(0, 0, 1) {
		if isTradingDay(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

// DefaultRangeDays sizes the range when neither a start date nor a
// configured override is given.
const DefaultRangeDays = 730

// ResolveRange fills in backfill range defaults: end falls back to yesterday,
// start to rangeDays before end (DefaultRangeDays when rangeDays <= 0).
func ResolveRange(start, end time.Time, now time.Time, rangeDays int) (time.Time, time.Time) {
	if rangeDays <= 0 {
		rangeDays = DefaultRangeDays
	}
	if end.IsZero() {
		end = model.Day(now).AddDate(0, 0, -1)
	} else {
		end = model.Day(end)
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -rangeDays)
	} else {
		start = model.Day(start)
	}
	return start, end
}
