package membership

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/openquant/indexfill/internal/calendar"
	"github.com/openquant/indexfill/internal/model"
)

// tickerHistory holds one ticker's add and remove dates, each sorted
// ascending, so membership on any day is a pair of binary searches.
type tickerHistory struct {
	adds    []time.Time
	removes []time.Time
}

// latestAtOrBefore returns the latest date in sorted that is <= d, or the
// zero time when none qualifies.
func latestAtOrBefore(sorted []time.Time, d time.Time) time.Time {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].After(d) })
	if i == 0 {
		return time.Time{}
	}
	return sorted[i-1]
}

// Reconstruct derives per-trading-day membership records for [start, end]
// from the change ledger and the base snapshot.
//
// A ticker is a member on day d when it is in the base snapshot or has an
// Add effective on or before d, and no Remove effective on or before d has
// taken it out. Removal is permanent; the one exception is a Remove sharing
// its date with an Add, which resolves to the Add. Only events on or before
// d ever influence d's record, so appending later-dated events never changes
// rows already emitted for earlier days. Rows are emitted for active tickers
// only.
func Reconstruct(ledger []model.MembershipChangeEvent, base model.BaseSnapshot, start, end time.Time, isTradingDay calendar.TradingDay) ([]model.DailyMembershipRecord, error) {
	if len(base.Tickers) == 0 {
		return nil, eris.Wrap(model.ErrMissingBaseline, "membership: reconstruct")
	}
	start, end = model.Day(start), model.Day(end)
	if end.Before(start) {
		return nil, eris.Errorf("membership: end %s before start %s",
			end.Format(model.DateLayout), start.Format(model.DateLayout))
	}

	histories := indexLedger(ledger)

	// Stable ticker order so reruns produce identical output.
	tickers := make([]string, 0, len(base.Tickers)+len(histories))
	seen := make(map[string]struct{}, len(base.Tickers)+len(histories))
	for t := range base.Tickers {
		tickers = append(tickers, t)
		seen[t] = struct{}{}
	}
	for t := range histories {
		if _, ok := seen[t]; !ok {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	days := calendar.TradingDates(start, end, isTradingDay)
	records := make([]model.DailyMembershipRecord, 0, len(days)*len(base.Tickers))
	for _, day := range days {
		for _, ticker := range tickers {
			h := histories[ticker]
			if !activeOn(h, base.Has(ticker), day) {
				continue
			}
			rec := model.DailyMembershipRecord{
				Date:     day,
				Ticker:   ticker,
				InDate:   day,
				IsMember: true,
			}
			// In/out dates reflect only events effective by this day,
			// so future ledger entries cannot rewrite past records.
			if h != nil && len(h.adds) > 0 && !h.adds[0].After(day) {
				rec.InDate = h.adds[0]
			}
			if h != nil && len(h.removes) > 0 && !h.removes[0].After(day) {
				out := h.removes[0]
				rec.OutDate = &out
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// activeOn applies the membership rule for a single ticker and day.
func activeOn(h *tickerHistory, inBase bool, day time.Time) bool {
	var hasAdd bool
	if h != nil {
		hasAdd = !latestAtOrBefore(h.adds, day).IsZero()
	}
	if !inBase && !hasAdd {
		return false
	}
	if h == nil {
		return true
	}
	lastRemove := latestAtOrBefore(h.removes, day)
	if lastRemove.IsZero() {
		return true
	}
	// A Remove sharing its date with an Add resolves to the Add; every
	// other remove is permanent.
	return hasDate(h.adds, lastRemove)
}

// hasDate reports whether d appears in the sorted slice.
func hasDate(sorted []time.Time, d time.Time) bool {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Before(d) })
	return i < len(sorted) && sorted[i].Equal(d)
}

// indexLedger groups ledger events per ticker with sorted date slices.
func indexLedger(ledger []model.MembershipChangeEvent) map[string]*tickerHistory {
	histories := make(map[string]*tickerHistory)
	for _, e := range ledger {
		h := histories[e.Ticker]
		if h == nil {
			h = &tickerHistory{}
			histories[e.Ticker] = h
		}
		d := model.Day(e.EffectiveDate)
		switch e.Action {
		case model.ActionAdd:
			h.adds = append(h.adds, d)
		case model.ActionRemove:
			h.removes = append(h.removes, d)
		}
	}
	for _, h := range histories {
		sort.Slice(h.adds, func(i, j int) bool { return h.adds[i].Before(h.adds[j]) })
		sort.Slice(h.removes, func(i, j int) bool { return h.removes[i].Before(h.removes[j]) })
	}
	return histories
}
