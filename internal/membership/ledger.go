// Package membership maintains the index membership change ledger and
// reconstructs point-in-time constituent sets from it.
package membership

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
)

// Ledger is the append-only record of index adds and removals.
type Ledger struct {
	store store.Store
}

func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Record appends events to the ledger, dropping any whose
// (effective_date, action, ticker) key is already present. It returns the
// number actually appended.
func (l *Ledger) Record(ctx context.Context, events []model.MembershipChangeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	// Dedupe within the batch first; the store's unique constraint covers
	// collisions with already-persisted rows.
	seen := make(map[string]struct{}, len(events))
	unique := make([]model.MembershipChangeEvent, 0, len(events))
	for _, e := range events {
		e.EffectiveDate = model.Day(e.EffectiveDate)
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		seen[e.Key()] = struct{}{}
		unique = append(unique, e)
	}

	appended, err := l.store.InsertMembershipChanges(ctx, unique)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: record changes")
	}
	if skipped := len(events) - appended; skipped > 0 {
		zap.L().Debug("skipped duplicate membership changes",
			zap.Int("appended", appended),
			zap.Int("skipped", skipped))
	}
	return appended, nil
}

// Load returns the full ledger ordered by effective date. A read failure is
// wrapped with ErrSourceUnavailable so callers never mistake it for an empty
// ledger, which is a legitimate state.
func (l *Ledger) Load(ctx context.Context) ([]model.MembershipChangeEvent, error) {
	events, err := l.store.LoadMembershipChanges(ctx)
	if err != nil {
		return nil, eris.Wrap(model.ErrSourceUnavailable, err.Error())
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].EffectiveDate.Equal(events[j].EffectiveDate) {
			return events[i].EffectiveDate.Before(events[j].EffectiveDate)
		}
		return events[i].Ticker < events[j].Ticker
	})
	return events, nil
}
