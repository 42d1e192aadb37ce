package membership

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
)

// SnapshotProvider supplies a base constituent snapshot for a calendar year.
// Implementations typically scrape a reference listing; the year parameter
// keys the cache even when the source only serves the current listing.
type SnapshotProvider interface {
	SnapshotForYear(ctx context.Context, year int) (model.BaseSnapshot, error)
}

// SnapshotCache memoizes year snapshots. The fallback path hits the provider
// once per year per process unless Invalidate is called.
type SnapshotCache struct {
	provider SnapshotProvider

	mu   sync.Mutex
	byYr map[int]model.BaseSnapshot
}

func NewSnapshotCache(p SnapshotProvider) *SnapshotCache {
	return &SnapshotCache{provider: p, byYr: make(map[int]model.BaseSnapshot)}
}

func (c *SnapshotCache) SnapshotForYear(ctx context.Context, year int) (model.BaseSnapshot, error) {
	c.mu.Lock()
	snap, ok := c.byYr[year]
	c.mu.Unlock()
	if ok {
		return snap, nil
	}

	snap, err := c.provider.SnapshotForYear(ctx, year)
	if err != nil {
		return model.BaseSnapshot{}, err
	}
	c.mu.Lock()
	c.byYr[year] = snap
	c.mu.Unlock()
	return snap, nil
}

// Invalidate drops all cached years.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.byYr = make(map[int]model.BaseSnapshot)
	c.mu.Unlock()
}

// Resolver answers "who was in the index on date d". It prefers the derived
// membership_daily partition and degrades to the year snapshot when the
// partition is empty.
type Resolver struct {
	store store.Store
	cache *SnapshotCache
}

func NewResolver(s store.Store, cache *SnapshotCache) *Resolver {
	return &Resolver{store: s, cache: cache}
}

// MembersAsOf returns the member ticker set for date. degraded is true when
// the set came from the year snapshot rather than reconstructed membership.
// An empty index on a valid date is not an error.
func (r *Resolver) MembersAsOf(ctx context.Context, date time.Time) (map[string]struct{}, bool, error) {
	date = model.Day(date)

	recs, err := r.store.DailyMembers(ctx, date)
	if err != nil {
		return nil, false, eris.Wrapf(err, "resolver: daily members %s", date.Format(model.DateLayout))
	}
	if len(recs) > 0 {
		set := make(map[string]struct{}, len(recs))
		for _, rec := range recs {
			if rec.IsMember {
				set[rec.Ticker] = struct{}{}
			}
		}
		return set, false, nil
	}

	zap.L().Warn("no reconstructed membership for date, using year snapshot",
		zap.String("date", date.Format(model.DateLayout)),
		zap.Int("year", date.Year()))

	snap, err := r.cache.SnapshotForYear(ctx, date.Year())
	if err != nil {
		return nil, false, eris.Wrapf(err, "resolver: year snapshot %d", date.Year())
	}
	set := make(map[string]struct{}, len(snap.Tickers))
	for t := range snap.Tickers {
		set[t] = struct{}{}
	}
	return set, true, nil
}
