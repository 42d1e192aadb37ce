package membership

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/calendar"
	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
)

// SetupOptions controls a membership setup run.
type SetupOptions struct {
	// SeedFile overrides the embedded seed when non-empty.
	SeedFile string
	// Changes, when non-nil, replaces the seed entirely (scraped history).
	Changes []model.MembershipChangeEvent
	// IsTradingDay defaults to calendar.Weekdays.
	IsTradingDay calendar.TradingDay
}

// Setup seeds the change ledger, reconstructs daily membership over
// [start, end] and overwrites the affected partitions. The base snapshot for
// the range comes from the provider keyed by the end year.
func Setup(ctx context.Context, s store.Store, snapshots SnapshotProvider, start, end time.Time, opts SetupOptions) error {
	start, end = model.Day(start), model.Day(end)
	log := zap.L().With(
		zap.String("start", start.Format(model.DateLayout)),
		zap.String("end", end.Format(model.DateLayout)))

	changes := opts.Changes
	if changes == nil {
		var err error
		if opts.SeedFile != "" {
			changes, err = LoadSeedFile(opts.SeedFile)
		} else {
			changes, err = SeedChanges()
		}
		if err != nil {
			return eris.Wrap(err, "membership: load seed")
		}
	}

	ledger := NewLedger(s)
	appended, err := ledger.Record(ctx, changes)
	if err != nil {
		return eris.Wrap(err, "membership: seed ledger")
	}
	log.Info("membership ledger seeded",
		zap.Int("events", len(changes)),
		zap.Int("appended", appended))

	events, err := ledger.Load(ctx)
	if err != nil {
		return eris.Wrap(err, "membership: load ledger")
	}

	snap, err := snapshots.SnapshotForYear(ctx, end.Year())
	if err != nil {
		return eris.Wrap(err, "membership: base snapshot")
	}
	if len(snap.Tickers) == 0 {
		return eris.Wrap(model.ErrMissingBaseline, "membership: empty base snapshot")
	}

	isTradingDay := opts.IsTradingDay
	if isTradingDay == nil {
		isTradingDay = calendar.Weekdays
	}

	records, err := Reconstruct(events, snap, start, end, isTradingDay)
	if err != nil {
		return eris.Wrap(err, "membership: reconstruct")
	}
	if err := s.ReplaceDailyMembership(ctx, start, end, records); err != nil {
		return eris.Wrap(err, "membership: persist daily membership")
	}

	log.Info("daily membership written",
		zap.Int("ledger_events", len(events)),
		zap.Int("base_tickers", len(snap.Tickers)),
		zap.Int("rows", len(records)))
	return nil
}
