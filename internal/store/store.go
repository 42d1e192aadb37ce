// Package store persists the layered market-data tables. Two backends are
// provided: SQLite for single-host runs and Postgres for shared deployments.
//
// Partition semantics mirror a columnar table store: rows are appended, and
// the only retraction mechanism is overwriting an entire date (or date-range)
// partition inside a transaction. There is no partial-partition delete and no
// cross-process locking; partition overwrite is the idempotency safety net
// when a range is re-run.
package store

import (
	"context"
	"time"

	"github.com/openquant/indexfill/internal/model"
)

// Store is the persistence interface for the bronze/silver/gold layers and
// the membership ledger.
type Store interface {
	// Bronze prices
	AppendPrices(ctx context.Context, rows []model.PriceRow) (int, error)
	// HasPriceDate is the ingestion gate: it reports whether the date's
	// partition already holds rows. It is the sole deduplication mechanism;
	// two concurrent invocations can both pass it and double-write.
	HasPriceDate(ctx context.Context, date time.Time) (bool, error)
	PricesForDate(ctx context.Context, date time.Time) ([]model.PriceRow, error)
	PriceDates(ctx context.Context) ([]time.Time, error)

	// Bronze dividend events
	AppendDividendEvents(ctx context.Context, events []model.DividendEvent) (int, error)
	DividendEventsBetween(ctx context.Context, since, until time.Time) ([]model.DividendEvent, error)

	// Membership ledger and daily snapshots
	InsertMembershipChanges(ctx context.Context, events []model.MembershipChangeEvent) (int, error)
	LoadMembershipChanges(ctx context.Context) ([]model.MembershipChangeEvent, error)
	ReplaceDailyMembership(ctx context.Context, start, end time.Time, recs []model.DailyMembershipRecord) error
	DailyMembers(ctx context.Context, date time.Time) ([]model.DailyMembershipRecord, error)

	// Silver metrics
	ReplaceSilverMetrics(ctx context.Context, date time.Time, metrics []model.DividendMetrics) error
	SilverMetricsForDate(ctx context.Context, date time.Time) ([]model.DividendMetrics, error)
	SilverDates(ctx context.Context) ([]time.Time, error)

	// Gold views
	RefreshGoldViews(ctx context.Context) error

	// Run bookkeeping
	CreateRun(ctx context.Context, mode model.Mode, start, end time.Time) (*model.BackfillRun, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, failures []model.DateFailure) error
	ListRuns(ctx context.Context, limit int) ([]model.BackfillRun, error)

	// Soft-failure log for selective retry
	RecordCollectionFailures(ctx context.Context, failures []model.CollectionFailure) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
