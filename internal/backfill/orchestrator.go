// Package backfill sequences the bronze, silver and gold layers over a date
// range, tolerating per-date partial failures.
package backfill

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/calendar"
	"github.com/openquant/indexfill/internal/collector"
	"github.com/openquant/indexfill/internal/gold"
	"github.com/openquant/indexfill/internal/membership"
	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/silver"
	"github.com/openquant/indexfill/internal/store"
	"github.com/openquant/indexfill/internal/validate"
)

// State tracks where a run is in its lifecycle. Transitions are linear with
// a loop over date batches:
//
//	Idle -> RangeComputed -> (BatchRunning -> BatchComplete)* -> RangeComplete | RangeFailed
type State string

const (
	StateIdle          State = "idle"
	StateRangeComputed State = "range_computed"
	StateBatchRunning  State = "batch_running"
	StateBatchComplete State = "batch_complete"
	StateRangeComplete State = "range_complete"
	StateRangeFailed   State = "range_failed"
)

// DividendLookbackDays is the event history window fetched per date.
const DividendLookbackDays = 400

// IncrementalDaysBack is the default window for incremental runs.
const IncrementalDaysBack = 7

// Config tunes range sizing. Zero values fall back to the package defaults.
type Config struct {
	// DefaultRangeDays sizes the range when no start date is given.
	DefaultRangeDays int
	// IncrementalDaysBack sizes incremental runs.
	IncrementalDaysBack int
}

// Result summarizes a finished run.
type Result struct {
	RunID       string
	State       State
	TotalDates  int
	Succeeded   int
	FailedDates []model.DateFailure
}

// Orchestrator drives backfill runs. It is single-threaded by design: dates
// and batches run sequentially, and re-invocation for the same range is the
// retry mechanism.
type Orchestrator struct {
	store     store.Store
	collector *collector.Collector
	resolver  *membership.Resolver
	snapshots membership.SnapshotProvider
	silver    *silver.Processor
	gold      *gold.Refresher

	isTradingDay calendar.TradingDay
	cfg          Config
	state        State
}

func New(s store.Store, c *collector.Collector, r *membership.Resolver, snapshots membership.SnapshotProvider, cfg Config) *Orchestrator {
	if cfg.IncrementalDaysBack <= 0 {
		cfg.IncrementalDaysBack = IncrementalDaysBack
	}
	return &Orchestrator{
		store:        s,
		collector:    c,
		resolver:     r,
		snapshots:    snapshots,
		silver:       silver.NewProcessor(s),
		gold:         gold.NewRefresher(s),
		isTradingDay: calendar.Weekdays,
		cfg:          cfg,
		state:        StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes one backfill task. The returned Result is valid even when err
// is non-nil; err carries the fatal condition that put the run in
// RangeFailed.
func (o *Orchestrator) Run(ctx context.Context, task model.BackfillTask) (*Result, error) {
	start, end := calendar.ResolveRange(task.StartDate, task.EndDate, time.Now().UTC(), o.cfg.DefaultRangeDays)
	if task.Mode == model.ModeIncremental {
		end = model.Day(time.Now().UTC()).AddDate(0, 0, -1)
		start = end.AddDate(0, 0, -o.cfg.IncrementalDaysBack)
	}
	o.state = StateRangeComputed

	log := zap.L().With(
		zap.String("mode", string(task.Mode)),
		zap.String("start", start.Format(model.DateLayout)),
		zap.String("end", end.Format(model.DateLayout)))
	log.Info("backfill run starting")

	run, err := o.store.CreateRun(ctx, task.Mode, start, end)
	if err != nil {
		o.state = StateRangeFailed
		return nil, eris.Wrap(err, "backfill: create run")
	}

	result := &Result{RunID: run.ID}
	runErr := o.dispatch(ctx, task, start, end, result)

	status := model.RunStatusComplete
	if runErr != nil || len(result.FailedDates) > 0 {
		status = model.RunStatusFailed
		o.state = StateRangeFailed
	} else {
		o.state = StateRangeComplete
	}
	result.State = o.state

	if err := o.store.CompleteRun(ctx, run.ID, status, result.FailedDates); err != nil {
		log.Error("failed to persist run outcome", zap.Error(err))
	}

	log.Info("backfill run finished",
		zap.String("status", string(status)),
		zap.Int("total_dates", result.TotalDates),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.FailedDates)))
	return result, runErr
}

func (o *Orchestrator) dispatch(ctx context.Context, task model.BackfillTask, start, end time.Time, result *Result) error {
	switch task.Mode {
	case model.ModeSetupMembership:
		if err := membership.Setup(ctx, o.store, o.snapshots, start, end, membership.SetupOptions{IsTradingDay: o.isTradingDay}); err != nil {
			return err
		}
		return nil

	case model.ModePointInTime:
		// Membership must exist before point-in-time collection; a setup
		// failure fails the range before any date is touched.
		if err := membership.Setup(ctx, o.store, o.snapshots, start, end, membership.SetupOptions{IsTradingDay: o.isTradingDay}); err != nil {
			return &model.LayerError{Layer: "membership", Err: err}
		}
		return o.runLayers(ctx, start, end, result, task.SkipGold)

	case model.ModeFull:
		return o.runLayers(ctx, start, end, result, task.SkipGold)

	case model.ModeIncremental:
		return o.runLayers(ctx, start, end, result, true)

	case model.ModeBronze:
		return o.runBronze(ctx, start, end, result)

	case model.ModeSilver:
		return o.runSilver(ctx, start, end, result)

	case model.ModeGold:
		if err := o.gold.Refresh(ctx); err != nil {
			return &model.LayerError{Layer: "gold", Err: err}
		}
		return nil

	default:
		return eris.Errorf("backfill: unknown mode %q", task.Mode)
	}
}

// runLayers sequences bronze before silver before gold. Bronze or silver
// failure halts the dependent layers; gold failure is logged only.
func (o *Orchestrator) runLayers(ctx context.Context, start, end time.Time, result *Result, skipGold bool) error {
	if err := o.runBronze(ctx, start, end, result); err != nil {
		zap.L().Error("bronze layer failed, skipping silver and gold", zap.Error(err))
		return err
	}
	if err := o.runSilver(ctx, start, end, result); err != nil {
		zap.L().Error("silver layer failed, skipping gold", zap.Error(err))
		return err
	}
	if skipGold {
		zap.L().Info("gold layer skipped")
		return nil
	}
	if err := o.gold.Refresh(ctx); err != nil {
		zap.L().Error("gold layer failed", zap.Error(err))
	}
	return nil
}

// runBronze collects prices and dividends for every trading date in the
// range. Per-date failures are recorded and the loop continues; the layer
// fails when any date failed.
func (o *Orchestrator) runBronze(ctx context.Context, start, end time.Time, result *Result) error {
	o.state = StateBatchRunning
	dates := calendar.TradingDates(start, end, o.isTradingDay)
	result.TotalDates = len(dates)
	zap.L().Info("bronze backfill starting", zap.Int("dates", len(dates)))

	for i, date := range dates {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "backfill: bronze loop")
		}
		o.state = StateBatchRunning

		if err := o.collectDate(ctx, date); err != nil {
			if model.IsFatal(err) {
				return &model.LayerError{Layer: "bronze", Err: err}
			}
			result.FailedDates = append(result.FailedDates, model.DateFailure{
				Date:  date,
				Error: err.Error(),
			})
			zap.L().Warn("date failed, continuing",
				zap.String("date", date.Format(model.DateLayout)),
				zap.Error(err))
		} else {
			result.Succeeded++
		}

		o.state = StateBatchComplete
		if (i+1)%10 == 0 || i+1 == len(dates) {
			zap.L().Info("bronze progress",
				zap.Int("processed", i+1),
				zap.Int("total", len(dates)),
				zap.Int("failed", len(result.FailedDates)))
		}
	}

	if len(result.FailedDates) > 0 {
		return &model.LayerError{
			Layer: "bronze",
			Err:   eris.Errorf("%d of %d dates failed", len(result.FailedDates), len(dates)),
		}
	}
	return nil
}

// collectDate runs the full per-date pipeline: gate check, constituent
// resolution, price and dividend collection, validation, persistence and
// the success threshold. A panic is converted into a date failure.
func (o *Orchestrator) collectDate(ctx context.Context, date time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("backfill: panic collecting %s: %v", date.Format(model.DateLayout), r)
		}
	}()

	log := zap.L().With(zap.String("date", date.Format(model.DateLayout)))

	ingested, err := o.store.HasPriceDate(ctx, date)
	if err != nil {
		return eris.Wrap(err, "backfill: ingestion gate")
	}
	if ingested {
		log.Info("date already ingested, skipping")
		return nil
	}

	memberSet, degraded, err := o.resolver.MembersAsOf(ctx, date)
	if err != nil {
		return eris.Wrap(err, "backfill: resolve constituents")
	}
	if len(memberSet) == 0 {
		return eris.Errorf("backfill: no constituents for %s", date.Format(model.DateLayout))
	}
	if degraded {
		log.Warn("using degraded constituent set", zap.Int("tickers", len(memberSet)))
	}

	tickers := make([]string, 0, len(memberSet))
	for t := range memberSet {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	rows, priceOutcome, err := o.collector.CollectPrices(ctx, tickers, date)
	if err != nil {
		return err
	}
	rows, verr := validate.Prices(rows)
	if verr != nil {
		log.Warn("price validation dropped rows", zap.Error(verr))
	}
	if len(rows) > 0 {
		if _, err := o.store.AppendPrices(ctx, rows); err != nil {
			return eris.Wrap(err, "backfill: persist prices")
		}
	}

	since := date.AddDate(0, 0, -DividendLookbackDays)
	events, _, err := o.collector.CollectDividends(ctx, tickers, since, date, date)
	if err != nil {
		return err
	}
	events, verr = validate.Dividends(events)
	if verr != nil {
		log.Warn("dividend validation dropped events", zap.Error(verr))
	}
	if len(events) > 0 {
		if _, err := o.store.AppendDividendEvents(ctx, events); err != nil {
			return eris.Wrap(err, "backfill: persist dividends")
		}
	}

	if len(priceOutcome.Failed) > 0 {
		failures := make([]model.CollectionFailure, 0, len(priceOutcome.Failed))
		for _, ticker := range priceOutcome.Failed {
			failures = append(failures, model.CollectionFailure{
				Date:   date,
				Ticker: ticker,
				Layer:  "bronze",
				Reason: "price fetch failed or empty",
			})
		}
		if err := o.store.RecordCollectionFailures(ctx, failures); err != nil {
			log.Warn("could not record collection failures", zap.Error(err))
		}
	}

	return collector.CheckThreshold(priceOutcome)
}

// runSilver rebuilds silver partitions for bronze dates in the range that
// lack them.
func (o *Orchestrator) runSilver(ctx context.Context, start, end time.Time, result *Result) error {
	missing, err := o.silver.MissingDates(ctx, start, end)
	if err != nil {
		return &model.LayerError{Layer: "silver", Err: err}
	}
	zap.L().Info("silver backfill starting", zap.Int("dates", len(missing)))

	var failed int
	for _, date := range missing {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "backfill: silver loop")
		}
		if err := o.silver.ProcessDate(ctx, date); err != nil {
			failed++
			result.FailedDates = append(result.FailedDates, model.DateFailure{
				Date:  date,
				Error: fmt.Sprintf("silver: %v", err),
			})
			zap.L().Warn("silver date failed, continuing",
				zap.String("date", date.Format(model.DateLayout)),
				zap.Error(err))
		}
	}
	if failed > 0 {
		return &model.LayerError{
			Layer: "silver",
			Err:   eris.Errorf("%d of %d dates failed", failed, len(missing)),
		}
	}
	return nil
}
