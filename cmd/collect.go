package main

import (
	"context"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/backfill"
	"github.com/openquant/indexfill/internal/collector"
	"github.com/openquant/indexfill/internal/model"
)

var collectDate string

var collectCmd = &cobra.Command{
	Use:       "collect [prices|dividends|full]",
	Short:     "Collect bronze market data for a single date",
	Long:      "Collects one trading date into the bronze layer. The optional argument limits collection to prices or dividends; the default is full (both, through the normal run bookkeeping).",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"prices", "dividends", "full"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("backfill"); err != nil {
			return err
		}

		date, err := model.ParseDate(collectDate)
		if err != nil {
			return eris.Wrap(err, "parse --date")
		}

		layer := "full"
		if len(args) == 1 {
			layer = args[0]
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		switch layer {
		case "prices":
			return collectPricesOnly(ctx, e, date)
		case "dividends":
			return collectDividendsOnly(ctx, e, date)
		}

		result, runErr := e.Orchestrator.Run(ctx, model.BackfillTask{
			Mode:      model.ModeBronze,
			StartDate: date,
			EndDate:   date,
		})
		if result != nil {
			zap.L().Info("collection finished",
				zap.String("run_id", result.RunID),
				zap.String("state", string(result.State)),
				zap.Int("succeeded", result.Succeeded))
		}
		if runErr != nil {
			return eris.Wrap(runErr, "collect")
		}
		return nil
	},
}

func collectPricesOnly(ctx context.Context, e *env, date time.Time) error {
	exists, err := e.Store.HasPriceDate(ctx, date)
	if err != nil {
		return eris.Wrap(err, "check price partition")
	}
	if exists {
		zap.L().Info("date already ingested, skipping",
			zap.String("date", date.Format(model.DateLayout)))
		return nil
	}

	tickers, err := membersForDate(ctx, e, date)
	if err != nil {
		return err
	}

	rows, outcome, err := e.Collector.CollectPrices(ctx, tickers, date)
	if err != nil {
		return eris.Wrap(err, "collect prices")
	}
	if err := collector.CheckThreshold(outcome); err != nil {
		return err
	}

	n, err := e.Store.AppendPrices(ctx, rows)
	if err != nil {
		return eris.Wrap(err, "persist prices")
	}
	zap.L().Info("prices collected",
		zap.String("date", date.Format(model.DateLayout)),
		zap.Int("rows", n),
		zap.Int("failed_tickers", len(outcome.Failed)))
	return nil
}

func collectDividendsOnly(ctx context.Context, e *env, date time.Time) error {
	tickers, err := membersForDate(ctx, e, date)
	if err != nil {
		return err
	}

	since := date.AddDate(0, 0, -backfill.DividendLookbackDays)
	events, outcome, err := e.Collector.CollectDividends(ctx, tickers, since, date, date)
	if err != nil {
		return eris.Wrap(err, "collect dividends")
	}
	if err := collector.CheckThreshold(outcome); err != nil {
		return err
	}

	n, err := e.Store.AppendDividendEvents(ctx, events)
	if err != nil {
		return eris.Wrap(err, "persist dividends")
	}
	zap.L().Info("dividends collected",
		zap.String("date", date.Format(model.DateLayout)),
		zap.Int("events", n),
		zap.Int("failed_tickers", len(outcome.Failed)))
	return nil
}

func membersForDate(ctx context.Context, e *env, date time.Time) ([]string, error) {
	members, degraded, err := e.Resolver.MembersAsOf(ctx, date)
	if err != nil {
		return nil, eris.Wrap(err, "resolve members")
	}
	if degraded {
		zap.L().Warn("no persisted membership for date, using base snapshot",
			zap.String("date", date.Format(model.DateLayout)))
	}
	tickers := make([]string, 0, len(members))
	for t := range members {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

func init() {
	collectCmd.Flags().StringVar(&collectDate, "date", "", "trading date to collect (YYYY-MM-DD, required)")
	_ = collectCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(collectCmd)
}
