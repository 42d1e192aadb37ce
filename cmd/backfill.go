package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/model"
)

var (
	backfillMode      string
	backfillStartDate string
	backfillEndDate   string
	backfillDaysBack  int
	backfillBatchSize int
	backfillSkipGold  bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run a layered backfill over a date range",
	Long: `Runs the bronze/silver/gold pipeline for every trading day in the range.
Modes: full, bronze, silver, gold, incremental, point-in-time, setup-membership.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("backfill"); err != nil {
			return err
		}

		mode, ok := model.ParseMode(backfillMode)
		if !ok {
			return eris.Errorf("unknown mode: %s", backfillMode)
		}

		task := model.BackfillTask{
			Mode:     mode,
			SkipGold: backfillSkipGold,
		}
		var err error
		if backfillStartDate != "" {
			if task.StartDate, err = model.ParseDate(backfillStartDate); err != nil {
				return eris.Wrap(err, "parse --start-date")
			}
		}
		if backfillEndDate != "" {
			if task.EndDate, err = model.ParseDate(backfillEndDate); err != nil {
				return eris.Wrap(err, "parse --end-date")
			}
		}
		if task.StartDate.IsZero() && backfillDaysBack > 0 {
			end := task.EndDate
			if end.IsZero() {
				end = model.Day(time.Now().UTC()).AddDate(0, 0, -1)
				task.EndDate = end
			}
			task.StartDate = end.AddDate(0, 0, -backfillDaysBack)
		}

		if backfillBatchSize > 0 {
			cfg.Collector.BatchSize = backfillBatchSize
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, runErr := e.Orchestrator.Run(ctx, task)
		if result != nil {
			zap.L().Info("backfill finished",
				zap.String("run_id", result.RunID),
				zap.String("state", string(result.State)),
				zap.Int("total_dates", result.TotalDates),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("failed", len(result.FailedDates)))
			for _, f := range result.FailedDates {
				zap.L().Warn("failed date",
					zap.String("date", f.Date.Format(model.DateLayout)),
					zap.String("error", f.Error))
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "backfill run")
		}
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillMode, "mode", "full", "backfill mode")
	backfillCmd.Flags().StringVar(&backfillStartDate, "start-date", "", "range start (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillEndDate, "end-date", "", "range end (YYYY-MM-DD, default yesterday)")
	backfillCmd.Flags().IntVar(&backfillDaysBack, "days-back", 0, "size the range backward from the end date")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 0, "tickers per collection batch (default from config)")
	backfillCmd.Flags().BoolVar(&backfillSkipGold, "skip-gold", false, "skip the gold view refresh")
	rootCmd.AddCommand(backfillCmd)
}
