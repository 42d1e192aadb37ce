package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/monitoring"
)

var scheduleSpec string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run incremental backfills on a cron schedule",
	Long:  "Stays in the foreground and runs an incremental backfill on every cron tick until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("schedule"); err != nil {
			return err
		}

		spec := scheduleSpec
		if spec == "" {
			spec = cfg.Schedule.Spec
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		c := cron.New()
		_, err = c.AddFunc(spec, func() {
			result, runErr := e.Orchestrator.Run(ctx, model.BackfillTask{Mode: model.ModeIncremental})
			if runErr != nil {
				zap.L().Error("scheduled run failed", zap.Error(runErr))
				return
			}
			zap.L().Info("scheduled run complete",
				zap.String("run_id", result.RunID),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("failed", len(result.FailedDates)))
		})
		if err != nil {
			return eris.Wrapf(err, "invalid cron spec %q", spec)
		}

		checker := monitoring.NewChecker(
			monitoring.NewCollector(e.Store),
			monitoring.NewAlerter(cfg.Monitor),
			cfg.Monitor,
		)
		go checker.Run(ctx)

		zap.L().Info("scheduler started", zap.String("spec", spec))
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		zap.L().Info("scheduler stopped")
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "spec", "", "cron expression (default from config)")
	rootCmd.AddCommand(scheduleCmd)
}
