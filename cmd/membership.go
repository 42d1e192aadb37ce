package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/calendar"
	"github.com/openquant/indexfill/internal/membership"
	"github.com/openquant/indexfill/internal/model"
)

var membershipCmd = &cobra.Command{
	Use:   "membership",
	Short: "Manage point-in-time index membership",
}

// -- membership setup --

var (
	membershipStart    string
	membershipEnd      string
	membershipSeedFile string
	membershipScrape   bool
)

var membershipSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Rebuild the daily membership table for a date range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		start, err := model.ParseDate(membershipStart)
		if err != nil {
			return eris.Wrap(err, "parse --start-date")
		}
		end, err := model.ParseDate(membershipEnd)
		if err != nil {
			return eris.Wrap(err, "parse --end-date")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		opts := membership.SetupOptions{
			SeedFile:     membershipSeedFile,
			IsTradingDay: calendar.Weekdays,
		}
		if opts.SeedFile == "" {
			opts.SeedFile = cfg.Backfill.SeedFile
		}
		if membershipScrape {
			changes, err := e.RefData.Changes(ctx, cfg.Backfill.ChangeStartYear)
			if err != nil {
				return eris.Wrap(err, "scrape membership changes")
			}
			opts.Changes = changes
		}
		err = membership.Setup(ctx, e.Store, e.Snapshots, start, end, opts)
		if err != nil {
			return eris.Wrap(err, "membership setup")
		}

		zap.L().Info("membership setup complete",
			zap.String("start", start.Format(model.DateLayout)),
			zap.String("end", end.Format(model.DateLayout)))
		return nil
	},
}

// -- membership show --

var membershipDate string

var membershipShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active constituents for a date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, err := model.ParseDate(membershipDate)
		if err != nil {
			return eris.Wrap(err, "parse --date")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		recs, err := e.Store.DailyMembers(ctx, date)
		if err != nil {
			return eris.Wrap(err, "load daily members")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No membership rows for that date. Run 'indexfill membership setup' first.")
			return nil
		}

		formatMembers(os.Stdout, recs)
		return nil
	},
}

func formatMembers(w io.Writer, recs []model.DailyMembershipRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tIN\tOUT")
	var active int
	for _, r := range recs {
		if !r.IsMember {
			continue
		}
		out := "-"
		if r.OutDate != nil {
			out = r.OutDate.Format(model.DateLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Ticker, r.InDate.Format(model.DateLayout), out)
		active++
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d active constituents\n", active)
}

func init() {
	membershipSetupCmd.Flags().StringVar(&membershipStart, "start-date", "", "range start (YYYY-MM-DD, required)")
	membershipSetupCmd.Flags().StringVar(&membershipEnd, "end-date", "", "range end (YYYY-MM-DD, required)")
	membershipSetupCmd.Flags().StringVar(&membershipSeedFile, "seed-file", "", "YAML file of curated membership changes (default embedded seed)")
	membershipSetupCmd.Flags().BoolVar(&membershipScrape, "scrape", false, "scrape the change history instead of using a seed file")
	_ = membershipSetupCmd.MarkFlagRequired("start-date")
	_ = membershipSetupCmd.MarkFlagRequired("end-date")

	membershipShowCmd.Flags().StringVar(&membershipDate, "date", "", "date to inspect (YYYY-MM-DD, required)")
	_ = membershipShowCmd.MarkFlagRequired("date")

	membershipCmd.AddCommand(membershipSetupCmd)
	membershipCmd.AddCommand(membershipShowCmd)
	rootCmd.AddCommand(membershipCmd)
}
