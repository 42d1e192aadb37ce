// Package monitoring watches backfill health: run failure rates, soft-failed
// dates awaiting retry, and bronze-layer staleness. Alerts go to an optional
// webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
)

// MetricsSnapshot holds a point-in-time view of backfill health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Soft-failed dates recorded on runs within the window.
	FailedDates int `json:"failed_dates"`

	// Bronze staleness.
	LatestPriceDate *time.Time `json:"latest_price_date,omitempty"`
	StaleDays       int        `json:"stale_days"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers health metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of backfill health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Runs are returned newest-first; everything past the cutoff is older too.
	runs, err := c.store.ListRuns(ctx, 500)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			break
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.FailedDates += len(r.FailedDates)
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	dates, err := c.store.PriceDates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: price dates")
	}
	if len(dates) > 0 {
		latest := dates[len(dates)-1]
		snap.LatestPriceDate = &latest
		snap.StaleDays = int(now.Sub(latest).Hours() / 24)
	}

	return snap, nil
}
