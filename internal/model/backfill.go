package model

import (
	"time"
)

// Mode selects which layers a backfill invocation runs.
type Mode string

const (
	ModeFull            Mode = "full"
	ModeBronze          Mode = "bronze"
	ModeSilver          Mode = "silver"
	ModeGold            Mode = "gold"
	ModeIncremental     Mode = "incremental"
	ModePointInTime     Mode = "point-in-time"
	ModeSetupMembership Mode = "setup-membership"
)

// ParseMode validates a mode string from the CLI.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeFull, ModeBronze, ModeSilver, ModeGold, ModeIncremental, ModePointInTime, ModeSetupMembership:
		return Mode(s), true
	}
	return "", false
}

// BackfillTask describes a single backfill invocation. Tasks are built per
// CLI call and never persisted.
type BackfillTask struct {
	Mode      Mode
	StartDate time.Time
	EndDate   time.Time
	SkipGold  bool
}

// RunStatus tracks a recorded backfill run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// DateFailure pairs a failed date with its error for selective retry.
type DateFailure struct {
	Date  time.Time `json:"date"`
	Error string    `json:"error"`
}

// BackfillRun is a persisted record of one orchestrator invocation.
type BackfillRun struct {
	ID          string        `json:"id"`
	Mode        Mode          `json:"mode"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	Status      RunStatus     `json:"status"`
	FailedDates []DateFailure `json:"failed_dates,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
