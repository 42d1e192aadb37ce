package model

import (
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC so dates compare exactly.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Action describes a membership change direction.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// MembershipChangeEvent records a single index add or removal. Events are
// append-only; the uniqueness key is (EffectiveDate, Action, Ticker) and
// duplicates on that key are dropped at ingest.
type MembershipChangeEvent struct {
	EffectiveDate time.Time `json:"effective_date" yaml:"effective_date"`
	Action        Action    `json:"action" yaml:"action"`
	Ticker        string    `json:"ticker" yaml:"ticker"`
	Description   string    `json:"description" yaml:"description"`
}

// Key returns the deduplication key for the event.
func (e MembershipChangeEvent) Key() string {
	return e.EffectiveDate.Format(DateLayout) + "|" + string(e.Action) + "|" + e.Ticker
}

// BaseSnapshot is the constituent set at a reference date, used as the seed
// population for dates before any ledger activity is known. It is sourced
// from a "current" or year-end listing, not a true historical as-of snapshot:
// for dates far before the reference date it can include tickers that were
// not yet listed and omit tickers removed before any ledger entry exists.
// That bias is part of the behavior being reproduced, not a bug to fix here.
type BaseSnapshot struct {
	ReferenceDate time.Time
	Tickers       map[string]struct{}
}

// Has reports whether the snapshot contains the ticker.
func (s BaseSnapshot) Has(ticker string) bool {
	_, ok := s.Tickers[ticker]
	return ok
}

// DailyMembershipRecord is one derived row per member ticker per trading day.
// Only active tickers get rows; IsMember is always true on emitted rows.
type DailyMembershipRecord struct {
	Date     time.Time  `json:"date"`
	Ticker   string     `json:"ticker"`
	InDate   time.Time  `json:"in_date"`
	OutDate  *time.Time `json:"out_date,omitempty"`
	IsMember bool       `json:"is_member"`
}

// Constituent is one row from the reference constituent source.
type Constituent struct {
	Ticker    string
	Company   string
	Sector    string
	DateAdded *time.Time
}
