package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for fatal conditions. Only these unwind past the
// orchestrator's per-date loop; per-ticker and per-date failures are
// aggregated into outcome reports instead.
var (
	// ErrSourceUnavailable means a reference or provider source could not be
	// read after retries. Callers must distinguish this from an empty result.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMissingBaseline means no base constituent snapshot could be
	// obtained; reconstruction must not proceed with an empty base.
	ErrMissingBaseline = errors.New("missing base snapshot")
)

// ValidationError reports malformed rows. Offending rows are dropped and
// sibling rows proceed, so this is recoverable.
type ValidationError struct {
	Table  string
	Count  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %d invalid %s rows: %s", e.Count, e.Table, e.Reason)
}

// LayerError marks a whole layer's run as failed. In full mode a bronze or
// silver LayerError halts dependent layers; a gold LayerError is logged only.
type LayerError struct {
	Layer string
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("%s layer failed: %v", e.Layer, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

// PartialCollectionError reports a date whose collection success rate fell
// below the acceptance threshold. It is recoverable: the orchestrator records
// the date and keeps going.
type PartialCollectionError struct {
	Date        time.Time
	SuccessRate float64
	Failed      int
}

func (e *PartialCollectionError) Error() string {
	return fmt.Sprintf("partial collection for %s: success rate %.1f%% (%d tickers failed)",
		e.Date.Format(DateLayout), e.SuccessRate*100, e.Failed)
}

// IsFatal reports whether err must stop the current layer or range rather
// than being absorbed into a per-date outcome.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrMissingBaseline) {
		return true
	}
	var le *LayerError
	return errors.As(err, &le)
}
