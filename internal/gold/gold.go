// Package gold maintains the reporting views on top of the silver layer.
package gold

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/store"
)

// Refresher rebuilds the gold views. A gold failure never fails a backfill
// run; callers log it and move on.
type Refresher struct {
	store store.Store
}

func NewRefresher(s store.Store) *Refresher {
	return &Refresher{store: s}
}

// Refresh recreates the reporting views from the current silver tables.
func (r *Refresher) Refresh(ctx context.Context) error {
	if err := r.store.RefreshGoldViews(ctx); err != nil {
		return eris.Wrap(err, "gold: refresh views")
	}
	zap.L().Info("gold views refreshed")
	return nil
}
