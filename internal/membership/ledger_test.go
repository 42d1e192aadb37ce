package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestLedger_RecordDedupesWithinBatch(t *testing.T) {
	ledger := NewLedger(newTestStore(t))
	ctx := context.Background()

	dup := model.MembershipChangeEvent{EffectiveDate: day("1997-05-15"), Action: model.ActionAdd, Ticker: "AMZN"}
	n, err := ledger.Record(ctx, []model.MembershipChangeEvent{dup, dup, dup})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedger_RecordReplayAppendsNothing(t *testing.T) {
	ledger := NewLedger(newTestStore(t))
	ctx := context.Background()

	events := []model.MembershipChangeEvent{
		{EffectiveDate: day("2008-09-15"), Action: model.ActionRemove, Ticker: "LEH"},
		{EffectiveDate: day("1999-01-22"), Action: model.ActionAdd, Ticker: "NVDA"},
	}
	n, err := ledger.Record(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ledger.Record(ctx, events)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_LoadOrdered(t *testing.T) {
	ledger := NewLedger(newTestStore(t))
	ctx := context.Background()

	_, err := ledger.Record(ctx, []model.MembershipChangeEvent{
		{EffectiveDate: day("2008-09-15"), Action: model.ActionRemove, Ticker: "LEH"},
		{EffectiveDate: day("1997-05-15"), Action: model.ActionAdd, Ticker: "AMZN"},
		{EffectiveDate: day("1997-05-15"), Action: model.ActionAdd, Ticker: "AAPL"},
	})
	require.NoError(t, err)

	events, err := ledger.Load(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "AAPL", events[0].Ticker)
	assert.Equal(t, "AMZN", events[1].Ticker)
	assert.Equal(t, "LEH", events[2].Ticker)
}

func TestLedger_LoadEmptyIsNotAnError(t *testing.T) {
	ledger := NewLedger(newTestStore(t))

	events, err := ledger.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLedger_LoadFailureWrapsSourceUnavailable(t *testing.T) {
	s := newTestStore(t)
	ledger := NewLedger(s)
	require.NoError(t, s.Close())

	_, err := ledger.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestSeedChanges(t *testing.T) {
	events, err := SeedChanges()
	require.NoError(t, err)
	require.NotEmpty(t, events)

	var amzn *model.MembershipChangeEvent
	for i := range events {
		if events[i].Ticker == "AMZN" {
			amzn = &events[i]
		}
	}
	require.NotNil(t, amzn)
	assert.Equal(t, model.ActionAdd, amzn.Action)
	assert.Equal(t, day("1997-05-15"), amzn.EffectiveDate)
}

func TestSeedChanges_UniqueKeys(t *testing.T) {
	events, err := SeedChanges()
	require.NoError(t, err)

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		_, dup := seen[e.Key()]
		assert.False(t, dup, "duplicate seed event %s", e.Key())
		seen[e.Key()] = struct{}{}
	}
}
