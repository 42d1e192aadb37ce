package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/openquant/indexfill/internal/backfill"
	"github.com/openquant/indexfill/internal/collector"
	"github.com/openquant/indexfill/internal/membership"
	"github.com/openquant/indexfill/internal/store"
	"github.com/openquant/indexfill/pkg/wikisp500"
	"github.com/openquant/indexfill/pkg/yahoo"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "indexfill.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles the wired pipeline components behind one Close.
type env struct {
	Store        store.Store
	Collector    *collector.Collector
	RefData      wikisp500.Client
	Resolver     *membership.Resolver
	Snapshots    membership.SnapshotProvider
	Orchestrator *backfill.Orchestrator
}

func (e *env) Close() {
	e.Store.Close()
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	marketData := yahoo.NewClient(
		yahoo.WithBaseURL(cfg.Yahoo.BaseURL),
		yahoo.WithRetryConfig(cfg.Yahoo.Retry),
	)
	refData := wikisp500.NewClient(
		wikisp500.WithBaseURL(cfg.Wikipedia.BaseURL),
		wikisp500.WithRetryConfig(cfg.Wikipedia.Retry),
	)

	coll := collector.New(marketData, collector.Config{
		TickersPerSecond: cfg.Collector.TickersPerSecond,
		BatchDelay:       cfg.Collector.BatchDelay,
		BatchSize:        cfg.Collector.BatchSize,
		Circuit:          cfg.Collector.Circuit,
	})

	cache := membership.NewSnapshotCache(refData)
	resolver := membership.NewResolver(st, cache)

	return &env{
		Store:        st,
		Collector:    coll,
		RefData:      refData,
		Resolver:     resolver,
		Snapshots:    cache,
		Orchestrator: backfill.New(st, coll, resolver, cache, backfill.Config{
			DefaultRangeDays:    cfg.Backfill.DefaultRangeDays,
			IncrementalDaysBack: cfg.Backfill.IncrementalDaysBack,
		}),
	}, nil
}
