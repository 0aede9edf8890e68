package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/collector"
	"github.com/fishdata/catchgrid/internal/query"
	"github.com/fishdata/catchgrid/internal/resilience"
	"github.com/fishdata/catchgrid/internal/store"
	"github.com/fishdata/catchgrid/pkg/rutilus"
)

// initStore opens the configured store backend and runs migrations.
// Callers should defer Close.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newCollector wires the API client, per-cell fetcher, and collector from
// the loaded configuration.
func newCollector(workers int, keepRaw bool) *collector.Collector {
	client := rutilus.NewClient(rutilus.WithBaseURL(cfg.API.BaseURL))
	fetcher := query.NewFetcher(client, query.Config{
		PageSize:       cfg.Query.PageSize,
		MaxPages:       cfg.Query.MaxPages,
		SplitThreshold: cfg.Query.SplitThreshold,
		MaxSplitDepth:  cfg.Query.MaxSplitDepth,
		RateLimit:      cfg.Query.RateLimit,
		RequestTimeout: time.Duration(cfg.API.TimeoutSecs) * time.Second,
		Retry:          resilience.Config{MaxAttempts: cfg.Query.MaxRetries},
	})
	return collector.New(fetcher, collector.Options{Workers: workers, KeepRaw: keepRaw})
}
