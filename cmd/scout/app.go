package main

import (
	"context"
	"fmt"
	"time"

	"venuescout/internal/budget"
	"venuescout/internal/config"
	"venuescout/internal/dispatch"
	"venuescout/internal/ledger"
	"venuescout/internal/logging"
	"venuescout/internal/quota"
	"venuescout/internal/querycache"
	"venuescout/internal/search"
	"venuescout/internal/store"
)

// app wires the scheduler services together for one CLI invocation.
// Everything is explicitly constructed and injected; nothing is global.
type app struct {
	cfg        *config.Config
	store      *store.Store
	pool       *quota.Pool
	cache      *querycache.Cache
	allocator  *budget.Allocator
	ledger     *ledger.Ledger
	dispatcher *dispatch.Dispatcher
}

// newApp loads and validates configuration, opens the store, and builds
// the service graph.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Configure(cfg.DataDir, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	creds := make([]quota.Credential, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		creds = append(creds, quota.Credential{
			ID:         c.ID,
			APIKey:     c.APIKey,
			EngineID:   c.EngineID,
			DailyLimit: c.DailyLimit,
		})
	}

	pool := quota.NewPool(creds, st, cfg.Quota.PaidFallbackEnabled, cfg.Quota.CostPerPaidQuery)
	if err := pool.Initialize(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize credential pool: %w", err)
	}

	seeds := make([]ledger.Strategy, 0, len(cfg.SeedStrategies))
	for _, s := range cfg.SeedStrategies {
		seeds = append(seeds, ledger.Strategy{
			ID:            s.ID,
			Platform:      s.Platform,
			Country:       s.Country,
			QueryTemplate: s.QueryTemplate,
			SuccessRate:   50,
			Tags:          s.Tags,
			CreatedAt:     time.Now(),
		})
	}
	if err := st.EnsureSeedStrategies(ctx, seeds); err != nil {
		st.Close()
		return nil, err
	}

	cache := querycache.New(st, cfg.GetHitTTL(), cfg.GetMissTTL())
	allocator := budget.New(cfg, st, st)
	led := ledger.New(st, ledger.Config{
		AutoDeprecateBelow:      cfg.Ledger.AutoDeprecateBelow,
		HistoricalWeightDivisor: cfg.Ledger.HistoricalWeightDivisor,
		HistoricalWeightCap:     cfg.Ledger.HistoricalWeightCap,
	})
	client := search.NewClient(cfg.Search.BaseURL, cfg.GetSearchTimeout())
	dispatcher := dispatch.New(pool, cache, client, st, dispatch.Config{
		Workers:       cfg.Dispatch.Workers,
		QueryTimeout:  cfg.GetQueryTimeout(),
		MaxRetries:    cfg.Dispatch.MaxRetries,
		RetryBackoff:  cfg.GetRetryBackoff(),
		QueriesPerSec: cfg.Dispatch.QueriesPerSec,
	})

	return &app{
		cfg:        cfg,
		store:      st,
		pool:       pool,
		cache:      cache,
		allocator:  allocator,
		ledger:     led,
		dispatcher: dispatcher,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
