// Package app wires configuration into the running services shared by the CLI
// and the HTTP server.
package app

import (
	"context"
	"fmt"

	"fbmc-quality/internal/acquire"
	"fbmc-quality/internal/cache"
	"fbmc-quality/internal/config"
	"fbmc-quality/internal/data"
	"fbmc-quality/internal/pipeline"

	"github.com/rs/zerolog/log"
)

// App holds the wired services. Store is nil when the cache could not be
// opened; everything still works uncached.
type App struct {
	Config       *config.Config
	Zones        *data.ZoneTable
	Store        *cache.Store
	Orchestrator *acquire.Orchestrator
	Flows        *acquire.FlowAcquirer
	Loader       *pipeline.Loader
}

// New builds the services described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	zones, err := data.LoadZones(cfg.ZonesFile)
	if err != nil {
		return nil, fmt.Errorf("loading zones: %w", err)
	}

	a := &App{Config: cfg, Zones: zones}

	var (
		records acquire.RecordStore
		flows   acquire.FlowStore
	)
	store, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Str("driver", cfg.Cache.Driver).Msg("cache unavailable, running uncached")
	} else {
		a.Store = store
		records, flows = store, store
	}

	var fetcher acquire.Fetcher
	if cfg.JAO.FixturesDir != "" {
		log.Info().Str("dir", cfg.JAO.FixturesDir).Msg("serving constraint data from fixtures")
		fetcher = data.DirFetcher{Dir: cfg.JAO.FixturesDir}
	} else {
		fetcher = data.NewJAOClient(cfg.JAO.BaseURL, cfg.JAOClientOptions())
	}

	a.Orchestrator = acquire.NewOrchestrator(fetcher, records, zones, cfg.Acquire.Workers)
	a.Flows = &acquire.FlowAcquirer{
		Source:  data.NewENTSOEClient(cfg.ENTSOE.BaseURL, cfg.ENTSOE.APIKey, cfg.ENTSOEClientOptions()),
		Store:   flows,
		Zones:   zones,
		Workers: cfg.Acquire.Workers,
	}
	a.Loader = &pipeline.Loader{
		Series:       a.Orchestrator,
		Flows:        a.Flows,
		Zones:        zones,
		AllowPartial: cfg.Acquire.AllowPartial,
	}
	return a, nil
}

// Close releases the cache.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
