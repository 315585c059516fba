// Package app wires configuration to adapters and the locator engine. Every
// command builds its dataset and engine through it.
package app

import (
	"context"
	"fmt"

	"github.com/samirrijal/pklocator/internal/adapters/filestore"
	"github.com/samirrijal/pklocator/internal/adapters/httpstore"
	"github.com/samirrijal/pklocator/internal/adapters/postgres"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/core/usecases"
	"github.com/samirrijal/pklocator/internal/pkg/config"
)

// Dataset is the configured data source. DB is set for the postgres source
// only.
type Dataset struct {
	ports.Dataset
	DB *postgres.DB
}

// Close releases the database pool if there is one.
func (d *Dataset) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}

// OpenDataset builds the data source named by locator.data_source.
func OpenDataset(ctx context.Context, cfg *config.Config) (*Dataset, error) {
	switch cfg.Locator.DataSource {
	case config.SourceFile:
		return &Dataset{Dataset: filestore.New(cfg.Locator.DataDir)}, nil
	case config.SourceHTTP:
		return &Dataset{Dataset: httpstore.New(cfg.Locator.DataURL, cfg.Locator.LoadTimeout)}, nil
	case config.SourcePostgres:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return &Dataset{Dataset: postgres.NewLineRepo(db), DB: db}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Locator.DataSource)
	}
}

// LocatorConfig maps the configuration onto the engine's settings.
func LocatorConfig(cfg *config.Config) (usecases.LocatorConfig, error) {
	resolution, err := usecases.ParseResolution(cfg.Locator.Resolution)
	if err != nil {
		return usecases.LocatorConfig{}, err
	}
	return usecases.LocatorConfig{
		DeviceID:        cfg.Locator.DeviceID,
		MarginDeg:       cfg.Locator.MarginDeg,
		ProximityMeters: cfg.Locator.ProximityM,
		Resolution:      resolution,
		Cache: usecases.PointCacheConfig{
			MaxSize:     cfg.Locator.MaxCacheSize,
			Expiry:      cfg.Locator.CacheExpiry,
			RetryAfter:  cfg.Locator.RetryAfter,
			LoadTimeout: cfg.Locator.LoadTimeout,
		},
		NormalInterval: cfg.Locator.UpdateInterval,
		FastInterval:   cfg.Locator.FastUpdateInterval,
		HighSpeedKmh:   cfg.Locator.HighSpeedKmh,
	}, nil
}

// PointSource returns the dataset's point source, behind the shared cache
// when locator.shared_cache is set and a cache is available. cache may be
// nil.
func PointSource(cfg *config.Config, ds ports.LinePointSource, cache ports.CacheService) ports.LinePointSource {
	if !cfg.Locator.SharedCache || cache == nil {
		return ds
	}
	return usecases.NewCachedPointSource(ds, cache, cfg.Locator.CacheExpiry)
}

// NewLocator builds and bootstraps the engine. cache and publisher may be nil.
func NewLocator(ctx context.Context, cfg *config.Config, ds ports.Dataset, cache ports.CacheService, publisher ports.SnapshotPublisher) (*usecases.LocatorService, error) {
	lc, err := LocatorConfig(cfg)
	if err != nil {
		return nil, err
	}
	locator := usecases.NewLocatorService(ds, PointSource(cfg, ds, cache), ds, publisher, lc)
	if err := locator.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return locator, nil
}
