// Package app builds the ingest stages and their backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/weather-ingest-service/internal/adapter/bigquery"
	"github.com/couchcryptid/weather-ingest-service/internal/adapter/duckdb"
	"github.com/couchcryptid/weather-ingest-service/internal/adapter/gcs"
	"github.com/couchcryptid/weather-ingest-service/internal/adapter/s3store"
	"github.com/couchcryptid/weather-ingest-service/internal/adapter/weatherapi"
	"github.com/couchcryptid/weather-ingest-service/internal/config"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/marker"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"github.com/couchcryptid/weather-ingest-service/internal/pipeline"
	"github.com/couchcryptid/weather-ingest-service/internal/trigger"
	"github.com/redis/go-redis/v9"
)

// App owns the backends and the dispatcher wired over them.
type App struct {
	Dispatcher *trigger.Dispatcher

	cfg     *config.Config
	closers []func() error
	logger  *slog.Logger
}

// Backends are the collaborators the stages run against.
type Backends struct {
	Store     domain.BlobStore
	Warehouse domain.Warehouse
	Marker    domain.Marker
	Source    domain.WeatherSource
	// Ready holds extra readiness checks beyond the store and warehouse.
	Ready []trigger.Pinger
}

// New opens every configured backend and wires the stages.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	b, err := a.openBackends(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	d, err := NewDispatcher(cfg, b, a.Cities, logger, metrics)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Dispatcher = d
	return a, nil
}

// NewDispatcher wires the pipeline stages over b.
func NewDispatcher(cfg *config.Config, b Backends, cities trigger.CitiesFunc, logger *slog.Logger, metrics *observability.Metrics) (*trigger.Dispatcher, error) {
	cached, err := pipeline.NewCachedWarehouse(b.Warehouse, cfg.KeyCacheSize, metrics)
	if err != nil {
		return nil, err
	}

	var opts []pipeline.CommitterOption
	if cfg.LoadMode == config.LoadModeBulk {
		opts = append(opts, pipeline.WithBulkLoad())
	}

	loader := pipeline.NewLoader(
		pipeline.NewEnumerator(b.Store, b.Marker, cfg.StagingPrefix),
		pipeline.NewDecider(b.Store, cached),
		pipeline.NewCommitter(cached, b.Store, b.Marker, logger, metrics, opts...),
		cfg.IngestConcurrency,
		logger,
		metrics,
	)

	stages := trigger.Stages{
		Fetch:     pipeline.NewFetcher(b.Source, b.Store, cfg.StagingPrefix, logger, metrics),
		Load:      loader,
		Reconcile: pipeline.NewReconciler(b.Warehouse, logger, metrics),
		Provision: pipeline.NewProvisioner(b.Warehouse, logger),
	}
	return trigger.NewDispatcher(stages, cities, cfg.StageTimeout, logger, metrics, readiness(b)...), nil
}

// readiness lists the staging store and warehouse when they can be pinged,
// followed by b.Ready.
func readiness(b Backends) []trigger.Pinger {
	var ready []trigger.Pinger
	if p, ok := b.Store.(trigger.Pinger); ok {
		ready = append(ready, p)
	}
	ready = append(ready, b.Warehouse)
	return append(ready, b.Ready...)
}

func (a *App) openBackends(ctx context.Context) (Backends, error) {
	cfg := a.cfg
	var b Backends

	switch cfg.StorageBackend {
	case config.StorageS3:
		s, err := s3store.New(ctx, s3store.Options{
			Bucket:         cfg.BucketName,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			return b, err
		}
		b.Store = s
	default:
		s, err := gcs.New(ctx, cfg.BucketName)
		if err != nil {
			return b, err
		}
		a.closers = append(a.closers, s.Close)
		b.Store = s
	}

	switch cfg.WarehouseBackend {
	case config.WarehouseDuckDB:
		w, err := duckdb.New(cfg.DuckDBPath, cfg.DatasetID, cfg.TableID)
		if err != nil {
			return b, err
		}
		b.Warehouse = w
	default:
		w, err := bigquery.New(ctx, cfg.ProjectID, cfg.DatasetID, cfg.TableID, cfg.DatasetLocation)
		if err != nil {
			return b, err
		}
		b.Warehouse = w
	}
	a.closers = append(a.closers, b.Warehouse.Close)

	switch cfg.MarkerBackend {
	case config.MarkerRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		a.closers = append(a.closers, rdb.Close)
		b.Marker = marker.NewLedgerMarker(rdb, cfg.MarkerLedgerKey)
		b.Ready = append(b.Ready, trigger.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	default:
		b.Marker = marker.NewRenameMarker(b.Store)
	}

	b.Source = weatherapi.NewClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherTimeout, cfg.WeatherMaxRetries, a.logger)

	a.logger.Info("backends ready",
		"storage", cfg.StorageBackend,
		"warehouse", cfg.WarehouseBackend,
		"marker", cfg.MarkerBackend,
		"load_mode", cfg.LoadMode,
	)
	return b, nil
}

// Cities returns CITIES when set, otherwise the contents of CITIES_FILE.
// The file is re-read on every call so edits apply to the next run.
func (a *App) Cities(_ context.Context) ([]string, error) {
	return ReadCities(a.cfg)
}

// ReadCities resolves the entity list from cfg.
func ReadCities(cfg *config.Config) ([]string, error) {
	if len(cfg.Cities) > 0 {
		return cfg.Cities, nil
	}
	f, err := os.Open(cfg.CitiesFile)
	if err != nil {
		return nil, fmt.Errorf("open cities file: %w", err)
	}
	defer f.Close()
	return domain.ParseCities(f)
}

// Close releases every backend opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
