// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	memorycache "github.com/JakeFAU/epg-crawler/internal/cache/memory"
	rediscache "github.com/JakeFAU/epg-crawler/internal/cache/redis"
	"github.com/JakeFAU/epg-crawler/internal/clock/system"
	"github.com/JakeFAU/epg-crawler/internal/config"
	"github.com/JakeFAU/epg-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/epg-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/epg-crawler/internal/id/uuid"
	"github.com/JakeFAU/epg-crawler/internal/metrics"
	"github.com/JakeFAU/epg-crawler/internal/notify/smtp"
	"github.com/JakeFAU/epg-crawler/internal/storage/gcs"
	"github.com/JakeFAU/epg-crawler/internal/storage/local"
	"github.com/JakeFAU/epg-crawler/internal/storage/postgres"
	"github.com/JakeFAU/epg-crawler/internal/worker"
)

// App holds the shared, long-lived services for one process.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	gateway *postgres.Gateway
	worker  *worker.Worker
	closers []func() error
}

// New wires the gateway, fetcher, notifier, mirror and cache from cfg. The
// database pool connects lazily, so New does not fail when the database is
// down; use Ping to check.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}

	gateway, err := postgres.NewGateway(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
		Location:        loc,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize gateway: %w", err)
	}
	a.gateway = gateway
	a.closers = append(a.closers, func() error { gateway.Close(); return nil })

	blobStore, mirrorPrefix, err := a.buildMirror(ctx, cfg.Mirror)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize mirror: %w", err)
	}
	cache, err := a.buildCache(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize cache: %w", err)
	}

	deps := worker.Deps{
		Gateway: gateway,
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Source.UserAgent,
			Timeout:   cfg.SourceTimeout(),
		}),
		Notifiers: smtp.Factory(smtp.Config{
			Host:      cfg.Mail.Host,
			Port:      cfg.Mail.Port,
			TLSPolicy: cfg.Mail.TLSPolicy,
			Timeout:   time.Duration(cfg.Mail.TimeoutSeconds) * time.Second,
		}),
		BlobStore: blobStore,
		Cache:     cache,
		Recorder:  metrics.NewRecorder(),
		Clock:     system.NewIn(loc),
		IDGen:     uuid.New(),
	}
	a.worker = worker.New(deps, worker.Config{
		ProcessName: cfg.Process.Name,
		Endpoints: crawler.Endpoints{
			GridBase:    cfg.Source.GridBaseURL,
			BackendBase: cfg.Source.BackendBaseURL,
		},
		Location:      loc,
		MirrorPrefix:  mirrorPrefix,
		ReportTimeout: cfg.ReportTimeout(),
	}, logger.Named("worker"))

	logger.Info("application services initialized",
		zap.String("process", cfg.Process.Name),
		zap.String("mirror", cfg.Mirror.Backend),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("timezone", loc.String()),
	)
	return a, nil
}

// buildMirror returns the snapshot store, or nil when mirroring is off, and
// the path prefix the worker should apply.
func (a *App) buildMirror(ctx context.Context, cfg config.MirrorConfig) (crawler.BlobStore, string, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, "", err
		}
		return store, cfg.Prefix, nil
	case config.BackendGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		// The GCS store applies the prefix to object names itself.
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		return nil, "", nil
	}
}

func (a *App) buildCache(cfg config.CacheConfig) (crawler.DescriptionCache, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memorycache.New(cfg.TTL), nil
	case config.BackendRedis:
		cache, err := rediscache.New(rediscache.Config{URL: cfg.RedisURL, Prefix: cfg.RedisPrefix, TTL: cfg.TTL})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		return cache, nil
	default:
		return nil, nil
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Gateway exposes the persistence gateway, e.g. for readiness checks.
func (a *App) Gateway() *postgres.Gateway {
	return a.gateway
}

// Worker returns the crawl worker.
func (a *App) Worker() *worker.Worker {
	return a.worker
}

// Close releases every service in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}

// Run performs one crawl pass.
func (a *App) Run(ctx context.Context) (crawler.Summary, error) {
	return a.worker.Run(ctx)
}

// Ping checks the database is reachable.
func (a *App) Ping(ctx context.Context) error {
	return a.gateway.Ping(ctx)
}
