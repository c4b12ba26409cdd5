package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/api"
	"github.com/mkosyakov/autocom-mirror/internal/catalog"
	"github.com/mkosyakov/autocom-mirror/internal/config"
	"github.com/mkosyakov/autocom-mirror/internal/fetch"
	"github.com/mkosyakov/autocom-mirror/internal/ingest"
	"github.com/mkosyakov/autocom-mirror/internal/logging"
	"github.com/mkosyakov/autocom-mirror/internal/metrics"
	"github.com/mkosyakov/autocom-mirror/internal/partition"
	"github.com/mkosyakov/autocom-mirror/internal/remote"
	"github.com/mkosyakov/autocom-mirror/internal/store"
	"github.com/mkosyakov/autocom-mirror/internal/syncer"
)

// application bundles the wired services commands run against.
type application struct {
	cfg    config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	orch   *syncer.Orchestrator
	ops    *api.Server
}

// buildApp loads configuration and wires every service the commands need.
func buildApp(ctx context.Context, cfgFile string) (*application, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	metrics.Init()

	pool, err := store.Connect(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	ranges := store.NewRangeStore(pool)
	cat := store.NewCatalogStore(pool)

	var proxies *remote.ProxyPool
	if cfg.Proxy.Enabled {
		proxies, err = remote.LoadProxyPool(cfg.Proxy.File, remote.ProxyPoolConfig{
			CheckURL:     cfg.Proxy.CheckURL,
			CheckTimeout: time.Duration(cfg.Proxy.CheckTimeoutMs) * time.Millisecond,
			MaxAttempts:  cfg.Proxy.MaxAttempts,
		}, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("load proxy pool: %w", err)
		}
	}

	retry := remote.NewRetryPolicy(
		cfg.Remote.MaxRetries,
		time.Duration(cfg.Remote.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Remote.BackoffMaxMs)*time.Millisecond,
	)
	client, err := remote.NewClient(remote.Config{
		URL:     cfg.Remote.URL,
		APIKey:  cfg.Remote.APIKey,
		Timeout: cfg.RequestTimeout(),
	}, proxies, retry, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	fetcher := fetch.NewEngine(client, logger)
	parts := partition.New(ranges, fetcher, cfg.Fetch.Threshold, cfg.Fetch.PageSize, logger)
	ing := ingest.New(cat, ingest.NewURLBuilder(cfg.Remote.OriginURL), logger)

	orch := syncer.New(ranges, cat, fetcher, parts, ing, syncer.Options{
		Domain: catalog.RangeKey{
			YearMin:  cfg.Domain.YearMin,
			YearMax:  cfg.Domain.YearMax,
			PriceMin: cfg.Domain.PriceMin,
			PriceMax: cfg.Domain.PriceMax,
		},
		Threshold: cfg.Fetch.Threshold,
		PageSize:  cfg.Fetch.PageSize,
		Threads:   cfg.Fetch.Threads,
	}, logger)

	app := &application{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		orch:   orch,
	}

	if cfg.Server.Enabled {
		app.ops = api.NewServer(cfg.Server.Port, func(ctx context.Context) error {
			return pool.Ping(ctx)
		}, logger)
		app.ops.Start()
	}

	return app, nil
}

// close shuts down the ops server and the database pool.
func (a *application) close() {
	if a.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown failed", zap.Error(err))
		}
	}
	a.pool.Close()
	a.logger.Sync() //nolint:errcheck
}
