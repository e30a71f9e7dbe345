package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/pressrelay/internal/cache"
	"github.com/njoerd114/pressrelay/internal/config"
	"github.com/njoerd114/pressrelay/internal/state"
	syncp "github.com/njoerd114/pressrelay/internal/sync"
	"github.com/njoerd114/pressrelay/internal/telemetry"
	"github.com/njoerd114/pressrelay/internal/wordpress"
)

// app bundles what every site command needs: the loaded config, the logger,
// the XML-RPC adapter and, when configured, the fingerprint cache.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	wp    *wordpress.Adapter
	cache *cache.Cache

	closers []func()
}

// newApp loads the environment and config, then wires logging, telemetry,
// the WordPress adapter and the cache. Callers must defer Close.
func newApp(ctx context.Context) (*app, error) {
	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w\n\n  Run 'pressrelay init' to create one", flagConfig, err)
	}

	logger, closeLog, err := newLogger(os.Stderr, logLevel(flagVerbose), cfg.LogFile)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, log: logger}
	a.closers = append(a.closers, closeLog)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			Insecure:       cfg.Telemetry.Insecure,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			Site:           cfg.URL,
			MetricInterval: cfg.Telemetry.MetricInterval,
			Headers:        cfg.Telemetry.Headers,
		})
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Debug("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			a.closers = append(a.closers, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			})
		}
	}

	// --- WordPress adapter ---------------------------------------------------

	wp, err := wordpress.NewAdapter(cfg.URL, cfg.User, cfg.Password, wordpress.Options{
		BlogID:        cfg.BlogID,
		Delay:         cfg.Delay,
		RetryAttempts: cfg.RetryAttempts,
		Timeout:       cfg.Timeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialising WordPress client: %w", err)
	}
	a.wp = wp
	a.closers = append(a.closers, func() {
		if err := wp.Close(); err != nil {
			logger.Debug("closing WordPress client", "error", err)
		}
	})
	logger.Debug("config loaded", "url", cfg.URL, "user", cfg.User, "blog_id", cfg.BlogID)

	// --- Fingerprint cache (optional) ----------------------------------------

	if cfg.CacheFile != "" {
		c := cache.Open(cfg.CacheFile, wp, logger)
		a.cache = c
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				logger.Warn("saving page cache failed", "path", c.Path(), "error", err)
			}
		})
	}

	return a, nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) synchronizer(dryRun bool) *syncp.Synchronizer {
	opts := syncp.Options{Delay: a.cfg.Delay, DryRun: dryRun}
	if a.cache != nil {
		opts.Cache = a.cache
	}
	return syncp.NewSynchronizer(a.wp, opts, a.log)
}

// openHistory opens the run history database. The caller closes it.
func (a *app) openHistory() (*state.Store, error) {
	return openHistory(a.cfg)
}

func openHistory(cfg *config.Config) (*state.Store, error) {
	path, err := historyPath(cfg)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening history DB at %q: %w", path, err)
	}
	return store, nil
}

func historyPath(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.HistoryDB != "" {
		return cfg.HistoryDB, nil
	}
	path, err := state.DefaultDBPath()
	if err != nil {
		return "", fmt.Errorf("resolving history DB path: %w", err)
	}
	return path, nil
}

func (a *app) requireCache() (*cache.Cache, error) {
	if a.cache == nil {
		return nil, fmt.Errorf("no fingerprint cache: set cache_file in %s", flagConfig)
	}
	return a.cache, nil
}
