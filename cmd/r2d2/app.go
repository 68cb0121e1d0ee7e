package main

import (
	"context"

	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/cloudflare"
	"github.com/r2d2/r2d2/internal/config"
	"github.com/r2d2/r2d2/internal/logging"
	"github.com/r2d2/r2d2/internal/metrics"
)

// storageMetrics is set when --metrics-textfile asks for an export
var storageMetrics *metrics.Storage

// initLogging sets up the global logger. Flags win over the config level.
func initLogging(configured, format string) error {
	level := configured
	if level == "" {
		level = "warn"
	}
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	return logging.Init(logging.Config{Level: level, Format: format})
}

// loadConfig discovers the configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Guess(configPath)
	if err != nil {
		return nil, err
	}
	if bucketName != "" {
		cfg.Bucket = bucketName
	}

	if err := initLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}

	logging.Debug("configuration loaded",
		logging.String("source", sourceName(cfg)),
		logging.String("driver", cfg.Driver),
		logging.String("bucket", cfg.Bucket))
	return cfg, nil
}

func sourceName(cfg *config.Config) string {
	if cfg.Source == "" {
		return "environment"
	}
	return cfg.Source
}

// openStore connects to the configured object store, instrumented when
// metrics are exported.
func openStore(ctx context.Context, cfg *config.Config) (backend.Store, error) {
	if err := cfg.RequireStorage(); err != nil {
		return nil, err
	}

	store, err := backend.New(ctx, cfg.Backend())
	if err != nil {
		return nil, err
	}

	if metricsTextfile == "" {
		return store, nil
	}
	if storageMetrics == nil {
		storageMetrics = metrics.NewStorage()
	}
	return backend.Instrument(store, storageMetrics), nil
}

// apiClient returns a Cloudflare API client for the configured account.
func apiClient(cfg *config.Config) (*cloudflare.Client, error) {
	if err := cfg.RequireAPI(); err != nil {
		return nil, err
	}
	return cloudflare.New(cfg.AccountID, cfg.APIKey), nil
}

func writeMetrics() error {
	if metricsTextfile == "" || storageMetrics == nil {
		return nil
	}
	return storageMetrics.WriteTextfile(metricsTextfile)
}
