// Package app wires configuration, storage, market data and the analytics
// services into the runtime shared by the server and its tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/folio/internal/cache"
	"github.com/bobmcallan/folio/internal/clients/eodhd"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/gateway"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/portfolio"
	"github.com/bobmcallan/folio/internal/services/analytics"
	"github.com/bobmcallan/folio/internal/services/jobmanager"
	"github.com/bobmcallan/folio/internal/storage"
)

// App holds the initialized services.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Cache       *cache.Cache
	Source      interfaces.MarketDataSource
	Gateway     interfaces.MarketDataGateway
	Analytics   interfaces.AnalyticsService
	Tasks       *jobmanager.JobManager
	Sessions    *portfolio.SessionStore
	StartupTime time.Time

	sweepCancel     context.CancelFunc
	warmCacheCancel context.CancelFunc
	done            chan struct{}
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath checks the given path, FOLIO_CONFIG, the binary
// directory and finally config/folio.toml.
func resolveConfigPath(configPath, binDir string) string {
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and builds every service. A missing config
// file is not an error; defaults and environment overrides apply.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()
	binDir := getBinaryDir()

	config, err := common.LoadConfig(resolveConfigPath(configPath, binDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative cache path to binary directory
	if p := config.Storage.Cache.Path; p != "" && !filepath.IsAbs(p) {
		config.Storage.Cache.Path = filepath.Join(binDir, p)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	if config.Clients.EODHD.APIKey == "" {
		logger.Warn().Msg("EODHD API key not configured - market data will be empty")
	}
	source := eodhd.NewClientFromConfig(config.Clients.EODHD, logger)

	return newApp(config, logger, source, startupStart)
}

// NewWithSource builds an App around an already constructed data source,
// typically one built from common.NewDefaultConfig.
func NewWithSource(config *common.Config, logger *common.Logger, source interfaces.MarketDataSource) (*App, error) {
	return newApp(config, logger, source, time.Now())
}

func newApp(config *common.Config, logger *common.Logger, source interfaces.MarketDataSource, startupStart time.Time) (*App, error) {
	store, err := storage.NewCacheStore(logger, config.Storage.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache store: %w", err)
	}

	c := cache.New(store, logger, config.Analytics.Cache)
	gw := gateway.New(source, c, logger, gateway.WithDividendYears(config.Analytics.DividendTrendYears+1))

	a := &App{
		Config:      config,
		Logger:      logger,
		Cache:       c,
		Source:      source,
		Gateway:     gw,
		Analytics:   analytics.NewService(gw, logger, config.Analytics),
		Tasks:       jobmanager.NewJobManager(logger, config.Tasks),
		Sessions:    portfolio.NewSessionStore(),
		StartupTime: startupStart,
	}

	logger.Info().
		Str("cache_backend", config.Storage.Cache.Backend).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Start launches the task manager and the background sweeper.
func (a *App) Start() {
	a.Tasks.Start()

	ctx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		runSweeper(ctx, a.Cache, a.Sessions, a.Logger, a.Config.Tasks.GetSweepInterval(), a.Config.Tasks.GetSessionIdle())
	}()
}

// StartWarmCache launches the background cache warming goroutine.
func (a *App) StartWarmCache() {
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	a.warmCacheCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.Gateway, a.Config.Analytics, a.Logger)
	}()
}

// Close releases all resources held by the App.
// Shutdown order: stop sweeper, cancel warm cache, stop tasks, close cache.
func (a *App) Close() {
	if a.sweepCancel != nil {
		a.sweepCancel()
		<-a.done
		a.sweepCancel = nil
	}
	if a.warmCacheCancel != nil {
		a.warmCacheCancel()
		a.warmCacheCancel = nil
	}
	if a.Tasks != nil {
		a.Tasks.Stop()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cache")
		}
		a.Cache = nil
	}
}
