// Package common provides shared utilities for Folio
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Folio
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Clients     ClientsConfig   `toml:"clients"`
	Analytics   AnalyticsConfig `toml:"analytics"`
	Tasks       TasksConfig     `toml:"tasks"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds storage configuration. Only the market-data cache is
// persisted; the portfolio itself travels in its serialized forms.
type StorageConfig struct {
	Cache CacheStoreConfig `toml:"cache"`
}

// CacheStoreConfig selects the backing store for the market-data cache.
type CacheStoreConfig struct {
	Backend string `toml:"backend"` // "memory", "file" or "badger"
	Path    string `toml:"path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// AnalyticsConfig holds the constants consumed by the analytics engine.
type AnalyticsConfig struct {
	RiskFreeRate         float64     `toml:"risk_free_rate"`
	PeriodsPerYear       int         `toml:"periods_per_year"`
	MinObservations      int         `toml:"min_observations"`
	MaterialityThreshold float64     `toml:"materiality_threshold"`
	TargetTolerance      float64     `toml:"target_tolerance"` // percentage points
	DriftAlertPct        float64     `toml:"drift_alert_pct"`
	ReportingCurrency    string      `toml:"reporting_currency"`
	LocalSuffix          string      `toml:"local_suffix"`
	FXPair               string      `toml:"fx_pair"`
	Lookback             string      `toml:"lookback"`
	SimulationPaths      int         `toml:"simulation_paths"`
	SimulationYears      float64     `toml:"simulation_years"`
	CloudSamples         int         `toml:"cloud_samples"`
	Seed                 uint64      `toml:"seed"` // 0 = time-seeded
	DividendTrendYears   int         `toml:"dividend_trend_years"`
	Cache                CacheConfig `toml:"cache"`
}

// GetLookback parses the default price-history lookback window.
func (c *AnalyticsConfig) GetLookback() time.Duration {
	d, err := ParseLookback(c.Lookback)
	if err != nil {
		return 365 * 24 * time.Hour
	}
	return d
}

// CacheConfig holds per-kind time-to-live values for market data.
type CacheConfig struct {
	QuoteTTL    string `toml:"quote_ttl"`
	PriceTTL    string `toml:"price_ttl"`
	FXTTL       string `toml:"fx_ttl"`
	DividendTTL string `toml:"dividend_ttl"`
	NewsTTL     string `toml:"news_ttl"`
	MaxAge      string `toml:"max_age"` // stale entries older than this are refetched before use and purged
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetQuoteTTL returns the quote TTL
func (c *CacheConfig) GetQuoteTTL() time.Duration {
	return parseDurationOr(c.QuoteTTL, FreshnessQuote)
}

// GetPriceTTL returns the price history TTL
func (c *CacheConfig) GetPriceTTL() time.Duration {
	return parseDurationOr(c.PriceTTL, FreshnessPriceHistory)
}

// GetFXTTL returns the exchange rate TTL
func (c *CacheConfig) GetFXTTL() time.Duration {
	return parseDurationOr(c.FXTTL, FreshnessFX)
}

// GetDividendTTL returns the dividend history TTL
func (c *CacheConfig) GetDividendTTL() time.Duration {
	return parseDurationOr(c.DividendTTL, FreshnessDividends)
}

// GetNewsTTL returns the news TTL
func (c *CacheConfig) GetNewsTTL() time.Duration {
	return parseDurationOr(c.NewsTTL, FreshnessNews)
}

// GetMaxAge returns the longest a stale entry may be served
func (c *CacheConfig) GetMaxAge() time.Duration {
	return parseDurationOr(c.MaxAge, 24*time.Hour)
}

// TasksConfig controls background task bookkeeping and session expiry
type TasksConfig struct {
	Retention     string `toml:"retention"`      // how long finished tasks stay queryable
	SweepInterval string `toml:"sweep_interval"` // how often expired tasks and sessions are pruned
	SessionIdle   string `toml:"session_idle"`   // idle time after which a session is discarded
}

// GetRetention returns the finished-task retention period
func (c *TasksConfig) GetRetention() time.Duration {
	return parseDurationOr(c.Retention, time.Hour)
}

// GetSweepInterval returns the pruning interval
func (c *TasksConfig) GetSweepInterval() time.Duration {
	return parseDurationOr(c.SweepInterval, time.Minute)
}

// GetSessionIdle returns the session idle timeout
func (c *TasksConfig) GetSessionIdle() time.Duration {
	return parseDurationOr(c.SessionIdle, 24*time.Hour)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Cache: CacheStoreConfig{
				Backend: "memory",
				Path:    "data/cache",
			},
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Analytics: AnalyticsConfig{
			RiskFreeRate:         0.0,
			PeriodsPerYear:       252,
			MinObservations:      10,
			MaterialityThreshold: 100,
			TargetTolerance:      0.01,
			DriftAlertPct:        5,
			ReportingCurrency:    "JPY",
			LocalSuffix:          ".T",
			FXPair:               "USDJPY",
			Lookback:             "1y",
			SimulationPaths:      1000,
			SimulationYears:      1,
			CloudSamples:         3000,
			DividendTrendYears:   3,
			Cache: CacheConfig{
				QuoteTTL:    "5m",
				PriceTTL:    "5m",
				FXTTL:       "1h",
				DividendTTL: "1h",
				NewsTTL:     "10m",
				MaxAge:      "24h",
			},
		},
		Tasks: TasksConfig{
			Retention:     "1h",
			SweepInterval: "1m",
			SessionIdle:   "24h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	normalizeAnalytics(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("FOLIO_DATA_PATH"); path != "" {
		config.Storage.Cache.Path = filepath.Join(path, "cache")
	}

	if key := os.Getenv("EODHD_API_KEY"); key != "" {
		config.Clients.EODHD.APIKey = key
	}

	if v := os.Getenv("FOLIO_RISK_FREE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Analytics.RiskFreeRate = f
		}
	}

	if v := os.Getenv("FOLIO_PERIODS_PER_YEAR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Analytics.PeriodsPerYear = n
		}
	}

	if v := os.Getenv("FOLIO_MATERIALITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Analytics.MaterialityThreshold = f
		}
	}

	if v := os.Getenv("FOLIO_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Analytics.Seed = n
		}
	}

	if v := os.Getenv("FOLIO_REPORTING_CURRENCY"); v != "" {
		config.Analytics.ReportingCurrency = strings.ToUpper(strings.TrimSpace(v))
	}
}

// normalizeAnalytics replaces out-of-range analytics values with defaults.
func normalizeAnalytics(config *Config) {
	defaults := NewDefaultConfig().Analytics
	a := &config.Analytics

	if a.PeriodsPerYear <= 0 {
		a.PeriodsPerYear = defaults.PeriodsPerYear
	}
	if a.MinObservations < 2 {
		a.MinObservations = defaults.MinObservations
	}
	if a.MaterialityThreshold < 0 {
		a.MaterialityThreshold = defaults.MaterialityThreshold
	}
	if a.TargetTolerance <= 0 {
		a.TargetTolerance = defaults.TargetTolerance
	}
	if a.SimulationPaths <= 0 {
		a.SimulationPaths = defaults.SimulationPaths
	}
	if a.SimulationYears <= 0 {
		a.SimulationYears = defaults.SimulationYears
	}
	if a.CloudSamples < 0 {
		a.CloudSamples = defaults.CloudSamples
	}
	if a.DividendTrendYears <= 0 {
		a.DividendTrendYears = defaults.DividendTrendYears
	}
	if a.ReportingCurrency == "" {
		a.ReportingCurrency = defaults.ReportingCurrency
	}
	if _, err := ParseLookback(a.Lookback); err != nil {
		a.Lookback = defaults.Lookback
	}
	if b := strings.ToLower(config.Storage.Cache.Backend); b != "memory" && b != "file" && b != "badger" {
		config.Storage.Cache.Backend = "memory"
	} else {
		config.Storage.Cache.Backend = b
	}
}

// IsProduction returns true when running in production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// ParseLookback parses a lookback window such as "6mo", "1y", "30d" or any
// Go duration string.
func ParseLookback(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty lookback")
	}

	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"mo", 30 * 24 * time.Hour},
		{"y", 365 * 24 * time.Hour},
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.Atoi(strings.TrimSuffix(s, u.suffix))
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid lookback %q", s)
			}
			return time.Duration(n) * u.unit, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid lookback %q", s)
	}
	return d, nil
}
