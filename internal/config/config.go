// Package config holds the validated venuescout configuration.
// All tunable scheduling constants live here so the decision logic in
// internal/budget, internal/quota and internal/ledger stays literal-free.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all venuescout configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Data directory for the SQLite database and debug logs
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`

	// Search API credentials (key + engine id pairs)
	Credentials []CredentialConfig `yaml:"credentials"`

	Quota    QuotaConfig    `yaml:"quota"`
	Cache    CacheConfig    `yaml:"cache"`
	Budget   BudgetConfig   `yaml:"budget"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Search   SearchConfig   `yaml:"search"`

	// Discovery inputs: static per-country city lists, delivery platforms,
	// chains still needing discovery, and the experimental query list.
	Countries           map[string][]string `yaml:"countries"` // country code -> cities, best first
	Platforms           []string            `yaml:"platforms"`
	Chains              []ChainConfig       `yaml:"chains"`
	ExperimentalQueries []string            `yaml:"experimental_queries"`

	// Baseline strategies inserted once at startup (id-keyed, idempotent)
	SeedStrategies []StrategyConfig `yaml:"seed_strategies"`

	Logging LoggingConfig `yaml:"logging"`
}

// CredentialConfig is one API key / engine id pair with its daily free quota.
// Immutable once loaded.
type CredentialConfig struct {
	ID         string `yaml:"id"`
	APIKey     string `yaml:"api_key"`
	EngineID   string `yaml:"engine_id"`
	DailyLimit int    `yaml:"daily_limit"`
}

// StrategyConfig is a seed strategy: a query template bound to a
// platform/country pair.
type StrategyConfig struct {
	ID            string   `yaml:"id"`
	Platform      string   `yaml:"platform"`
	Country       string   `yaml:"country"`
	QueryTemplate string   `yaml:"query_template"`
	Tags          []string `yaml:"tags"`
}

// ChainConfig describes a restaurant/retail chain still needing discovery.
type ChainConfig struct {
	Name               string   `yaml:"name"`
	Countries          []string `yaml:"countries"`
	EstimatedLocations int      `yaml:"estimated_locations"`
}

// QuotaConfig configures the credential pool.
type QuotaConfig struct {
	// Used when a credential omits daily_limit
	DefaultDailyLimit int `yaml:"default_daily_limit"`

	// Bill overflow queries to the shared paid counter once all free
	// allowances are exhausted for the day
	PaidFallbackEnabled bool    `yaml:"paid_fallback_enabled"`
	CostPerPaidQuery    float64 `yaml:"cost_per_paid_query"`
}

// CacheConfig configures the query dedup cache.
type CacheConfig struct {
	HitTTL  string `yaml:"hit_ttl"`  // entries with results, default 24h
	MissTTL string `yaml:"miss_ttl"` // zero-result entries, default 168h
}

// BudgetConfig configures the tiered budget allocator.
type BudgetConfig struct {
	// Tier percentages, must sum to 100
	ChainPercent        int `yaml:"chain_percent"`
	HighYieldPercent    int `yaml:"high_yield_percent"`
	CityPercent         int `yaml:"city_percent"`
	ExperimentalPercent int `yaml:"experimental_percent"`

	// Chain tier: only chains below this estimated coverage are candidates
	ChainCoverageThreshold float64 `yaml:"chain_coverage_threshold"`
	// Chain tier: cities used per country when estimating chain queries
	TopCitiesPerChain int `yaml:"top_cities_per_chain"`

	// High-yield tier candidate filters
	HighYieldMinUses int     `yaml:"high_yield_min_uses"`
	HighYieldMinRate float64 `yaml:"high_yield_min_rate"`
	// High-yield tier: cap on cities replayed per strategy
	CitiesPerStrategy int `yaml:"cities_per_strategy"`

	// City tier: cities with fewer discovered venues than this are candidates
	CityVenueThreshold int `yaml:"city_venue_threshold"`
	// City tier: fixed search angles per accepted city
	QueriesPerCity int `yaml:"queries_per_city"`
}

// LedgerConfig configures strategy feedback blending.
type LedgerConfig struct {
	// A strategy falling below this success rate is deprecated (terminal)
	AutoDeprecateBelow float64 `yaml:"auto_deprecate_below"`
	// historicalWeight = min(totalUses/divisor, cap)
	HistoricalWeightDivisor float64 `yaml:"historical_weight_divisor"`
	HistoricalWeightCap     float64 `yaml:"historical_weight_cap"`
}

// DispatchConfig configures the run loop.
type DispatchConfig struct {
	Workers        int     `yaml:"workers"`
	QueryTimeout   string  `yaml:"query_timeout"`
	MaxRetries     int     `yaml:"max_retries"`
	RetryBackoff   string  `yaml:"retry_backoff"`
	QueriesPerSec  float64 `yaml:"queries_per_sec"`
	DefaultBudget  int     `yaml:"default_budget"`
}

// SearchConfig configures the outbound search client.
type SearchConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "venuescout",
		Version: "1.0.0",

		DataDir:      "data",
		DatabasePath: "data/venuescout.db",

		Quota: QuotaConfig{
			DefaultDailyLimit:   100,
			PaidFallbackEnabled: false,
			CostPerPaidQuery:    0.005,
		},

		Cache: CacheConfig{
			HitTTL:  "24h",
			MissTTL: "168h",
		},

		Budget: BudgetConfig{
			ChainPercent:           40,
			HighYieldPercent:       30,
			CityPercent:            20,
			ExperimentalPercent:    10,
			ChainCoverageThreshold: 0.80,
			TopCitiesPerChain:      5,
			HighYieldMinUses:       5,
			HighYieldMinRate:       50,
			CitiesPerStrategy:      10,
			CityVenueThreshold:     5,
			QueriesPerCity:         3,
		},

		Ledger: LedgerConfig{
			AutoDeprecateBelow:      20,
			HistoricalWeightDivisor: 10,
			HistoricalWeightCap:     0.8,
		},

		Dispatch: DispatchConfig{
			Workers:       2,
			QueryTimeout:  "30s",
			MaxRetries:    2,
			RetryBackoff:  "2s",
			QueriesPerSec: 1,
			DefaultBudget: 100,
		},

		Search: SearchConfig{
			BaseURL: "https://www.googleapis.com/customsearch/v1",
			Timeout: "30s",
		},

		Platforms: []string{"ubereats", "doordash", "deliveroo"},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, applies environment overrides,
// and validates the result. A missing file yields validated defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Single-credential setup straight from the environment. Appended after
	// configured credentials so file-based rotation order is preserved.
	if key := os.Getenv("VENUESCOUT_API_KEY"); key != "" {
		cred := CredentialConfig{
			ID:       "env",
			APIKey:   key,
			EngineID: os.Getenv("VENUESCOUT_ENGINE_ID"),
		}
		if limit := os.Getenv("VENUESCOUT_DAILY_LIMIT"); limit != "" {
			if n, err := strconv.Atoi(limit); err == nil {
				cred.DailyLimit = n
			}
		}
		c.Credentials = append(c.Credentials, cred)
	}

	if path := os.Getenv("VENUESCOUT_DB"); path != "" {
		c.DatabasePath = path
	}
	if dir := os.Getenv("VENUESCOUT_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if os.Getenv("VENUESCOUT_PAID_FALLBACK") == "true" {
		c.Quota.PaidFallbackEnabled = true
	}
	if os.Getenv("VENUESCOUT_DEBUG") == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// GetQueryTimeout returns the per-query dispatch timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	return parseDuration(c.Dispatch.QueryTimeout, 30*time.Second)
}

// GetRetryBackoff returns the base retry backoff as a duration.
func (c *Config) GetRetryBackoff() time.Duration {
	return parseDuration(c.Dispatch.RetryBackoff, 2*time.Second)
}

// GetSearchTimeout returns the search client timeout as a duration.
func (c *Config) GetSearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 30*time.Second)
}

// GetHitTTL returns the cache TTL for queries that found results.
func (c *Config) GetHitTTL() time.Duration {
	return parseDuration(c.Cache.HitTTL, 24*time.Hour)
}

// GetMissTTL returns the cache TTL for zero-result queries.
func (c *Config) GetMissTTL() time.Duration {
	return parseDuration(c.Cache.MissTTL, 7*24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
