// Package config loads process configuration from the environment (and an
// optional .env file) and the trading strategy from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Storage
	DataDir      string
	Store        string // json | sqlite
	StartingCash decimal.Decimal

	// Market data
	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	RefreshInterval time.Duration
	SampleData      bool
	SampleSeed      int64
	Universe        []string

	// Alpaca credentials
	AlpacaKey     string
	AlpacaSecret  string
	AlpacaBaseURL string
	AlpacaFeed    string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	MetricsAddr   string
	WebhookURL    string
	LogLevel      string

	// StrategyPath is the YAML strategy file; empty uses the defaults.
	StrategyPath string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when
// present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	var errs []error
	cash, err := decimal.NewFromString(getEnv("TRADERSIM_STARTING_CASH", "1000"))
	if err != nil || cash.IsNegative() {
		errs = append(errs, fmt.Errorf("TRADERSIM_STARTING_CASH: invalid amount %q", os.Getenv("TRADERSIM_STARTING_CASH")))
	}
	c := &Config{
		DataDir:      getEnv("TRADERSIM_DATA_DIR", "data"),
		Store:        strings.ToLower(getEnv("TRADERSIM_STORE", StoreJSON)),
		StartingCash: cash,

		CacheTTL:        getDuration("TRADERSIM_CACHE_TTL", 600*time.Second, &errs),
		FetchTimeout:    getDuration("TRADERSIM_FETCH_TIMEOUT", 10*time.Second, &errs),
		RefreshInterval: getDuration("TRADERSIM_REFRESH_INTERVAL", 5*time.Minute, &errs),
		SampleData:      getBool("TRADERSIM_SAMPLE_DATA", false, &errs),
		SampleSeed:      getInt("TRADERSIM_SAMPLE_SEED", 42, &errs),
		Universe:        getList("TRADERSIM_UNIVERSE", DefaultUniverse),

		AlpacaKey:     getEnv("APCA_API_KEY_ID", ""),
		AlpacaSecret:  getEnv("APCA_API_SECRET_KEY", ""),
		AlpacaBaseURL: getEnv("APCA_API_DATA_URL", ""),
		AlpacaFeed:    getEnv("APCA_DATA_FEED", "iex"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		WebhookURL:    getEnv("TRADERSIM_WEBHOOK_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		StrategyPath: getEnv("TRADERSIM_STRATEGY", ""),
	}
	if c.Store != StoreJSON && c.Store != StoreSQLite {
		errs = append(errs, fmt.Errorf("TRADERSIM_STORE: want %s or %s, got %q", StoreJSON, StoreSQLite, c.Store))
	}
	if len(c.Universe) == 0 {
		errs = append(errs, errors.New("TRADERSIM_UNIVERSE is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// UseLive reports whether the Alpaca source should be used.
func (c *Config) UseLive() bool {
	return !c.SampleData && c.AlpacaKey != "" && c.AlpacaSecret != ""
}

// PortfolioPath is the JSON portfolio document.
func (c *Config) PortfolioPath() string { return filepath.Join(c.DataDir, "portfolio.json") }

// SQLitePath is the SQLite database, used for the portfolio when Store is
// sqlite and always for the bar cache.
func (c *Config) SQLitePath() string { return filepath.Join(c.DataDir, "tradersim.db") }

// SnapshotPath is the market-data cache file used when Redis is not
// configured.
func (c *Config) SnapshotPath() string { return filepath.Join(c.DataDir, "market_data_cache.json") }

// SessionLogPath is the advisor session log.
func (c *Config) SessionLogPath() string { return filepath.Join(c.DataDir, "trade_log.json") }

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getDuration accepts Go durations ("90s", "10m") or plain seconds ("600").
func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid bool %q", key, v))
		return fallback
	}
	return b
}

func getInt(key string, fallback int64, errs *[]error) int64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

// getList splits a comma-separated variable into upper-cased symbols.
func getList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		out := make([]string, len(fallback))
		copy(out, fallback)
		return out
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
