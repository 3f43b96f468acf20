package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Server struct {
	Port              string `json:"port" yaml:"port" env:"PORT"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec" env:"REQUEST_TIMEOUT_SEC"`
}

type Scrape struct {
	Region string `json:"region" yaml:"region" env:"REGION"`
	// Strategy is "auto" (browser, then http), "browser" or "http".
	Strategy        string  `json:"strategy" yaml:"strategy" env:"FETCH_STRATEGY"`
	CacheTTLSeconds int     `json:"cache_ttl_sec" yaml:"cache_ttl_sec" env:"CACHE_TTL_SEC"`
	FetchTimeoutSec int     `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec" env:"FETCH_TIMEOUT_SEC"`
	HTTPTimeoutSec  int     `json:"http_timeout_sec" yaml:"http_timeout_sec" env:"HTTP_TIMEOUT_SEC"`
	BatchTimeoutSec int     `json:"batch_timeout_sec" yaml:"batch_timeout_sec" env:"BATCH_TIMEOUT_SEC"`
	MinPrice        float64 `json:"min_price" yaml:"min_price" env:"MIN_PRICE"`
	MaxPrice        float64 `json:"max_price" yaml:"max_price" env:"MAX_PRICE"`
	SnippetChars    int     `json:"snippet_chars" yaml:"snippet_chars" env:"SNIPPET_CHARS"`
	MaxConcurrency  int     `json:"max_concurrency" yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	UserAgent       string  `json:"user_agent" yaml:"user_agent" env:"USER_AGENT"`
	RegionsFile     string  `json:"regions_file" yaml:"regions_file" env:"REGIONS_FILE"`
	// RefreshCron, when set, refreshes the cache in the background. Six
	// fields, seconds first, or a descriptor such as "@every 1m".
	RefreshCron string `json:"refresh_cron" yaml:"refresh_cron" env:"REFRESH_CRON"`

	MaxRequestsPerMinute int `json:"max_requests_per_minute" yaml:"max_requests_per_minute" env:"MAX_RPM"`
	Burst                int `json:"burst" yaml:"burst" env:"BURST"`
	MinRequestIntervalMs int `json:"min_request_interval_ms" yaml:"min_request_interval_ms" env:"MIN_INTERVAL_MS"`
}

type Browser struct {
	ExecPath      string `json:"exec_path" yaml:"exec_path" env:"CHROME_PATH"`
	IdleTimeoutMs int    `json:"idle_timeout_ms" yaml:"idle_timeout_ms" env:"BROWSER_IDLE_MS"`
}

type Fallback struct {
	Jitter float64 `json:"jitter" yaml:"jitter" env:"FALLBACK_JITTER"`
	Spread float64 `json:"spread" yaml:"spread" env:"FALLBACK_SPREAD"`
}

type Store struct {
	// Driver is "memory" or "sqlite".
	Driver     string `json:"driver" yaml:"driver" env:"STORE_DRIVER"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" env:"SQLITE_PATH"`
	MaxEntries int    `json:"max_entries" yaml:"max_entries" env:"STORE_MAX"`
	Retain     int    `json:"retain" yaml:"retain" env:"STORE_RETAIN"`
}

type Kafka struct {
	Brokers []string `json:"brokers" yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `json:"topic" yaml:"topic" env:"KAFKA_TOPIC"`
}

type Log struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Scrape   Scrape   `json:"scrape" yaml:"scrape"`
	Browser  Browser  `json:"browser" yaml:"browser"`
	Fallback Fallback `json:"fallback" yaml:"fallback"`
	Store    Store    `json:"store" yaml:"store"`
	Kafka    Kafka    `json:"kafka" yaml:"kafka"`
	Log      Log      `json:"log" yaml:"log"`
}

const (
	StrategyAuto    = "auto"
	StrategyBrowser = "browser"
	StrategyHTTP    = "http"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

func Default() Config {
	return Config{
		Server: Server{Port: "3000", RequestTimeoutSec: 30},
		Scrape: Scrape{
			Region:          "AR",
			Strategy:        StrategyAuto,
			CacheTTLSeconds: 60,
			FetchTimeoutSec: 30,
			HTTPTimeoutSec:  10,
			BatchTimeoutSec: 25,
			SnippetChars:    3000,
		},
		Browser:  Browser{IdleTimeoutMs: 2000},
		Fallback: Fallback{Jitter: 0.05, Spread: 0.02},
		Store: Store{
			Driver:     DriverMemory,
			SQLitePath: "data/quotes.db",
			MaxEntries: 100,
			Retain:     50,
		},
		Kafka: Kafka{Topic: "rate-quotes"},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load reads a JSON or YAML config from path (picked by extension) on top
// of the defaults. With an empty path, config.json or config.yaml in the
// working directory is used if present. Environment variables win over the
// file in both cases.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, nil
		case !errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("stat config: %w", err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

// Validate checks values the pipeline can't run without.
func (c *Config) Validate() error {
	c.Scrape.Region = strings.ToUpper(strings.TrimSpace(c.Scrape.Region))
	if c.Scrape.Region == "" {
		return fmt.Errorf("scrape.region is required")
	}
	switch c.Scrape.Strategy {
	case StrategyAuto, StrategyBrowser, StrategyHTTP:
	default:
		return fmt.Errorf("scrape.strategy must be auto, browser or http, got %q", c.Scrape.Strategy)
	}
	if c.Scrape.CacheTTLSeconds <= 0 {
		return fmt.Errorf("scrape.cache_ttl_sec must be positive")
	}
	if c.Scrape.FetchTimeoutSec <= 0 || c.Scrape.HTTPTimeoutSec <= 0 || c.Scrape.BatchTimeoutSec <= 0 {
		return fmt.Errorf("scrape timeouts must be positive")
	}
	if c.Scrape.MinPrice < 0 || (c.Scrape.MaxPrice > 0 && c.Scrape.MaxPrice <= c.Scrape.MinPrice) {
		return fmt.Errorf("scrape price range [%v, %v] is invalid", c.Scrape.MinPrice, c.Scrape.MaxPrice)
	}
	if c.Fallback.Jitter < 0 || c.Fallback.Jitter >= 1 {
		return fmt.Errorf("fallback.jitter must be in [0, 1), got %v", c.Fallback.Jitter)
	}
	if c.Fallback.Spread < 0 {
		return fmt.Errorf("fallback.spread must not be negative, got %v", c.Fallback.Spread)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", c.Store.Driver)
	}
	if c.Store.MaxEntries <= 0 || c.Store.Retain <= 0 || c.Store.Retain > c.Store.MaxEntries {
		return fmt.Errorf("store bounds max=%d retain=%d are invalid", c.Store.MaxEntries, c.Store.Retain)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}

func (s Scrape) CacheTTL() time.Duration     { return time.Duration(s.CacheTTLSeconds) * time.Second }
func (s Scrape) FetchTimeout() time.Duration { return time.Duration(s.FetchTimeoutSec) * time.Second }
func (s Scrape) HTTPTimeout() time.Duration  { return time.Duration(s.HTTPTimeoutSec) * time.Second }
func (s Scrape) BatchTimeout() time.Duration { return time.Duration(s.BatchTimeoutSec) * time.Second }
func (s Scrape) MinInterval() time.Duration {
	return time.Duration(s.MinRequestIntervalMs) * time.Millisecond
}
