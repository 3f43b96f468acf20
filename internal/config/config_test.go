package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "AR", cfg.Scrape.Region)
	require.Equal(t, "3000", cfg.Server.Port)
	require.Equal(t, 100, cfg.Store.MaxEntries)
	require.Equal(t, 50, cfg.Store.Retain)
}

func TestLoadJSONKeepsDefaultsForMissingKeys(t *testing.T) {
	p := writeFile(t, "config.json", `{"scrape": {"region": "BR", "cache_ttl_sec": 30}}`)

	cfg, err := Load(p)

	require.NoError(t, err)
	require.Equal(t, "BR", cfg.Scrape.Region)
	require.Equal(t, 30, cfg.Scrape.CacheTTLSeconds)
	require.Equal(t, 25, cfg.Scrape.BatchTimeoutSec)
	require.Equal(t, StrategyAuto, cfg.Scrape.Strategy)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	p := writeFile(t, "config.yaml", "store:\n  driver: sqlite\n  sqlite_path: /tmp/q.db\nkafka:\n  topic: fx\n")
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(p)

	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, "/tmp/q.db", cfg.Store.SQLitePath)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "fx", cfg.Kafka.Topic)
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("REGION", "br")
	t.Setenv("FETCH_STRATEGY", "http")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))

	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "BR", cfg.Scrape.Region)
	require.Equal(t, StrategyHTTP, cfg.Scrape.Strategy)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"strategy":  func(c *Config) { c.Scrape.Strategy = "curl" },
		"ttl":       func(c *Config) { c.Scrape.CacheTTLSeconds = 0 },
		"timeout":   func(c *Config) { c.Scrape.BatchTimeoutSec = -1 },
		"driver":    func(c *Config) { c.Store.Driver = "redis" },
		"retain":    func(c *Config) { c.Store.Retain = 200 },
		"range":     func(c *Config) { c.Scrape.MinPrice, c.Scrape.MaxPrice = 10, 5 },
		"kafka":     func(c *Config) { c.Kafka.Brokers, c.Kafka.Topic = []string{"k:9092"}, "" },
		"no region": func(c *Config) { c.Scrape.Region = " " },
		"jitter":    func(c *Config) { c.Fallback.Jitter = 1.5 },
		"spread":    func(c *Config) { c.Fallback.Spread = -0.1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestResolveBuiltinRegions(t *testing.T) {
	cfg := Default()
	r, err := cfg.Resolve(BuiltinRegions())
	require.NoError(t, err)
	require.Len(t, r.Sources, 3)
	require.Equal(t, 1000.0, r.BaseRate)
	require.Equal(t, 50.0, r.MinPrice)

	cfg.Scrape.Region = "BR"
	cfg.Scrape.MaxPrice = 10
	r, err = cfg.Resolve(BuiltinRegions())
	require.NoError(t, err)
	require.Equal(t, 5.5, r.BaseRate)
	require.Equal(t, 10.0, r.MaxPrice)

	cfg.Scrape.Region = "CL"
	_, err = cfg.Resolve(BuiltinRegions())
	require.Error(t, err)
}

func TestResolveRejectsImplausibleFallback(t *testing.T) {
	cfg := Default()
	cfg.Fallback.Jitter = 0.9
	cfg.Fallback.Spread = 0.5
	require.NoError(t, cfg.Validate())

	// 1000 * 1.9 * 1.5 is above the AR ceiling of 2000.
	_, err := cfg.Resolve(BuiltinRegions())
	require.Error(t, err)

	cfg.Fallback.Spread = 0
	r, err := cfg.Resolve(BuiltinRegions())
	require.NoError(t, err)
	require.Equal(t, 1000.0, r.BaseRate)
}

func TestLoadRegionsMergesOverBuiltin(t *testing.T) {
	p := writeFile(t, "regions.yaml", `
regions:
  ar:
    max_price: 3000
  cl:
    min_price: 500
    max_price: 1500
    base_rate: 950
    sources:
      - name: valor
        url: https://example.cl/dolar
`)

	regions, err := LoadRegions(p)

	require.NoError(t, err)
	require.Equal(t, 3000.0, regions["AR"].MaxPrice)
	require.Len(t, regions["AR"].Sources, 3)
	require.Equal(t, "valor", regions["CL"].Sources[0].Name)
	require.Equal(t, 950.0, regions["CL"].BaseRate)
	require.Contains(t, regions, "BR")

	_, err = LoadRegions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
