package app_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"ratescraper/internal/app"
	"ratescraper/internal/config"
)

func TestMechanismsFollowStrategy(t *testing.T) {
	t.Parallel()

	names := func(strategy string) []string {
		cfg := config.Default()
		cfg.Scrape.Strategy = strategy
		var out []string
		for _, m := range app.Mechanisms(cfg, nil) {
			out = append(out, m.Name())
		}
		return out
	}

	require.Equal(t, []string{"browser", "http"}, names(config.StrategyAuto))
	require.Equal(t, []string{"browser"}, names(config.StrategyBrowser))
	require.Equal(t, []string{"http"}, names(config.StrategyHTTP))
}

func TestNewWithSQLiteStore(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Scrape.Region = "BR"
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "q.db")

	a, err := app.New(t.Context(), cfg, nil)

	require.NoError(t, err)
	require.Equal(t, 5.5, a.Region.BaseRate)
	require.Len(t, a.Region.Sources, 3)
	require.Equal(t, "BR", a.Service.Region())
	require.NoError(t, a.Close())
}

func TestNewUnknownRegion(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Scrape.Region = "ZZ"
	_, err := app.New(t.Context(), cfg, nil)
	require.Error(t, err)
}

func TestNewStoreUnavailable(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "missing-dir", "q.db")

	_, err := app.New(t.Context(), cfg, nil)
	require.ErrorContains(t, err, "quote store")
}

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := app.NewLogger(config.Log{Level: "warn", Format: "json"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "k", 1)

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
}
