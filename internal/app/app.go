// Package app wires configuration into a running quote pipeline. Both
// binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"ratescraper/internal/config"
	"ratescraper/internal/extract"
	"ratescraper/internal/httpx"
	"ratescraper/internal/metrics"
	"ratescraper/internal/provider"
	"ratescraper/internal/provider/browser"
	"ratescraper/internal/provider/cache"
	"ratescraper/internal/provider/fallback"
	"ratescraper/internal/provider/plainhttp"
	"ratescraper/internal/provider/ratelimit"
	"ratescraper/internal/publish"
	"ratescraper/internal/quotes"
	"ratescraper/internal/scraper"
	"ratescraper/internal/store"
)

type App struct {
	Config   config.Config
	Region   config.Region
	Scraper  *scraper.Scraper
	Cache    *cache.Cache
	Store    *store.Store
	Service  *quotes.Service
	Registry *prometheus.Registry

	closers []io.Closer
}

// New builds the pipeline for cfg. Only storage that can't be opened is
// reported as an error; scraping problems surface per request.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	regions, err := config.LoadRegions(cfg.Scrape.RegionsFile)
	if err != nil {
		return nil, err
	}
	region, err := cfg.Resolve(regions)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sc := scraper.New(
		Mechanisms(cfg, logger),
		extract.New(region.MinPrice, region.MaxPrice),
		fallback.New(region.BaseRate, cfg.Fallback.Jitter, cfg.Fallback.Spread, nil),
		scraper.Config{FetchTimeout: cfg.Scrape.FetchTimeout(), MaxConcurrency: cfg.Scrape.MaxConcurrency},
		scraper.WithLogger(logger.With("component", "scraper")),
		scraper.WithMetrics(m),
	)

	a := &App{Config: cfg, Region: region, Scraper: sc, Registry: reg}

	log, err := openLog(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Store = store.New(log, logger.With("component", "store"))
	a.closers = append(a.closers, a.Store)

	sinks := []cache.Sink{a.Store}
	if len(cfg.Kafka.Brokers) > 0 {
		k := publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Scrape.Region, logger.With("component", "kafka"))
		sinks = append(sinks, k)
		a.closers = append(a.closers, k)
	}

	a.Cache = cache.New(sc, region.Sources,
		cache.Config{BatchTimeout: cfg.Scrape.BatchTimeout()},
		cache.WithSinks(sinks...),
		cache.WithLogger(logger.With("component", "cache")),
		cache.WithMetrics(m),
	)
	a.Service = quotes.New(a.Cache, a.Store, cfg.Scrape.Region, cfg.Scrape.CacheTTL())
	return a, nil
}

// Mechanisms returns the acquisition mechanisms for cfg's strategy, in the
// order they are tried.
func Mechanisms(cfg config.Config, logger *slog.Logger) []provider.Mechanism {
	if logger == nil {
		logger = slog.Default()
	}
	ua := cfg.Scrape.UserAgent
	if ua == "" {
		ua = httpx.DefaultUserAgent
	}
	limit := func(m provider.Mechanism) provider.Mechanism {
		return ratelimit.Wrap(m, cfg.Scrape.MaxRequestsPerMinute, cfg.Scrape.Burst, cfg.Scrape.MinInterval())
	}

	br := limit(browser.New(browser.Config{
		ExecPath:     cfg.Browser.ExecPath,
		UserAgent:    ua,
		SnippetChars: cfg.Scrape.SnippetChars,
		IdleTimeout:  time.Duration(cfg.Browser.IdleTimeoutMs) * time.Millisecond,
	}, logger.With("component", "browser")))

	client := httpx.New(cfg.Scrape.HTTPTimeout())
	client.UserAgent = ua
	plain := limit(plainhttp.New(client, cfg.Scrape.SnippetChars))

	switch cfg.Scrape.Strategy {
	case config.StrategyBrowser:
		return []provider.Mechanism{br}
	case config.StrategyHTTP:
		return []provider.Mechanism{plain}
	}
	return []provider.Mechanism{br, plain}
}

func openLog(ctx context.Context, cfg config.Store) (store.Log, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		l, err := store.OpenSQLite(ctx, cfg.SQLitePath, cfg.MaxEntries, cfg.Retain)
		if err != nil {
			return nil, fmt.Errorf("quote store: %w", err)
		}
		return l, nil
	case config.DriverMemory, "":
		return store.NewMemory(cfg.MaxEntries, cfg.Retain), nil
	}
	return nil, fmt.Errorf("quote store: unknown driver %q", cfg.Driver)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
