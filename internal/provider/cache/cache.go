// Package cache holds the most recent scrape batch and decides when a new
// one is needed.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"ratescraper/internal/metrics"
	"ratescraper/internal/provider"
)

// Scraper runs one batch.
type Scraper interface {
	Scrape(ctx context.Context, sources []provider.Source) (provider.Batch, error)
}

// Sink receives every quote of a successful refresh. Implementations must
// handle their own errors.
type Sink interface {
	Insert(ctx context.Context, q provider.Quote)
}

// Snapshot is an immutable view of the cached batch.
type Snapshot struct {
	Batch provider.Batch
	// FetchedAt is when the batch entered the cache; zero if never.
	FetchedAt time.Time
	// Stale is set when a refresh failed and older data is served instead.
	Stale bool
}

func (s *Snapshot) Empty() bool { return s == nil || s.FetchedAt.IsZero() }

type Config struct {
	// BatchTimeout bounds a whole refresh.
	BatchTimeout time.Duration
	// PersistTimeout bounds writing a batch to the sinks.
	PersistTimeout time.Duration
}

type Cache struct {
	scraper Scraper
	sources []provider.Source
	cfg     Config
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	state   atomic.Pointer[Snapshot]
	failing atomic.Bool
	group   singleflight.Group
}

type Option func(*Cache)

func WithSinks(sinks ...Sink) Option { return func(c *Cache) { c.sinks = append(c.sinks, sinks...) } }

func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Cache) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func New(s Scraper, sources []provider.Source, cfg Config, opts ...Option) *Cache {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 25 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	c := &Cache{
		scraper: s,
		sources: sources,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peek returns the current snapshot without refreshing, marked stale if the
// last refresh failed. It never returns nil.
func (c *Cache) Peek() *Snapshot {
	s := c.state.Load()
	switch {
	case s.Empty():
		return emptySnapshot()
	case c.failing.Load():
		return &Snapshot{Batch: s.Batch, FetchedAt: s.FetchedAt, Stale: true}
	}
	return s
}

// EnsureFresh returns the cached snapshot if it is at most ttl old, and
// otherwise refreshes it. Concurrent callers share one refresh. If the
// refresh fails, or ctx ends first, the previous snapshot is returned marked
// stale, or an empty one if nothing was ever cached. The refresh itself is
// never canceled by ctx.
func (c *Cache) EnsureFresh(ctx context.Context, ttl time.Duration) *Snapshot {
	if s := c.state.Load(); c.fresh(s, ttl) {
		c.metrics.ObserveLookup(metrics.LookupFresh)
		return s
	}
	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.refresh(ttl), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*Snapshot)
	case <-ctx.Done():
		return c.staleOrEmpty()
	}
}

func (c *Cache) fresh(s *Snapshot, ttl time.Duration) bool {
	return !s.Empty() && c.now().Sub(s.FetchedAt) <= ttl
}

type result struct {
	batch provider.Batch
	err   error
}

func (c *Cache) refresh(ttl time.Duration) *Snapshot {
	// A flight that just finished may already have refreshed.
	if s := c.state.Load(); c.fresh(s, ttl) {
		c.metrics.ObserveLookup(metrics.LookupFresh)
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.BatchTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("scrape panicked: %v", r)}
			}
		}()
		b, err := c.scraper.Scrape(ctx, c.sources)
		done <- result{batch: b, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = fmt.Errorf("scrape exceeded %s: %w", c.cfg.BatchTimeout, ctx.Err())
	}
	if res.err != nil {
		c.failing.Store(true)
		c.logger.Error("refresh failed, serving previous data", "error", res.err)
		return c.staleOrEmpty()
	}
	c.failing.Store(false)

	at := c.now()
	if prev := c.state.Load(); prev != nil && at.Before(prev.FetchedAt) {
		at = prev.FetchedAt
	}
	if res.batch.Outcomes == nil {
		res.batch.Outcomes = []provider.Outcome{}
	}
	c.persist(res.batch, at)

	snap := &Snapshot{Batch: res.batch, FetchedAt: at}
	c.state.Store(snap)
	c.metrics.ObserveLookup(metrics.LookupRefreshed)
	return snap
}

func (c *Cache) persist(b provider.Batch, at time.Time) {
	if len(c.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
	defer cancel()
	for _, q := range provider.QuotesFromBatch(b, at) {
		for _, s := range c.sinks {
			s.Insert(ctx, q)
		}
	}
}

func (c *Cache) staleOrEmpty() *Snapshot {
	prev := c.state.Load()
	if prev.Empty() {
		c.metrics.ObserveLookup(metrics.LookupEmpty)
		return emptySnapshot()
	}
	c.metrics.ObserveLookup(metrics.LookupStale)
	return &Snapshot{Batch: prev.Batch, FetchedAt: prev.FetchedAt, Stale: true}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{Batch: provider.Batch{Outcomes: []provider.Outcome{}}}
}
