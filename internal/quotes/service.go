// Package quotes exposes the read operations served over HTTP.
package quotes

import (
	"context"
	"time"

	"ratescraper/internal/aggregate"
	"ratescraper/internal/provider"
	"ratescraper/internal/provider/cache"
	"ratescraper/internal/store"
)

type Service struct {
	cache   *cache.Cache
	store   *store.Store
	region  string
	ttl     time.Duration
	started time.Time
	now     func() time.Time
}

func New(c *cache.Cache, s *store.Store, region string, ttl time.Duration) *Service {
	return &Service{cache: c, store: s, region: region, ttl: ttl, started: time.Now(), now: time.Now}
}

func (s *Service) Region() string { return s.region }

// Quotes returns every outcome of a batch at most ttl old, failures
// included. ttl <= 0 uses the configured default. It never returns nil.
func (s *Service) Quotes(ctx context.Context, ttl time.Duration) []provider.Outcome {
	return s.snapshot(ctx, ttl).Batch.Outcomes
}

// Average returns mean buy and sell prices over the successful outcomes.
func (s *Service) Average(ctx context.Context, ttl time.Duration) (aggregate.Average, error) {
	return aggregate.Mean(aggregate.Successful(s.Quotes(ctx, ttl)))
}

// Slippage returns the means plus each source's relative deviation.
func (s *Service) Slippage(ctx context.Context, ttl time.Duration) (aggregate.Slippage, error) {
	return aggregate.Deviation(aggregate.Successful(s.Quotes(ctx, ttl)))
}

// Refresh brings the cache up to date, for background warmers.
func (s *Service) Refresh(ctx context.Context) {
	s.snapshot(ctx, s.ttl)
}

// Recent returns up to n stored quotes, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]provider.Quote, error) {
	return s.store.Recent(ctx, n)
}

type Health struct {
	Status       string  `json:"status"`
	Region       string  `json:"region"`
	LastFetch    string  `json:"last_fetch"`
	CachedQuotes int     `json:"cached_quotes"`
	Outcomes     int     `json:"outcomes"`
	Origin       string  `json:"origin,omitempty"`
	Mechanism    string  `json:"mechanism,omitempty"`
	Stale        bool    `json:"stale"`
	StoredQuotes int     `json:"stored_quotes"`
	UptimeSec    float64 `json:"uptime_sec"`
}

// Health reports cache state without triggering a scrape.
func (s *Service) Health(ctx context.Context) Health {
	snap := s.cache.Peek()
	h := Health{
		Status:       "ok",
		Region:       s.region,
		LastFetch:    "never",
		CachedQuotes: snap.Batch.Successful(),
		Outcomes:     len(snap.Batch.Outcomes),
		Origin:       string(snap.Batch.Origin),
		Mechanism:    snap.Batch.Mechanism,
		Stale:        snap.Stale,
		UptimeSec:    s.now().Sub(s.started).Seconds(),
	}
	if !snap.Empty() {
		h.LastFetch = snap.FetchedAt.UTC().Format(time.RFC3339)
	}
	if n, err := s.store.Len(ctx); err == nil {
		h.StoredQuotes = n
	}
	return h
}

func (s *Service) snapshot(ctx context.Context, ttl time.Duration) *cache.Snapshot {
	if ttl <= 0 {
		ttl = s.ttl
	}
	return s.cache.EnsureFresh(ctx, ttl)
}
