// Package scraper runs one batch over all configured sources.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"ratescraper/internal/extract"
	"ratescraper/internal/metrics"
	"ratescraper/internal/provider"
)

// ErrNoMechanism is returned when every mechanism is unavailable and no
// fallback is configured.
var ErrNoMechanism = errors.New("no acquisition mechanism available")

// Fallback produces the synthetic outcome used when nothing can be fetched.
type Fallback interface {
	Outcome() provider.Outcome
}

type Config struct {
	// FetchTimeout bounds each source individually.
	FetchTimeout time.Duration
	// MaxConcurrency limits in-flight fetches; 0 means one per source.
	MaxConcurrency int
}

type Scraper struct {
	mechanisms []provider.Mechanism
	extractor  extract.Extractor
	fallback   Fallback
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Scraper)

func WithLogger(l *slog.Logger) Option { return func(s *Scraper) { s.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Scraper) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Scraper) { s.now = now } }

// New builds a scraper that tries mechanisms in order.
func New(mechanisms []provider.Mechanism, ex extract.Extractor, fb Fallback, cfg Config, opts ...Option) *Scraper {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	s := &Scraper{
		mechanisms: mechanisms,
		extractor:  ex,
		fallback:   fb,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape produces exactly one outcome per source using the first mechanism
// that opens. If none opens, the batch holds only the fallback outcome.
func (s *Scraper) Scrape(ctx context.Context, sources []provider.Source) (provider.Batch, error) {
	start := s.now()
	for _, m := range s.mechanisms {
		outcomes, err := s.scrapeWith(ctx, m, sources)
		if err != nil {
			if ctx.Err() != nil {
				return provider.Batch{}, ctx.Err()
			}
			s.logger.Warn("acquisition mechanism unavailable", "mechanism", m.Name(), "error", err)
			continue
		}
		b := provider.Batch{
			Outcomes:  outcomes,
			Origin:    provider.OriginScrape,
			Mechanism: m.Name(),
			FetchedAt: s.now(),
		}
		s.metrics.ObserveBatch(b, s.now().Sub(start))
		s.logger.Info("scrape finished",
			"mechanism", b.Mechanism, "sources", len(sources), "ok", b.Successful(), "took", s.now().Sub(start))
		return b, ctx.Err()
	}

	if s.fallback == nil {
		return provider.Batch{}, ErrNoMechanism
	}
	o := s.fallback.Outcome()
	s.metrics.ObserveOutcome(o)
	b := provider.Batch{
		Outcomes:  []provider.Outcome{o},
		Origin:    provider.OriginFallback,
		Mechanism: "fallback",
		FetchedAt: s.now(),
	}
	s.metrics.ObserveBatch(b, s.now().Sub(start))
	s.logger.Warn("all mechanisms unavailable, serving synthetic quote")
	return b, nil
}

func (s *Scraper) scrapeWith(ctx context.Context, m provider.Mechanism, sources []provider.Source) ([]provider.Outcome, error) {
	sess, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warn("close session", "mechanism", m.Name(), "error", err)
		}
	}()

	outcomes := make([]provider.Outcome, len(sources))
	var g errgroup.Group
	if s.cfg.MaxConcurrency > 0 {
		g.SetLimit(s.cfg.MaxConcurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = s.fetchOne(ctx, sess, src)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// fetchOne never fails: every error, including a panic, becomes an outcome.
func (s *Scraper) fetchOne(ctx context.Context, f provider.Fetcher, src provider.Source) (out provider.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = provider.Failed(src, provider.KindPanic, fmt.Sprintf("panic: %v", r), "")
			s.logger.Error("source panicked", "source", src.URL, "panic", r)
		}
		s.metrics.ObserveOutcome(out)
	}()

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	page, err := f.Fetch(fctx, src.URL)
	if err != nil {
		s.logger.Warn("fetch failed", "source", src.URL, "error", err)
		return provider.Failed(src, provider.KindOf(err), err.Error(), "")
	}
	rates, ok := s.extractor.Extract(page)
	if !ok {
		s.logger.Warn("no plausible rates", "source", src.URL)
		return provider.Failed(src, provider.KindParse, extract.FailureReason, page.Text)
	}
	return provider.Succeeded(src, rates, page.Text)
}
