// Package ratelimit throttles page fetches so scraping stays polite towards
// the rate sites.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"ratescraper/internal/provider"
)

// Limiter gates a single call.
type Limiter interface {
	Wait(ctx context.Context) error
}

// MinInterval enforces a minimum time between calls. Concurrent callers
// queue up behind each other, or return early if ctx is canceled.
type MinInterval struct {
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (m *MinInterval) Wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	m.mu.Lock()
	now := time.Now()
	slot := m.next
	if slot.Before(now) {
		slot = now
	}
	m.next = slot.Add(m.Interval)
	m.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Mechanism wraps another mechanism and gates every Fetch of its sessions.
// The limiter is shared across batches.
type Mechanism struct {
	M       provider.Mechanism
	Limiter Limiter
}

func (m *Mechanism) Name() string { return m.M.Name() }

func (m *Mechanism) Open(ctx context.Context) (provider.Session, error) {
	s, err := m.M.Open(ctx)
	if err != nil {
		return nil, err
	}
	if m.Limiter == nil {
		return s, nil
	}
	return &session{Session: s, limiter: m.Limiter}, nil
}

type session struct {
	provider.Session
	limiter Limiter
}

func (s *session) Fetch(ctx context.Context, url string) (provider.Page, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return provider.Page{}, &provider.FetchError{Kind: provider.KindTimeout, URL: url, Err: err}
	}
	return s.Session.Fetch(ctx, url)
}

// Wrap prefers a token bucket when rpm is set and falls back to a minimum
// interval. With neither set m is returned unchanged.
func Wrap(m provider.Mechanism, rpm, burst int, interval time.Duration) provider.Mechanism {
	switch {
	case rpm > 0:
		return &Mechanism{M: m, Limiter: PerMinute(rpm, burst)}
	case interval > 0:
		return &Mechanism{M: m, Limiter: &MinInterval{Interval: interval}}
	}
	return m
}
