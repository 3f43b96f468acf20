package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"ratescraper/internal/provider"
	"ratescraper/internal/provider/cache"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeScraper struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (provider.Batch, error)
}

func (f *fakeScraper) Scrape(ctx context.Context, _ []provider.Source) (provider.Batch, error) {
	f.calls.Add(1)
	return f.fn(ctx)
}

func okBatch(buy float64) provider.Batch {
	return provider.Batch{
		Origin: provider.OriginScrape,
		Outcomes: []provider.Outcome{
			provider.Succeeded(provider.Source{Name: "a", URL: "https://a"}, provider.Rates{BuyPrice: buy, SellPrice: buy + 20}, ""),
			provider.Failed(provider.Source{Name: "b", URL: "https://b"}, provider.KindParse, "could not parse numeric rates", "junk"),
		},
	}
}

type recordingSink struct {
	mu     sync.Mutex
	quotes []provider.Quote
}

func (s *recordingSink) Insert(_ context.Context, q provider.Quote) {
	s.mu.Lock()
	s.quotes = append(s.quotes, q)
	s.mu.Unlock()
}

func TestFreshWithinTTLDoesNotRescrape(t *testing.T) {
	t.Parallel()

	// Arrange
	clk := newClock()
	s := &fakeScraper{fn: func(context.Context) (provider.Batch, error) { return okBatch(1000), nil }}
	c := cache.New(s, nil, cache.Config{}, cache.WithClock(clk.Now))

	// Act
	first := c.EnsureFresh(t.Context(), time.Minute)
	clk.Add(30 * time.Second)
	second := c.EnsureFresh(t.Context(), time.Minute)

	// Assert
	require.Equal(t, int32(1), s.calls.Load())
	require.Same(t, first, second)
	require.False(t, first.Stale)
	require.Len(t, first.Batch.Outcomes, 2)
}

func TestExpiredTriggersRefresh(t *testing.T) {
	t.Parallel()

	clk := newClock()
	var buy atomic.Int32
	buy.Store(1000)
	s := &fakeScraper{fn: func(context.Context) (provider.Batch, error) { return okBatch(float64(buy.Add(1))), nil }}
	c := cache.New(s, nil, cache.Config{}, cache.WithClock(clk.Now))

	first := c.EnsureFresh(t.Context(), time.Minute)
	clk.Add(61 * time.Second)
	second := c.EnsureFresh(t.Context(), time.Minute)

	require.Equal(t, int32(2), s.calls.Load())
	require.Equal(t, 1001.0, first.Batch.Outcomes[0].Data.BuyPrice)
	require.Equal(t, 1002.0, second.Batch.Outcomes[0].Data.BuyPrice)
	require.True(t, second.FetchedAt.After(first.FetchedAt))
}

func TestConcurrentCallersShareOneScrape(t *testing.T) {
	t.Parallel()

	// Arrange: a scrape that blocks until released
	release := make(chan struct{})
	s := &fakeScraper{fn: func(context.Context) (provider.Batch, error) {
		<-release
		return okBatch(1000), nil
	}}
	c := cache.New(s, nil, cache.Config{}, cache.WithClock(newClock().Now))

	// Act
	const callers = 16
	var wg sync.WaitGroup
	got := make([]*cache.Snapshot, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = c.EnsureFresh(context.Background(), time.Minute)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// Assert
	require.Equal(t, int32(1), s.calls.Load())
	for _, snap := range got {
		require.Same(t, got[0], snap)
	}
}

func TestFailedRefreshServesStale(t *testing.T) {
	t.Parallel()

	clk := newClock()
	var fail atomic.Bool
	s := &fakeScraper{fn: func(context.Context) (provider.Batch, error) {
		if fail.Load() {
			return provider.Batch{}, errors.New("browser crashed")
		}
		return okBatch(1000), nil
	}}
	c := cache.New(s, nil, cache.Config{}, cache.WithClock(clk.Now))

	first := c.EnsureFresh(t.Context(), time.Minute)
	fail.Store(true)
	clk.Add(10 * time.Minute)
	second := c.EnsureFresh(t.Context(), time.Minute)

	require.Equal(t, int32(2), s.calls.Load())
	require.True(t, second.Stale)
	require.Equal(t, first.Batch, second.Batch)
	require.Equal(t, first.FetchedAt, second.FetchedAt)
	require.True(t, c.Peek().Stale)
}

func TestFailedFirstRefreshIsEmpty(t *testing.T) {
	t.Parallel()

	s := &fakeScraper{fn: func(context.Context) (provider.Batch, error) {
		return provider.Batch{}, errors.New("boom")
	}}
	c := cache.New(s, nil, cache.Config{})

	snap := c.EnsureFresh(t.Context(), time.Minute)

	require.True(t, snap.Empty())
	require.NotNil(t, snap.Batch.Outcomes)
	require.Empty(t, snap.Batch.Outcomes)
}

func TestBatchTimeoutCancelsScrape(t *testing.T) {
	t.Parallel()

	canceled := make(chan struct{})
	s := &fakeScraper{fn: func(ctx context.Context) (provider.Batch, error) {
		<-ctx.Done()
		close(canceled)
		return provider.Batch{}, ctx.Err()
	}}
	c := cache.New(s, nil, cache.Config{BatchTimeout: 30 * time.Millisecond})

	start := time.Now()
	snap := c.EnsureFresh(t.Context(), time.Minute)

	require.True(t, snap.Empty())
	require.Less(t, time.Since(start), 2*time.Second)
	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("scrape context was not canceled")
	}
}

func TestCallerCancelDoesNotStopRefresh(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := &fakeScraper{fn: func(ctx context.Context) (provider.Batch, error) {
		select {
		case <-release:
			return okBatch(1000), nil
		case <-ctx.Done():
			return provider.Batch{}, ctx.Err()
		}
	}}
	c := cache.New(s, nil, cache.Config{}, cache.WithClock(newClock().Now))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	snap := c.EnsureFresh(ctx, time.Minute)
	require.True(t, snap.Empty())

	close(release)
	require.Eventually(t, func() bool { return !c.Peek().Empty() }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), s.calls.Load())
}

func TestRefreshPersistsSuccessfulOutcomes(t *testing.T) {
	t.Parallel()

	clk := newClock()
	sink := &recordingSink{}
	s := &fakeScraper{fn: func(context.Context) (provider.Batch, error) { return okBatch(1000), nil }}
	c := cache.New(s, nil, cache.Config{}, cache.WithClock(clk.Now), cache.WithSinks(sink))

	snap := c.EnsureFresh(t.Context(), time.Minute)
	c.EnsureFresh(t.Context(), time.Minute)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.quotes, 1)
	q := sink.quotes[0]
	require.Equal(t, "https://a", q.Source)
	require.Equal(t, 1000.0, q.BuyPrice)
	require.Equal(t, 1020.0, q.SellPrice)
	require.True(t, q.FetchedAt.Equal(snap.FetchedAt))
	require.NotEmpty(t, q.ID)
}

func TestFetchedAtNeverDecreases(t *testing.T) {
	t.Parallel()

	clk := newClock()
	s := &fakeScraper{fn: func(context.Context) (provider.Batch, error) { return okBatch(1000), nil }}
	c := cache.New(s, nil, cache.Config{}, cache.WithClock(clk.Now))

	first := c.EnsureFresh(t.Context(), time.Minute)
	clk.Add(-time.Hour)
	// The snapshot now looks an hour in the future; a ttl below that forces a refresh.
	second := c.EnsureFresh(t.Context(), -2*time.Hour)

	require.Equal(t, int32(2), s.calls.Load())
	require.False(t, second.FetchedAt.Before(first.FetchedAt))
}
