package store

import (
	"context"
	"sort"
	"sync"

	"ratescraper/internal/provider"
)

type entry struct {
	seq uint64
	q   provider.Quote
}

// Memory is an in-process Log.
type Memory struct {
	max, retain int

	mu      sync.RWMutex
	seq     uint64
	entries []entry
}

func NewMemory(max, retain int) *Memory {
	max, retain = bounds(max, retain)
	return &Memory{max: max, retain: retain}
}

func (m *Memory) Append(_ context.Context, q provider.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries = append(m.entries, entry{seq: m.seq, q: q})
	if len(m.entries) > m.max {
		sort.Slice(m.entries, func(i, j int) bool { return newer(m.entries[i], m.entries[j]) })
		kept := make([]entry, m.retain)
		copy(kept, m.entries)
		m.entries = kept
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, n int) ([]provider.Quote, error) {
	m.mu.RLock()
	es := make([]entry, len(m.entries))
	copy(es, m.entries)
	m.mu.RUnlock()

	sort.Slice(es, func(i, j int) bool { return newer(es[i], es[j]) })
	if n > len(es) {
		n = len(es)
	}
	out := make([]provider.Quote, n)
	for i := range out {
		out[i] = es[i].q
	}
	return out, nil
}

// newer orders by fetched_at, then by insertion for equal timestamps.
// Recent and eviction both use it.
func newer(a, b entry) bool {
	if !a.q.FetchedAt.Equal(b.q.FetchedAt) {
		return a.q.FetchedAt.After(b.q.FetchedAt)
	}
	return a.seq > b.seq
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Close() error { return nil }

func bounds(max, retain int) (int, int) {
	if max <= 0 {
		max = DefaultMax
	}
	if retain <= 0 {
		retain = DefaultRetain
	}
	if retain > max {
		retain = max
	}
	return max, retain
}
