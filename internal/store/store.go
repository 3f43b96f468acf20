// Package store keeps a bounded, append-mostly history of successful quotes.
package store

import (
	"context"
	"log/slog"

	"ratescraper/internal/provider"
)

// Default capacity: once more than DefaultMax entries exist the log is cut
// back to the DefaultRetain newest.
const (
	DefaultMax    = 100
	DefaultRetain = 50
)

// Log is a bounded quote log.
type Log interface {
	Append(ctx context.Context, q provider.Quote) error
	// Recent returns up to n quotes, newest fetched_at first and, for equal
	// timestamps, most recently appended first.
	Recent(ctx context.Context, n int) ([]provider.Quote, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Store validates quotes and writes them to a Log. Write failures are
// logged, never returned, so persistence can't stall the request path.
type Store struct {
	log    Log
	logger *slog.Logger
}

func New(l Log, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: l, logger: logger}
}

func (s *Store) Insert(ctx context.Context, q provider.Quote) {
	if err := q.Validate(); err != nil {
		s.logger.Warn("rejecting quote", "error", err)
		return
	}
	if err := s.log.Append(ctx, q); err != nil {
		s.logger.Error("store quote", "source", q.Source, "error", err)
	}
}

func (s *Store) Recent(ctx context.Context, n int) ([]provider.Quote, error) {
	if n <= 0 {
		return []provider.Quote{}, nil
	}
	return s.log.Recent(ctx, n)
}

func (s *Store) Len(ctx context.Context) (int, error) { return s.log.Len(ctx) }

func (s *Store) Close() error { return s.log.Close() }
