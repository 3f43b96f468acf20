package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"ratescraper/internal/provider"

	_ "modernc.org/sqlite"
)

// SQLite is a Log persisted to a SQLite database.
type SQLite struct {
	db          *sql.DB
	max, retain int
	mu          sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(ctx context.Context, path string, max, retain int) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	max, retain = bounds(max, retain)
	s := &SQLite{db: db, max: max, retain: retain}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL,
			source     TEXT NOT NULL,
			name       TEXT,
			origin     TEXT,
			buy_price  REAL NOT NULL,
			sell_price REAL NOT NULL,
			fetched_at INTEGER NOT NULL,
			raw        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_fetched ON quotes(fetched_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, q provider.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO quotes (id, source, name, origin, buy_price, sell_price, fetched_at, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Source, q.Name, string(q.Origin), q.BuyPrice, q.SellPrice, q.FetchedAt.UnixNano(), q.Raw,
	)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes`).Scan(&n); err != nil {
		return fmt.Errorf("count quotes: %w", err)
	}
	if n > s.max {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM quotes WHERE seq NOT IN (SELECT seq FROM quotes ORDER BY fetched_at DESC, seq DESC LIMIT ?)`,
			s.retain,
		)
		if err != nil {
			return fmt.Errorf("evict quotes: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Recent(ctx context.Context, n int) ([]provider.Quote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, name, origin, buy_price, sell_price, fetched_at, raw
		 FROM quotes ORDER BY fetched_at DESC, seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	out := make([]provider.Quote, 0, n)
	for rows.Next() {
		var (
			q                 provider.Quote
			name, origin, raw sql.NullString
			fetchedAt         int64
		)
		if err := rows.Scan(&q.ID, &q.Source, &name, &origin, &q.BuyPrice, &q.SellPrice, &fetchedAt, &raw); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		q.Name = name.String
		q.Origin = provider.Origin(origin.String)
		q.Raw = raw.String
		q.FetchedAt = time.Unix(0, fetchedAt).UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quotes: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
