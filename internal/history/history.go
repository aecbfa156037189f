// Package history is the append-only store of completed scan results.
// Records are serialized into a sqlite table ordered by an append sequence,
// existing rows are never updated or deleted through this API.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/typesift/typesift/internal/model"
)

type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the store at dbPath. Use ":memory:"
// for an ephemeral store in tests.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer, serializing the pool keeps concurrent
	// appends from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS scan_results (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating scan_results table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists one result. Each result is written exactly once, a
// duplicate id is a caller bug and surfaces as ErrStorageWrite like any
// other write failure.
func (s *Store) Append(ctx context.Context, r model.ScanResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result %s: %v: %w", r.ID, err, model.ErrStorageWrite)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_results (id, created_at, payload) VALUES (?, ?, ?)`,
		r.ID, r.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"), string(payload),
	)
	if err != nil {
		return fmt.Errorf("appending result %s: %v: %w", r.ID, err, model.ErrStorageWrite)
	}
	return nil
}

// Get returns the result with the given id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.ScanResult, error) {
	var payload string
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM scan_results WHERE id = ?`, id)
	err := row.Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.ScanResult{}, fmt.Errorf("result %s: %w", id, model.ErrNotFound)
	case err != nil:
		return model.ScanResult{}, fmt.Errorf("reading result %s: %w", id, err)
	}

	var r model.ScanResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return model.ScanResult{}, fmt.Errorf("decoding result %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit results, most recently appended first. Ordering
// follows the append sequence, not the stored timestamps, so it stays
// correct under concurrent submission.
func (s *Store) List(ctx context.Context, limit int) ([]model.ScanResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM scan_results ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []model.ScanResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		var r model.ScanResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decoding result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total number of results ever appended.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_results`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting results: %w", err)
	}
	return n, nil
}
