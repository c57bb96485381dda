// Package store persists the materialized view of the canvas program in
// SQLite: pixel placement history, shard ownership, per-user counters,
// global aggregates, and the signature dedup table that makes event
// application idempotent.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// LocationUnknown is written when enrichment gives up on a row permanently.
// The repair scan treats it the same as a missing name.
const LocationUnknown = "Unknown"

type Config struct {
	Logger *slog.Logger

	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Path == "" {
		return errors.New("database path is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	db  *sql.DB
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = filepath.Clean(dsn) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// The apply transaction is the unit of mutual exclusion; a single
	// writer connection keeps SQLite from returning busy errors under
	// concurrent applies.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		log: cfg.Logger,
		db:  db,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// HasSignature reports whether the given transaction has already been fully
// applied. Backfill uses this to skip fetching transaction detail for
// signatures the live subscriber already covered.
func (s *Store) HasSignature(ctx context.Context, signature string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM processed_sigs WHERE signature = ?`, signature,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query processed_sigs: %w", err)
	}
	return n > 0, nil
}

// LastSignature returns the backfill watermark for a source label, or ""
// when no completed run has recorded one.
func (s *Store) LastSignature(ctx context.Context, label string) (string, error) {
	var sig string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_signature FROM sync_state WHERE label = ?`, label,
	).Scan(&sig)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query sync_state: %w", err)
	}
	return sig, nil
}

// SetLastSignature advances the backfill watermark for a source label.
func (s *Store) SetLastSignature(ctx context.Context, label, signature string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (label, last_signature, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET last_signature = excluded.last_signature, updated_at = excluded.updated_at`,
		label, signature, now.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync_state: %w", err)
	}
	return nil
}
