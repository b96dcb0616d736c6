// Copyright 2024-2026 Aiku AI

// Package ledger records boost outcomes in a SQLite database.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome is the result of one boost attempt.
type Outcome string

const (
	OutcomeBoosted Outcome = "boosted"
	OutcomeFailed  Outcome = "failed"
	OutcomeDryRun  Outcome = "dry_run"
)

// Entry is one row of the ledger.
type Entry struct {
	ID        int64     `json:"id"`
	StatusID  string    `json:"status_id"`
	OriginURL string    `json:"origin_url,omitempty"`
	PublicURL string    `json:"public_url,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the SQLite-backed ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The supervisor and the admin API share the store.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an entry. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return errors.New("ledger is not initialized")
	}
	if strings.TrimSpace(e.StatusID) == "" {
		return errors.New("status_id is required")
	}
	switch e.Outcome {
	case OutcomeBoosted, OutcomeFailed, OutcomeDryRun:
	default:
		return fmt.Errorf("unknown outcome %q", e.Outcome)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boosts(status_id, origin_url, public_url, outcome, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		e.StatusID, e.OriginURL, e.PublicURL, string(e.Outcome), e.Error,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert boost: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger is not initialized")
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status_id, origin_url, public_url, outcome, error, created_at
		 FROM boosts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query boosts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			outcome   string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.StatusID, &e.OriginURL, &e.PublicURL, &outcome, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan boost: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns the number of entries per outcome.
func (s *Store) CountByOutcome(ctx context.Context) (map[Outcome]int, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM boosts GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count boosts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}
