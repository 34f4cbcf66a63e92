// Package db provides an optional PostgreSQL ledger of extraction runs. The
// ledger is write-only: runs are never resumed from it.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS extract_runs (
		id               UUID PRIMARY KEY,
		index_url        TEXT NOT NULL,
		window_begin     TIMESTAMPTZ NOT NULL,
		window_end       TIMESTAMPTZ NOT NULL,
		country_code     TEXT NOT NULL,
		entries_selected INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		rows_written     INTEGER NOT NULL DEFAULT 0,
		output_path      TEXT,
		started_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at     TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS extract_skips (
		run_id      UUID NOT NULL REFERENCES extract_runs(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		url         TEXT NOT NULL,
		reason      TEXT NOT NULL,
		error       TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, position)
	)`,
}

// EnsureSchema creates the ledger tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create ledger schema: %w", err)
		}
	}
	return nil
}
