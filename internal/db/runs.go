package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRunNotFound is returned when a run ID has no ledger row
var ErrRunNotFound = errors.New("run not found")

// CreateRun inserts a run in the running state
func (db *DB) CreateRun(ctx context.Context, run Run) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO extract_runs (id, index_url, window_begin, window_end, country_code, entries_selected, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.IndexURL, run.WindowBegin, run.WindowEnd, run.CountryCode, run.EntriesSelected, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordSkip stores a skipped archive for a run
func (db *DB) RecordSkip(ctx context.Context, skip Skip) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO extract_skips (run_id, position, url, reason, error)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, position) DO UPDATE SET reason = $4, error = $5, recorded_at = NOW()`,
		skip.RunID, skip.Position, skip.URL, skip.Reason, skip.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record skip: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with the given status
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, rows int, outputPath string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE extract_runs
		 SET status = $1, rows_written = $2, output_path = NULLIF($3, ''), completed_at = NOW()
		 WHERE id = $4`,
		status, rows, outputPath, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun loads a run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	var output *string
	err := db.pool.QueryRow(ctx,
		`SELECT id, index_url, window_begin, window_end, country_code, entries_selected,
		        status, rows_written, output_path, started_at, completed_at
		 FROM extract_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.IndexURL, &run.WindowBegin, &run.WindowEnd, &run.CountryCode, &run.EntriesSelected,
		&run.Status, &run.RowsWritten, &output, &run.StartedAt, &run.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if output != nil {
		run.OutputPath = *output
	}
	return &run, nil
}

// ListSkips returns the skipped archives of a run ordered by position
func (db *DB) ListSkips(ctx context.Context, runID uuid.UUID) ([]Skip, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, position, url, reason, error FROM extract_skips WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list skips: %w", err)
	}
	defer rows.Close()

	var skips []Skip
	for rows.Next() {
		var s Skip
		if err := rows.Scan(&s.RunID, &s.Position, &s.URL, &s.Reason, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan skip: %w", err)
		}
		skips = append(skips, s)
	}
	return skips, rows.Err()
}
