package db

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusEmpty     = "empty"
	StatusFailed    = "failed"
)

// Run represents one extraction run
type Run struct {
	ID              uuid.UUID  `json:"id"`
	IndexURL        string     `json:"index_url"`
	WindowBegin     time.Time  `json:"window_begin"`
	WindowEnd       time.Time  `json:"window_end"`
	CountryCode     string     `json:"country_code"`
	EntriesSelected int        `json:"entries_selected"`
	Status          string     `json:"status"`
	RowsWritten     int        `json:"rows_written"`
	OutputPath      string     `json:"output_path,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Skip represents an archive that was skipped during a run
type Skip struct {
	RunID    uuid.UUID `json:"run_id"`
	Position int       `json:"position"`
	URL      string    `json:"url"`
	Reason   string    `json:"reason"`
	Error    string    `json:"error"`
}
