// Package pipeline orchestrates a GDELT extraction run: retrieve the master
// file list, select the archives in the window, filter each one by country
// code and consolidate the matches into a single CSV file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/gdelt-extract/internal/db"
	"github.com/jonathan/gdelt-extract/internal/events"
	"github.com/jonathan/gdelt-extract/internal/fetch"
	"github.com/jonathan/gdelt-extract/internal/logging"
	"github.com/jonathan/gdelt-extract/internal/masterlist"
	"github.com/jonathan/gdelt-extract/internal/metrics"
	"github.com/jonathan/gdelt-extract/internal/observability"
	"github.com/jonathan/gdelt-extract/internal/output"
)

// defaultProgressEvery is how many archives pass between info-level progress lines
const defaultProgressEvery = 100

// Sink receives filtered tables and produces the result file
type Sink interface {
	Append(t events.Table) error
	Rows() int
	Path() string
	Commit() error
	Abort() error
}

// Ledger records runs and skipped archives
type Ledger interface {
	CreateRun(ctx context.Context, run db.Run) error
	RecordSkip(ctx context.Context, skip db.Skip) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status string, rows int, outputPath string) error
}

// Publisher uploads the committed result file
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// ProgressEvent is emitted once per archive. Err is set when the archive was skipped.
type ProgressEvent struct {
	Position int
	Total    int
	URL      string
	Rows     int
	Err      error
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Options holds configuration for a run
type Options struct {
	IndexURL       string
	IndexPath      string // where the master file list is saved
	Window         masterlist.Window
	CountryCode    string
	OutputPath     string
	VerifyChecksum bool

	Client *fetch.Client
	Sink   Sink // defaults to a file sink at OutputPath
	Logger *slog.Logger

	// Optional hooks
	Printer       *observability.Printer
	Metrics       *metrics.Metrics
	Ledger        Ledger
	Publisher     Publisher
	OnProgress    ProgressCallback
	ProgressEvery int
}

// Skip describes an archive that was left out of the result
type Skip struct {
	Position int
	URL      string
	Reason   string
	Err      error
}

// Result summarizes a run
type Result struct {
	RunID     uuid.UUID
	Selected  int
	Processed int
	Skipped   []Skip
	Scanned   int
	Rows      int
	Output    string
	Published string
	Started   time.Time
	Finished  time.Time
}

// Summary converts the result for console output
func (r *Result) Summary() observability.RunSummary {
	s := observability.RunSummary{
		RunID:     r.RunID.String(),
		Selected:  r.Selected,
		Processed: r.Processed,
		Rows:      r.Rows,
		Output:    r.Output,
		Published: r.Published,
		Duration:  r.Finished.Sub(r.Started),
	}
	for _, skip := range r.Skipped {
		s.Skipped = append(s.Skipped, observability.SkippedItem{Position: skip.Position, URL: skip.URL, Reason: skip.Reason})
	}
	return s
}

type runner struct {
	opts   Options
	log    *slog.Logger
	result *Result
	sink   Sink
}

// Run executes one extraction. Archives that cannot be downloaded, decoded or
// parsed are skipped; any other error aborts the run and removes partial
// output. The returned Result is non-nil even when err is not.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Client == nil {
		opts.Client = fetch.NewClient(nil)
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = defaultProgressEvery
	}

	r := &runner{
		opts:   opts,
		result: &Result{RunID: uuid.New(), Started: time.Now()},
	}
	r.log = opts.Logger.With("run_id", r.result.RunID.String())

	err := r.run(ctx)
	r.result.Finished = time.Now()
	if opts.Metrics != nil {
		opts.Metrics.ObserveRun(r.result.Started, r.result.Finished, err == nil)
	}
	return r.result, err
}

func (r *runner) run(ctx context.Context) error {
	opts := r.opts

	// Step 1: Prepare directories, then retrieve the master file list
	dirs := []string{filepath.Dir(opts.IndexPath)}
	if opts.Sink == nil || opts.OutputPath != "" {
		dirs = append(dirs, filepath.Dir(opts.OutputPath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &StageError{Stage: StageIndex, Cause: err}
		}
	}
	r.log.Info("retrieving master file list", "url", opts.IndexURL, "path", opts.IndexPath)
	n, err := masterlist.Fetch(ctx, opts.Client, opts.IndexURL, opts.IndexPath)
	if err != nil {
		return &StageError{Stage: StageIndex, Cause: err}
	}
	r.log.Info("retrieved master file list", "bytes", n)

	// Step 2: Select archives in the window
	entries, err := masterlist.SelectWindow(opts.IndexPath, opts.Window.Begin, opts.Window.End)
	if err != nil {
		return &StageError{Stage: StageSelect, Cause: err}
	}
	r.result.Selected = len(entries)
	if opts.Metrics != nil {
		opts.Metrics.EntriesSelected.Set(float64(len(entries)))
	}
	r.log.Info("selected archives",
		"count", len(entries),
		"window", opts.Window.String(),
		"country_code", opts.CountryCode,
		"started", r.result.Started.Format(time.RFC3339))
	if opts.Printer != nil {
		opts.Printer.PrintWindow(observability.WindowSummary{
			IndexURL:    opts.IndexURL,
			Window:      opts.Window,
			CountryCode: opts.CountryCode,
			Selected:    len(entries),
		})
	}

	if opts.Ledger != nil {
		err := opts.Ledger.CreateRun(ctx, db.Run{
			ID:              r.result.RunID,
			IndexURL:        opts.IndexURL,
			WindowBegin:     opts.Window.Begin,
			WindowEnd:       opts.Window.End,
			CountryCode:     opts.CountryCode,
			EntriesSelected: len(entries),
		})
		if err != nil {
			return &StageError{Stage: StageLedger, Cause: err}
		}
	}

	// Step 3: Filter every archive into the sink
	r.sink = opts.Sink
	if r.sink == nil {
		sink, err := output.CreateFile(opts.OutputPath)
		if err != nil {
			return r.fail(ctx, &StageError{Stage: StageOutput, Cause: err})
		}
		r.sink = sink
	}

	for i, entry := range entries {
		position := i + 1
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, err)
		}

		rows, err := r.processEntry(ctx, entry)
		if err != nil {
			if !events.IsRecoverable(err) {
				return r.fail(ctx, err)
			}
			if err := r.skip(ctx, position, entry, err); err != nil {
				return r.fail(ctx, err)
			}
			r.emit(ProgressEvent{Position: position, Total: len(entries), URL: entry.URL, Err: err})
			continue
		}

		r.result.Processed++
		if opts.Metrics != nil {
			opts.Metrics.EntriesProcessed.Inc()
		}
		r.log.Debug("processed archive", "position", position, "total", len(entries), "url", entry.URL, "rows", rows)
		if position%opts.ProgressEvery == 0 {
			r.log.Info("progress", "position", position, "total", len(entries), "rows", r.sink.Rows())
		}
		r.emit(ProgressEvent{Position: position, Total: len(entries), URL: entry.URL, Rows: rows})
	}

	// Step 4: Commit the result
	r.result.Rows = r.sink.Rows()
	if r.result.Rows == 0 {
		if err := r.sink.Abort(); err != nil {
			r.log.Warn("failed to discard partial output", "error", err)
		}
		r.complete(ctx, db.StatusEmpty)
		r.log.Warn("no matching records", "country_code", opts.CountryCode, "skipped", len(r.result.Skipped))
		return ErrEmptyResult
	}

	if err := r.sink.Commit(); err != nil {
		return r.fail(ctx, &StageError{Stage: StageOutput, Cause: err})
	}
	r.result.Output = r.sink.Path()
	r.log.Info("wrote result", "path", r.result.Output, "rows", r.result.Rows,
		"processed", r.result.Processed, "skipped", len(r.result.Skipped))

	// Step 5: Publish
	if opts.Publisher != nil && r.result.Output != "" {
		location, err := opts.Publisher.Publish(ctx, r.result.Output)
		if err != nil {
			r.complete(ctx, db.StatusFailed)
			return &StageError{Stage: StagePublish, Cause: err}
		}
		r.result.Published = location
		r.log.Info("published result", "location", location)
	}

	r.complete(ctx, db.StatusCompleted)
	return nil
}

// processEntry downloads, decodes and filters one archive. Nothing reaches the
// sink unless every member parsed.
func (r *runner) processEntry(ctx context.Context, entry masterlist.Entry) (int, error) {
	checksum := ""
	if r.opts.VerifyChecksum {
		checksum = entry.Checksum
	}

	tables, err := events.FetchAndParse(ctx, r.opts.Client, entry.URL, checksum)
	if err != nil {
		return 0, err
	}

	rows := 0
	for _, table := range tables {
		filtered := events.FilterByCode(table, r.opts.CountryCode)
		if r.opts.Metrics != nil {
			r.opts.Metrics.RowsScanned.Add(float64(table.Len()))
			r.opts.Metrics.RowsRetained.Add(float64(filtered.Len()))
		}
		r.result.Scanned += table.Len()
		if filtered.Len() == 0 {
			continue
		}
		if err := r.sink.Append(filtered); err != nil {
			return rows, &StageError{Stage: StageOutput, Cause: err}
		}
		rows += filtered.Len()
	}
	return rows, nil
}

func (r *runner) skip(ctx context.Context, position int, entry masterlist.Entry, cause error) error {
	reason := metrics.Reason(cause)
	r.result.Skipped = append(r.result.Skipped, Skip{Position: position, URL: entry.URL, Reason: reason, Err: cause})
	r.log.Warn("skipping archive", "position", position, "url", entry.URL, "reason", reason, "error", cause)

	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveSkip(cause)
	}
	if r.opts.Ledger != nil {
		err := r.opts.Ledger.RecordSkip(ctx, db.Skip{
			RunID:    r.result.RunID,
			Position: position,
			URL:      entry.URL,
			Reason:   reason,
			Error:    cause.Error(),
		})
		if err != nil {
			return &StageError{Stage: StageLedger, Cause: err}
		}
	}
	return nil
}

// fail discards partial output and marks the run failed in the ledger
func (r *runner) fail(ctx context.Context, err error) error {
	if r.sink != nil {
		if abortErr := r.sink.Abort(); abortErr != nil {
			r.log.Warn("failed to discard partial output", "error", abortErr)
		}
	}
	r.complete(ctx, db.StatusFailed)

	var stageErr *StageError
	if !errors.As(err, &stageErr) && !errors.Is(err, ctx.Err()) {
		err = &StageError{Stage: StageArchive, Cause: err}
	}
	r.log.Error("run aborted", "error", err)
	return err
}

// complete records the final status. The ledger is written even when ctx is
// cancelled so an interrupted run is not left in the running state.
func (r *runner) complete(ctx context.Context, status string) {
	if r.opts.Ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	rows := 0
	if r.sink != nil {
		rows = r.sink.Rows()
	}
	if err := r.opts.Ledger.CompleteRun(ctx, r.result.RunID, status, rows, r.result.Output); err != nil {
		r.log.Warn("failed to complete run in ledger", "status", status, "error", err)
	}
}

func (r *runner) emit(event ProgressEvent) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(event)
	}
}

// String renders a skip for logs and console output
func (s Skip) String() string {
	return fmt.Sprintf("#%d %s: %s", s.Position, s.URL, s.Reason)
}
