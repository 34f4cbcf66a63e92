// Package output writes the consolidated result table. Rows are streamed to a
// partial file as they are produced and the final path appears only on Commit.
package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonathan/gdelt-extract/internal/events"
)

// PartialSuffix is appended to the output path while a run is in progress.
const PartialSuffix = ".partial"

// FileSink appends tables to a CSV file without a header row.
type FileSink struct {
	path    string
	partial string
	file    *os.File
	writer  *csv.Writer
	rows    int
	closed  bool
}

// CreateFile opens a sink that will commit to path. Any stale partial file from
// an interrupted run is replaced.
func CreateFile(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	partial := path + PartialSuffix
	f, err := os.Create(partial)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &FileSink{
		path:    path,
		partial: partial,
		file:    f,
		writer:  csv.NewWriter(f),
	}, nil
}

// Append writes every record of t and flushes, so a crash loses at most the
// table being written.
func (s *FileSink) Append(t events.Table) error {
	if s.closed {
		return errors.New("append to closed sink")
	}
	for _, rec := range t.Records {
		if err := s.writer.Write(rec.Values()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	s.rows += t.Len()
	return nil
}

// Rows returns the number of rows appended so far.
func (s *FileSink) Rows() int {
	return s.rows
}

// Path returns the committed output path.
func (s *FileSink) Path() string {
	return s.path
}

// Commit closes the partial file and moves it to the output path.
func (s *FileSink) Commit() error {
	if s.closed {
		return errors.New("commit of closed sink")
	}
	s.closed = true

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("failed to flush rows: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.partial, err)
	}
	if err := os.Rename(s.partial, s.path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", s.partial, err)
	}
	return nil
}

// Abort discards the partial file. It is safe to call after Commit.
func (s *FileSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.file.Close()
	if err := os.Remove(s.partial); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", s.partial, err)
	}
	return nil
}

// MemorySink keeps appended tables in memory.
type MemorySink struct {
	tables []events.Table
	rows   int
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Append(t events.Table) error {
	m.tables = append(m.tables, t)
	m.rows += t.Len()
	return nil
}

func (m *MemorySink) Rows() int     { return m.rows }
func (m *MemorySink) Path() string  { return "" }
func (m *MemorySink) Commit() error { return nil }

func (m *MemorySink) Abort() error {
	m.tables = nil
	m.rows = 0
	return nil
}

// Table returns the concatenation of everything appended, in append order.
func (m *MemorySink) Table() events.Table {
	return events.Concat("result", m.tables...)
}

// WriteTable writes t as CSV to w.
func WriteTable(w io.Writer, t events.Table) error {
	cw := csv.NewWriter(w)
	for _, rec := range t.Records {
		if err := cw.Write(rec.Values()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable reads a result file written by FileSink or WriteTable.
func ReadTable(r io.Reader) (events.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var table events.Table
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return events.Table{}, fmt.Errorf("failed to read result row: %w", err)
		}
		table.Records = append(table.Records, events.Record{ID: row[0], Columns: row[1:]})
	}
	return table, nil
}

// ReadFile reads the result file at path.
func ReadFile(path string) (events.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return events.Table{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	table, err := ReadTable(f)
	if err != nil {
		return events.Table{}, err
	}
	table.Member = filepath.Base(path)
	return table, nil
}
