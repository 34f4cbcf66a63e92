// Package observability provides formatted console output for the CLI.
package observability

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/jonathan/gdelt-extract/internal/masterlist"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// WindowSummary describes the work selected for a run
type WindowSummary struct {
	IndexURL    string
	Window      masterlist.Window
	CountryCode string
	Selected    int
}

// SkippedItem is an archive that was skipped during a run
type SkippedItem struct {
	Position int
	URL      string
	Reason   string
}

// RunSummary describes a finished run
type RunSummary struct {
	RunID     string
	Selected  int
	Processed int
	Skipped   []SkippedItem
	Rows      int
	Output    string
	Published string
	Duration  time.Duration
}

// Printer handles formatted console output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintWindow outputs the time window and the number of archives selected.
func (p *Printer) PrintWindow(s WindowSummary) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Index:    %s\n", path.Base(s.IndexURL)))
	sb.WriteString(fmt.Sprintf("Begin:    %s\n", s.Window.Begin.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("End:      %s\n", s.Window.End.Format(time.RFC3339)))
	if s.CountryCode != "" {
		sb.WriteString(fmt.Sprintf("Code:     %s\n", s.CountryCode))
	}
	sb.WriteString(fmt.Sprintf("Selected: %d archives", s.Selected))

	p.printBox("SELECTED WINDOW", sb.String())
}

// PrintWorklist writes one line per entry: timestamp, size and URL. It is not
// boxed so the output can be piped.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintWorklist(entries []masterlist.Entry) {
	for _, e := range entries {
		fmt.Fprintf(p.out, "%s\t%d\t%s\n", e.Timestamp.Format(time.RFC3339), e.Size, e.URL)
	}
}

// PrintSummary outputs the result of a run, including up to maxItemsToShow
// skipped archives.
func (p *Printer) PrintSummary(s RunSummary) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:       %s\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Archives:  %d/%d processed, %d skipped\n", s.Processed, s.Selected, len(s.Skipped)))
	sb.WriteString(fmt.Sprintf("Rows:      %d\n", s.Rows))
	if s.Output != "" {
		sb.WriteString(fmt.Sprintf("Output:    %s\n", path.Base(s.Output)))
	} else {
		sb.WriteString("Output:    (none)\n")
	}
	if s.Published != "" {
		sb.WriteString(fmt.Sprintf("Published: %s\n", s.Published))
	}
	sb.WriteString(fmt.Sprintf("Duration:  %s", s.Duration.Round(time.Millisecond)))

	if len(s.Skipped) > 0 {
		sb.WriteString("\n\nSkipped:\n")
		count := min(len(s.Skipped), maxItemsToShow)
		for i := 0; i < count; i++ {
			skip := s.Skipped[i]
			sb.WriteString(fmt.Sprintf("  #%d %s (%s)\n", skip.Position, path.Base(skip.URL), skip.Reason))
		}
		if len(s.Skipped) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(s.Skipped)-maxItemsToShow))
		}
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}
