// Package masterlist retrieves and parses the GDELT 2.0 master file list, the
// plaintext index of every published 15-minute update.
package masterlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultURL is the upstream master file list endpoint.
	DefaultURL = "http://data.gdeltproject.org/gdeltv2/masterfilelist.txt"

	// FileName is the local name the master file list is saved under.
	FileName = "masterfilelist.txt"

	// exportMarker identifies event-export archives among all published files.
	exportMarker = "export.CSV"

	timestampLayout = "20060102150405"
)

var timestampPattern = regexp.MustCompile(`gdeltv2/(\d+)`)

// Entry is one export archive listed in the master file list.
type Entry struct {
	URL       string
	Timestamp time.Time
	Size      int64
	Checksum  string
}

// Parse reads index records of the form "<size> <md5> <url>" and returns the
// export entries in index order. Lines with fewer than three fields are ignored.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var entries []Entry
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		ref := fields[2]
		if !strings.Contains(ref, exportMarker) {
			continue
		}

		ts, err := parseTimestamp(line, ref)
		if err != nil {
			return nil, err
		}

		size, _ := strconv.ParseInt(fields[0], 10, 64)
		entries = append(entries, Entry{
			URL:       ref,
			Timestamp: ts,
			Size:      size,
			Checksum:  strings.ToLower(fields[1]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read master file list: %w", err)
	}

	return entries, nil
}

func parseTimestamp(line int, ref string) (time.Time, error) {
	match := timestampPattern.FindStringSubmatch(ref)
	if match == nil {
		return time.Time{}, &MalformedEntryError{Line: line, URL: ref, Message: "no timestamp after gdeltv2/"}
	}
	digits := match[1]
	if len(digits) != len(timestampLayout) {
		return time.Time{}, &MalformedEntryError{
			Line:    line,
			URL:     ref,
			Message: fmt.Sprintf("timestamp %q has %d digits, expected %d", digits, len(digits), len(timestampLayout)),
		}
	}
	ts, err := time.ParseInLocation(timestampLayout, digits, time.UTC)
	if err != nil {
		return time.Time{}, &MalformedEntryError{Line: line, URL: ref, Message: "invalid timestamp", Cause: err}
	}
	return ts, nil
}

// Load reads and parses a saved master file list.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open master file list %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Select returns the entries inside w, ordered by timestamp. Entries sharing a
// timestamp keep their index order.
func Select(entries []Entry, w Window) []Entry {
	selected := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if w.Contains(e.Timestamp) {
			selected = append(selected, e)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})
	return selected
}

// SelectWindow loads the master file list at path and returns the export entries
// timestamped within [begin, end], ascending.
func SelectWindow(path string, begin, end time.Time) ([]Entry, error) {
	entries, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Select(entries, Window{Begin: begin, End: end}), nil
}
