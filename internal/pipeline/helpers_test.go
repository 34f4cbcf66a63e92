package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/gdelt-extract/internal/db"
	"github.com/jonathan/gdelt-extract/internal/events"
	"github.com/jonathan/gdelt-extract/internal/masterlist"
)

const exportWidth = 61

// row builds a tab-separated export row. code lands in ActionGeo_CountryCode.
func row(id, code string) string {
	cols := make([]string, exportWidth)
	cols[0] = id
	for i := 1; i < exportWidth; i++ {
		cols[i] = "c" + strconv.Itoa(i)
	}
	for _, f := range events.CodeFields {
		cols[f] = ""
	}
	cols[events.ActionGeoCountryCode] = code
	return strings.Join(cols, "\t")
}

func zipRows(t *testing.T, name string, rows ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(strings.Join(rows, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type archive struct {
	stamp    string // 14-digit timestamp
	body     []byte // nil serves 404
	checksum string // overrides the computed MD5 when set
}

// gdeltServer serves a master file list for the given archives plus the archives.
type gdeltServer struct {
	*httptest.Server
	indexType string

	mu       sync.Mutex
	requests []string
}

func newGDELTServer(t *testing.T, archives ...archive) *gdeltServer {
	t.Helper()
	s := &gdeltServer{indexType: "text/plain"}

	bodies := make(map[string][]byte)
	var index strings.Builder
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()

		if r.URL.Path == "/gdeltv2/masterfilelist.txt" {
			w.Header().Set("Content-Type", s.indexType)
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(index.String()))
			}
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok || body == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)

	for _, a := range archives {
		path := fmt.Sprintf("/gdeltv2/%s.export.CSV.zip", a.stamp)
		bodies[path] = a.body
		sum := md5.Sum(a.body)
		checksum := hex.EncodeToString(sum[:])
		if a.checksum != "" {
			checksum = a.checksum
		}
		fmt.Fprintf(&index, "%d %s %s%s\n", len(a.body), checksum, s.URL, path)
		fmt.Fprintf(&index, "%d %s %s/gdeltv2/%s.mentions.CSV.zip\n", 10, checksum, s.URL, a.stamp)
	}
	return s
}

func (s *gdeltServer) indexURL() string {
	return s.URL + "/gdeltv2/masterfilelist.txt"
}

func (s *gdeltServer) archiveURL(stamp string) string {
	return fmt.Sprintf("%s/gdeltv2/%s.export.CSV.zip", s.URL, stamp)
}

func (s *gdeltServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if strings.HasSuffix(r, path) {
			n++
		}
	}
	return n
}

func window2016(t *testing.T) masterlist.Window {
	t.Helper()
	w, err := masterlist.ParseWindow("2016-01-01", "2016-12-31")
	require.NoError(t, err)
	return w
}

type fakeLedger struct {
	runs      []db.Run
	skips     []db.Skip
	completed []string
	rows      int
	output    string
	createErr error
	skipErr   error
}

func (f *fakeLedger) CreateRun(_ context.Context, run db.Run) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeLedger) RecordSkip(_ context.Context, skip db.Skip) error {
	if f.skipErr != nil {
		return f.skipErr
	}
	f.skips = append(f.skips, skip)
	return nil
}

func (f *fakeLedger) CompleteRun(_ context.Context, _ uuid.UUID, status string, rows int, output string) error {
	f.completed = append(f.completed, status)
	f.rows = rows
	f.output = output
	return nil
}

type fakePublisher struct {
	paths []string
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	return "s3://results/" + path[strings.LastIndex(path, "/")+1:], nil
}

// failingSink accepts nothing
type failingSink struct {
	aborted bool
}

func (f *failingSink) Append(events.Table) error { return errors.New("disk full") }
func (f *failingSink) Rows() int                 { return 0 }
func (f *failingSink) Path() string              { return "" }
func (f *failingSink) Commit() error             { return nil }
func (f *failingSink) Abort() error {
	f.aborted = true
	return nil
}
