package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/gdelt-extract/internal/config"
	"github.com/jonathan/gdelt-extract/internal/events"
)

// exportRow builds a 61-column export row with code in Actor1CountryCode
func exportRow(id, code string) string {
	cols := make([]string, 61)
	cols[0] = id
	for i := 1; i < len(cols); i++ {
		cols[i] = "c" + strconv.Itoa(i)
	}
	for _, f := range events.CodeFields {
		cols[f] = ""
	}
	cols[events.Actor1CountryCode] = code
	return strings.Join(cols, "\t")
}

func zipBytes(t *testing.T, member string, rows ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(member)
	require.NoError(t, err)
	_, err = w.Write([]byte(strings.Join(rows, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "20160101000000.export.CSV.zip")
	require.NoError(t, os.WriteFile(path, zipBytes(t, "20160101000000.export.CSV", rows...), 0644))
	return path
}

// newIndexServer serves a master file list and the archives it names
func newIndexServer(t *testing.T, archives map[string][]byte) *httptest.Server {
	t.Helper()
	var index strings.Builder
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gdeltv2/masterfilelist.txt" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(index.String()))
			return
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/gdeltv2/"), ".export.CSV.zip")
		body, ok := archives[stamp]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	for stamp, body := range archives {
		fmt.Fprintf(&index, "%d 0123456789abcdef0123456789abcdef %s/gdeltv2/%s.export.CSV.zip\n", len(body), server.URL, stamp)
	}
	return server
}

func testConfig(t *testing.T, indexURL string) config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.IndexURL = indexURL
	cfg.LogLevel = "error"
	require.NoError(t, cfg.Validate())
	return cfg
}
