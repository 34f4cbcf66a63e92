package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/gdelt-extract/internal/events"
	"github.com/jonathan/gdelt-extract/internal/output"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestFilterArchive_Stdout(t *testing.T) {
	archive := writeArchive(t, exportRow("1", "KOR"), exportRow("2", "USA"), exportRow("3", "KOR"))

	var buf bytes.Buffer
	rows, err := filterArchive(archive, "KOR", "", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1,"))
	assert.True(t, strings.HasPrefix(lines[1], "3,"))
}

func TestFilterArchive_File(t *testing.T) {
	archive := writeArchive(t, exportRow("1", "KOR"), exportRow("2", "USA"))
	out := filepath.Join(t.TempDir(), "nested", "kor.csv")

	rows, err := filterArchive(archive, "KOR", out, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	table, err := output.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "1", table.Records[0].ID)
	assert.Equal(t, "KOR", table.Records[0].Field(events.Actor1CountryCode))
}

func TestFilterArchive_NoMatchesWritesNothing(t *testing.T) {
	archive := writeArchive(t, exportRow("1", "USA"))
	out := filepath.Join(t.TempDir(), "kor.csv")

	_, err := filterArchive(archive, "KOR", out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no records matching KOR")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(out + output.PartialSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFilterArchive_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	writeFile(t, path, "not a zip")

	_, err := filterArchive(path, "KOR", "", &bytes.Buffer{})
	var corruptErr *events.CorruptArchiveError
	assert.ErrorAs(t, err, &corruptErr)
}

func TestFilterArchive_Missing(t *testing.T) {
	_, err := filterArchive("/nonexistent/archive.zip", "KOR", "", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read archive")
}

func TestFilterCommand(t *testing.T) {
	archive := writeArchive(t, exportRow("7", "KOR"))
	out := filepath.Join(t.TempDir(), "out.csv")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"filter", "--archive", archive, "--code", "KOR", "--out", out})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, stderr.String(), "1 rows matched KOR")

	_, err := os.Stat(out)
	assert.NoError(t, err)
}
