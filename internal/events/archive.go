package events

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"

	"github.com/jonathan/gdelt-extract/internal/fetch"
)

// FetchAndParse downloads the archive at url and parses every member. When
// checksum is non-empty the body's MD5 must match it.
func FetchAndParse(ctx context.Context, client *fetch.Client, url, checksum string) ([]Table, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	if checksum != "" {
		sum := md5.Sum(resp.Body)
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, checksum) {
			return nil, &CorruptArchiveError{
				URL:     url,
				Message: fmt.Sprintf("checksum mismatch: expected %s, got %s", checksum, got),
			}
		}
	}

	tables, err := DecodeArchive(resp.Body)
	if err != nil {
		var corruptErr *CorruptArchiveError
		if errors.As(err, &corruptErr) && corruptErr.URL == "" {
			corruptErr.URL = url
		}
		return nil, err
	}
	return tables, nil
}

// DecodeArchive opens data as a zip container and parses each member, in the
// order stored, into a Table.
func DecodeArchive(data []byte) ([]Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &CorruptArchiveError{Message: "not a zip container", Cause: err}
	}

	tables := make([]Table, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		table, err := readMember(f)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func readMember(f *zip.File) (Table, error) {
	rc, err := f.Open()
	if err != nil {
		return Table{}, &CorruptArchiveError{Message: fmt.Sprintf("cannot open member %s", f.Name), Cause: err}
	}
	defer func() { _ = rc.Close() }()

	// Decompress fully first so a broken stream is reported as a corrupt
	// archive rather than a malformed table.
	data, err := io.ReadAll(rc)
	if err != nil {
		return Table{}, &CorruptArchiveError{Message: fmt.Sprintf("cannot read member %s", f.Name), Cause: err}
	}
	return ParseTable(f.Name, bytes.NewReader(data))
}

// ParseTable reads headerless tab-separated rows. Column 0 becomes the record ID.
// The first row fixes the table width: later rows may be shorter but never
// wider. Blank lines are skipped.
func ParseTable(member string, r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, &MalformedTableError{Member: member, Message: "cannot read member", Cause: err}
	}
	if !utf8.Valid(data) {
		return Table{}, &MalformedTableError{Member: member, Line: invalidUTF8Line(data), Message: "not valid UTF-8 text"}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	table := Table{Member: member}
	width := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			return Table{}, &MalformedTableError{Member: member, Line: line, Message: "cannot parse row", Cause: err}
		}
		if width == 0 {
			width = len(row)
		} else if len(row) > width {
			line, _ := reader.FieldPos(0)
			return Table{}, &MalformedTableError{
				Member:  member,
				Line:    line,
				Message: fmt.Sprintf("expected at most %d fields, saw %d", width, len(row)),
			}
		}
		table.Records = append(table.Records, Record{ID: row[0], Columns: row[1:]})
	}
	return table, nil
}

func invalidUTF8Line(data []byte) int {
	line := 1
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			return line
		}
		if r == '\n' {
			line++
		}
		data = data[size:]
	}
	return line
}
