package events

import (
	"errors"
	"fmt"

	"github.com/jonathan/gdelt-extract/internal/fetch"
)

// CorruptArchiveError is returned when a downloaded body cannot be opened as a
// zip container, a member cannot be read, or the body fails its checksum.
type CorruptArchiveError struct {
	URL     string
	Message string
	Cause   error
}

func (e *CorruptArchiveError) Error() string {
	where := e.URL
	if where == "" {
		where = "(in memory)"
	}
	if e.Cause != nil {
		return fmt.Sprintf("corrupt archive %s: %s: %v", where, e.Message, e.Cause)
	}
	return fmt.Sprintf("corrupt archive %s: %s", where, e.Message)
}

func (e *CorruptArchiveError) Unwrap() error {
	return e.Cause
}

// MalformedTableError is returned when an archive member is not parseable as
// tab-separated text.
type MalformedTableError struct {
	Member  string
	Line    int
	Message string
	Cause   error
}

func (e *MalformedTableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed table %s at line %d: %s: %v", e.Member, e.Line, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed table %s at line %d: %s", e.Member, e.Line, e.Message)
}

func (e *MalformedTableError) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether err is a per-archive failure that should skip
// the archive rather than stop the run: a transfer failure, a corrupt archive,
// or a malformed table.
func IsRecoverable(err error) bool {
	var (
		fetchErr   *fetch.Error
		corruptErr *CorruptArchiveError
		tableErr   *MalformedTableError
	)
	return errors.As(err, &fetchErr) || errors.As(err, &corruptErr) || errors.As(err, &tableErr)
}
