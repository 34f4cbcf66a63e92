package masterlist

import "fmt"

// ContentTypeError is returned when the master file list is served with a media
// type other than the expected one.
type ContentTypeError struct {
	URL  string
	Got  string
	Want string
}

func (e *ContentTypeError) Error() string {
	got := e.Got
	if got == "" {
		got = "(none)"
	}
	return fmt.Sprintf("unexpected content type for %s: expected %s but received %s", e.URL, e.Want, got)
}

// MalformedEntryError is returned when an export entry carries no usable
// timestamp. It indicates an upstream format change rather than a transient issue.
type MalformedEntryError struct {
	Line    int
	URL     string
	Message string
	Cause   error
}

func (e *MalformedEntryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed index entry at line %d (%s): %s: %v", e.Line, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed index entry at line %d (%s): %s", e.Line, e.URL, e.Message)
}

func (e *MalformedEntryError) Unwrap() error {
	return e.Cause
}
