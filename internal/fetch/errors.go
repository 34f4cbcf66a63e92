package fetch

import (
	"errors"
	"fmt"
)

// Error represents a failed transfer: an invalid URL, a transport failure, or a
// response whose status is outside 2xx.
type Error struct {
	URL        string
	Method     string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s %s: %s: %v", e.Method, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s %s: %s", e.Method, e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsTransferError reports whether err is or wraps an *Error.
func IsTransferError(err error) bool {
	var fetchErr *Error
	return errors.As(err, &fetchErr)
}
