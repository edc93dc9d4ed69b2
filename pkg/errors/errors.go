// Package apperrors defines the error taxonomy for venue interaction
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Standardized local errors
var (
	ErrNotConnected      = errors.New("venue session not connected")
	ErrLoginRequired     = errors.New("venue session not authenticated")
	ErrRequestTimeout    = errors.New("venue request timed out")
	ErrStreamClosed      = errors.New("event stream closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// MaxChildErrors caps how many nested child error messages the venue
// reports for a single failure.
const MaxChildErrors = 10

// RemoteError is a structured rejection returned by the venue: an error
// code, the originating exception class when known, and up to
// MaxChildErrors nested child error messages.
type RemoteError struct {
	Code           string
	ExceptionClass string
	Children       []string
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "venue rejected request: code=%s", e.Code)
	if e.ExceptionClass != "" {
		fmt.Fprintf(&b, " exceptionClass=%s", e.ExceptionClass)
	}
	if len(e.Children) > 0 {
		fmt.Fprintf(&b, " children=%d", len(e.Children))
	}
	return b.String()
}

// NewRemoteError builds a RemoteError, truncating children to MaxChildErrors.
func NewRemoteError(code, exceptionClass string, children []string) *RemoteError {
	if len(children) > MaxChildErrors {
		children = children[:MaxChildErrors]
	}
	return &RemoteError{Code: code, ExceptionClass: exceptionClass, Children: children}
}

// IsRemoteCode reports whether err is a venue rejection with the given
// error code. Known codes are recovered locally; unknown ones abort the run.
func IsRemoteCode(err error, code string) bool {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return false
	}
	return remote.Code == code
}

// AsRemote extracts a RemoteError from an error chain, if present.
func AsRemote(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}
