// Package api is the REST collaborator client for the Receiptly
// backend: session CRUD, message history and receipt endpoints. The
// chat core treats these as simple request/response contracts; the
// persistent store of record lives server-side.
package api

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the backend reports a missing resource.
var ErrNotFound = errors.New("resource not found")

// Error is a typed REST failure. Retries are exhausted before one is
// returned.
type Error struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api %s: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is worth retrying.
func (e *Error) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.StatusCode == 0
}

func newError(endpoint string, status int, message string, err error) *Error {
	return &Error{Endpoint: endpoint, StatusCode: status, Message: message, Err: err}
}
