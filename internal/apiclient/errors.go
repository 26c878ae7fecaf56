package apiclient

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Client matches exactly one of them
// with errors.Is.
var (
	ErrInvalidURL = errors.New("invalid url")
	ErrNoData     = errors.New("empty response body")
	ErrDecoding   = errors.New("unexpected response shape")
	ErrTransport  = errors.New("network failure")
	ErrStatus     = errors.New("request rejected")
)

// Error describes a failed API call.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// APIError represents a backend error response (HTTP status >= 400).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
