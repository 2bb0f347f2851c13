package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for different categories
var (
	// ErrAuth - upstream session could not be established, or was rejected again after one refresh (fatal to the run)
	ErrAuth = errors.New("authentication failed")

	// ErrUpstream - non-auth HTTP or transport failure talking to the ticketing system (fatal to the run)
	ErrUpstream = errors.New("upstream error")

	// ErrInvalidInput - malformed webhook payload or event (400 to the caller, nothing processed)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - requested document, solution or object is absent
	ErrNotFound = errors.New("not found")

	// ErrTransient - transient error (timeouts, rate limits)
	ErrTransient = errors.New("transient error")

	// ErrInternal - unexpected failure anywhere in the pipeline (500 to the caller)
	ErrInternal = errors.New("internal error")
)

// UpstreamError carries the HTTP classification of a failed ticketing API call.
type UpstreamError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrUpstream, and ErrNotFound for 404 responses.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return true
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}
