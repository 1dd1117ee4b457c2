package llm

import (
	"errors"
	"fmt"
	"time"
)

// Kinds of model failure. A *ModelError matches its kind with errors.Is.
var (
	// ErrUnavailable means the model could not be reached or failed
	// server-side (transport error, timeout, 5xx).
	ErrUnavailable = errors.New("llm: model unavailable")

	// ErrRateLimited means the model rejected the call for rate reasons.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrMalformed means the model answered with something that could not
	// be decoded.
	ErrMalformed = errors.New("llm: malformed response")
)

// ModelError is a failure at the model collaborator boundary.
type ModelError struct {
	Kind       error  // one of ErrUnavailable, ErrRateLimited, ErrMalformed
	Op         string // "chat" or "embed"
	StatusCode int    // HTTP status when known
	Err        error

	// RetryAfter is the server-requested delay for rate-limited calls.
	RetryAfter time.Duration
}

func (e *ModelError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether err is worth retrying after a backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

func unavailable(op string, err error) error {
	return &ModelError{Kind: ErrUnavailable, Op: op, Err: err}
}

func malformed(op string, err error) error {
	return &ModelError{Kind: ErrMalformed, Op: op, Err: err}
}
