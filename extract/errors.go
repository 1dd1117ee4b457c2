package extract

import (
	"errors"
	"fmt"
)

// Kind classifies an extraction failure.
type Kind int

const (
	// Transient failures come from an unreachable or throttled model after
	// its own retries ran out. The document may succeed on a later run.
	Transient Kind = iota + 1

	// Unrecoverable failures exhausted the corrective retries, or the input
	// cannot be extracted at all.
	Unrecoverable
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

var (
	// ErrTransient matches any *Error of kind Transient.
	ErrTransient = errors.New("extract: transient failure")

	// ErrUnrecoverable matches any *Error of kind Unrecoverable.
	ErrUnrecoverable = errors.New("extract: unrecoverable failure")

	// ErrEmptyDocument is returned for documents with no text.
	ErrEmptyDocument = errors.New("extract: document has no text")
)

// Error is a per-document extraction failure.
type Error struct {
	Kind       Kind
	DocumentID string
	Window     int // index of the failing window
	Attempts   int // model calls made for that window
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %s after %d attempt(s) on window %d: %v",
		e.DocumentID, e.Kind, e.Attempts, e.Window, e.Err)
}

func (e *Error) Unwrap() []error {
	sentinel := ErrUnrecoverable
	if e.Kind == Transient {
		sentinel = ErrTransient
	}
	return []error{sentinel, e.Err}
}
