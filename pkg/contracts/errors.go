package contracts

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures. Kinds are stable API: callers and
// the HTTP edge dispatch on them, never on message text.
type ErrorKind string

const (
	KindBadInput            ErrorKind = "BAD_INPUT"
	KindExternalUnavailable ErrorKind = "EXTERNAL_UNAVAILABLE"
	KindDeadlineExceeded    ErrorKind = "DEADLINE_EXCEEDED"
	KindLedgerRejected      ErrorKind = "LEDGER_REJECTED"
	KindPersistenceFailed   ErrorKind = "PERSISTENCE_FAILED"
	KindCancelled           ErrorKind = "CANCELLED"
	KindInternal            ErrorKind = "INTERNAL"
)

// Error is the typed engine error. It carries a stable code, the pipeline
// stage that failed (when applicable), and wraps the cause. Internal stack
// detail never leaves the engine; Message is safe to surface.
type Error struct {
	Kind    ErrorKind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed engine error wrapping cause.
func NewError(kind ErrorKind, stage, message string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: cause}
}

// KindOf extracts the kind from err, or KindInternal if err is not an
// engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
