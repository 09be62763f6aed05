// Package fault defines the error taxonomy shared across the relay.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a relay failure.
type Kind int

const (
	// KindServiceUnavailable - an external service was unreachable or its
	// handshake failed.
	KindServiceUnavailable Kind = iota + 1
	// KindTransportError - a mid-stream network failure on an external
	// service or the client connection.
	KindTransportError
	// KindInvalidState - an operation was attempted outside its valid
	// lifecycle state. Programmer error, not user-facing.
	KindInvalidState
	// KindSuggestionFailed - the suggestion service returned an error or a
	// malformed payload. Non-fatal to the session.
	KindSuggestionFailed
	// KindClientDisconnected - the client connection is gone.
	KindClientDisconnected
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case KindTransportError:
		return "TRANSPORT_ERROR"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindSuggestionFailed:
		return "SUGGESTION_FAILED"
	case KindClientDisconnected:
		return "CLIENT_DISCONNECTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// Fatal reports whether a failure of this kind ends the session.
func (k Kind) Fatal() bool {
	return k == KindServiceUnavailable || k == KindTransportError || k == KindClientDisconnected
}

// Error is a classified relay error, optionally wrapping a cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the classification of the error.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf extracts the kind from an error chain. Unclassified errors report
// KindTransportError, the conservative fatal default.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindTransportError
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.kind == kind
}

// Describe renders an error as "KIND: detail" for client-facing messages.
// Classified errors already carry their kind; anything else gets the
// KindOf default prepended.
func Describe(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return err.Error()
	}
	return fmt.Sprintf("%s: %v", KindOf(err), err)
}
