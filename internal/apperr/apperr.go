// Package apperr models the error taxonomy from the runtime's error-handling
// design: errors are plain values wrapped with fmt.Errorf, tagged with a
// Kind so callers can branch on the failure category without parsing
// messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	// KindInputInvalid marks a validation failure (builder, classifier
	// input, condition DSL). Reported to the caller; never retried.
	KindInputInvalid Kind = "input_invalid"

	// KindPolicyBlocked marks a policy engine denial. Carries a
	// blocked_reason; the caller records a skipped outcome; never retried.
	KindPolicyBlocked Kind = "policy_blocked"

	// KindExternalUnavailable marks a transient failure of persistence, a
	// delivery adapter, or the LLM adapter. The job queue retries while
	// attempts remain; event-bus handlers swallow and log it.
	KindExternalUnavailable Kind = "external_unavailable"

	// KindInvariant marks an invariant violation, e.g. a duplicate Stripe
	// payment intent applied in Phase A. Fatal for the specific operation;
	// no state change follows.
	KindInvariant Kind = "invariant_violation"

	// KindFatal marks an uncaught failure inside a worker loop. The worker
	// logs it and sleeps its normal interval rather than crashing.
	KindFatal Kind = "fatal"
)

// Error is a Kind-tagged error value.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error from a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind == kind
	}
	return false
}

// KindOf returns the Kind carried by err, or "" if err is not a tagged
// *Error.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return ""
}
