// Package apperrors defines the closed set of error kinds surfaced by the
// negotiation engine.
package apperrors

import (
	"errors"
	"strings"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindStateConflict Kind = "state_conflict"
	KindInternal      Kind = "internal"
)

// Error is the domain error type with structured context.
type Error struct {
	Kind            Kind
	Message         string
	NegotiationID   string
	CurrentState    string
	RequestedAction string
	Field           string
	Cause           error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Field != "" {
		b.WriteString(" (field ")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if e.CurrentState != "" || e.RequestedAction != "" {
		b.WriteString(" [state=")
		b.WriteString(e.CurrentState)
		b.WriteString(" action=")
		b.WriteString(e.RequestedAction)
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrStateConflict = &Error{Kind: KindStateConflict}
	ErrInternal      = &Error{Kind: KindInternal}
)

// Validation reports malformed or out-of-range input.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Forbidden reports a caller without rights over the negotiation.
func Forbidden(negotiationID string) *Error {
	return &Error{Kind: KindForbidden, NegotiationID: negotiationID, Message: "caller may not act on this negotiation"}
}

// NotFound reports a missing (or masked) negotiation.
func NotFound(negotiationID string) *Error {
	return &Error{Kind: KindNotFound, NegotiationID: negotiationID, Message: "negotiation not found"}
}

// StateConflict reports an action that is illegal from the persisted state.
func StateConflict(negotiationID, currentState, requestedAction string) *Error {
	return &Error{
		Kind:            KindStateConflict,
		NegotiationID:   negotiationID,
		CurrentState:    currentState,
		RequestedAction: requestedAction,
		Message:         "action not allowed from current state",
	}
}

// Internal wraps an infrastructure failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

// KindOf returns the kind of err, defaulting to KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From converts err into an *Error, wrapping foreign errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
