// Package apperr defines the error taxonomy shared by the assignment core.
package apperr

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind classifies an error for callers that need to map it to a response.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation_error"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrInternal   = &Error{Kind: KindInternal}
)

// Error is the typed error returned by every core operation.
type Error struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a hard-blocking conflict. details is attached verbatim.
func Conflict(message string, details any) *Error {
	return &Error{Kind: KindConflict, Message: message, Details: details}
}

// Forbidden reports an operation the referee is not qualified for.
func Forbidden(message string, details any) *Error {
	return &Error{Kind: KindForbidden, Message: message, Details: details}
}

// Internal wraps an unexpected failure, keeping a stack trace on the cause.
func Internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: eris.Wrap(err, message)}
}

// Wrap passes *Error values through untouched and turns anything else into
// an internal error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Internal(err, message)
}

// KindOf returns the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf returns the public message of err.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}

// Trace renders err with its eris stack when one is present. Meant for logs only.
func Trace(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.cause != nil {
		return eris.ToString(ae.cause, true)
	}
	return err.Error()
}
