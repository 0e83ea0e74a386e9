// Package apperr defines the error kinds returned by the auth and review
// services and consumed by the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error. The HTTP layer maps each kind to
// exactly one status code.
type Kind int

const (
	Internal Kind = iota
	Validation
	BadRequest
	Conflict
	InvalidCredentials
	Unauthenticated
	Forbidden
	NotFound
	Transient
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case BadRequest:
		return "bad_request"
	case Conflict:
		return "conflict"
	case InvalidCredentials:
		return "invalid_credentials"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Transient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is a typed failure with a client-safe message. Reason is for logs
// only and never leaves the process.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind with a default code.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: defaultCode(kind), Message: message}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

// WithReason sets the internal reason and returns e.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// WithCode overrides the machine-readable code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// ValidationFailed reports every field violation at once.
func ValidationFailed(details map[string]string) *Error {
	e := New(Validation, "Validation failed")
	e.Details = details
	return e
}

// KindOf returns the kind of err, or Internal when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// As extracts the *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}

func defaultCode(kind Kind) string {
	switch kind {
	case Validation:
		return "VALIDATION_ERROR"
	case BadRequest:
		return "BAD_REQUEST"
	case Conflict:
		return "CONFLICT"
	case InvalidCredentials:
		return "INVALID_CREDENTIALS"
	case Unauthenticated:
		return "UNAUTHORIZED"
	case Forbidden:
		return "FORBIDDEN"
	case NotFound:
		return "NOT_FOUND"
	case Transient:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
