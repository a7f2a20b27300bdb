package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so callers (and the HTTP layer) can react
// without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindConflict
	KindInvalidState
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// Error is a classified domain error. Retryable is only meaningful for
// KindDependency: a retryable dependency failure may be re-attempted with
// backoff, a fatal one should surface immediately.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Dependency wraps a collaborator failure (persistence, notification delivery,
// identity verification).
func Dependency(retryable bool, msg string, err error) *Error {
	return &Error{Kind: KindDependency, Message: msg, Retryable: retryable, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown if err is not a
// classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err is a dependency failure worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindDependency && e.Retryable
	}
	return false
}
