// Package apperr defines the failure kinds surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrPolicyViolation = errors.New("domain policy violation")
)

// Error carries a human readable message and one of the kinds above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func AccessDenied(format string, args ...any) error {
	return newError(ErrAccessDenied, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func Validation(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func PolicyViolation(format string, args ...any) error {
	return newError(ErrPolicyViolation, format, args...)
}

// Code returns a short machine readable code for err, "internal" when err
// carries none of the known kinds.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrPolicyViolation):
		return "policy_violation"
	}
	return "internal"
}
