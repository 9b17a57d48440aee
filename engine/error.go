package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure
type ErrorKind string

const (
	ErrKindNotFound     ErrorKind = "NotFound"     // instance already gone
	ErrKindUnauthorized ErrorKind = "Unauthorized" // credentials/permissions, fatal
	ErrKindTransient    ErrorKind = "Transient"    // throttling, timeout, 5xx
)

// Error is a typed failure from the provider boundary
type Error struct {
	Kind  ErrorKind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s: %s: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// KindOf returns the ErrorKind of err, defaulting to Transient for
// anything that is not a typed provider error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindTransient
}

// IsNotFound reports whether err is a provider NotFound
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}
