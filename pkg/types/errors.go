// Package types defines the core data types and error kinds shared across
// the engine.
package types

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for the engine (§7).
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrStorageError = errors.New("storage error")
	ErrCorruption   = errors.New("corruption")
	ErrClosed       = errors.New("closed")
)

// Error wraps an error with operation context and a sentinel Kind.
type Error struct {
	Op      string // Operation that failed
	Kind    error  // Category of error, one of the Err* sentinels
	Err     error  // Underlying error, if any
	Message string // Human-readable message
}

func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Errorf creates a new Error with a formatted message and no underlying error.
func Errorf(op string, kind error, format string, args ...any) error {
	return &Error{
		Op:      op,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an underlying error with operation context.
func WrapError(op string, kind error, err error) error {
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}
