package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers as distinct rejections.
var (
	ErrEmptyQuery = errors.New("no query provided")
	ErrNoDocument = errors.New("no document processed yet")
	ErrNoPath     = errors.New("no document path provided")
	ErrBusy       = errors.New("another document is currently being processed")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Wrapped)
	}
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Field, e.Wrapped, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsValidation reports whether err is a caller mistake rather than a failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
