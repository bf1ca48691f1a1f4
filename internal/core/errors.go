package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingFields reports that one or more required input fields were absent.
var ErrMissingFields = errors.New("missing required fields")

// ValidationError describes input that was missing or malformed.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// MissingFieldsError builds a ValidationError naming every absent field.
func MissingFieldsError(fields []string) *ValidationError {
	return &ValidationError{
		Field: strings.Join(fields, ", "),
		Err:   ErrMissingFields,
	}
}

// PersistenceError wraps a failure of the underlying store. The message of
// the wrapped error is kept for diagnostics.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s entry: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
