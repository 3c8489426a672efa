package model

import (
	"errors"
	"fmt"
)

// Validation sentinels, matched with errors.Is through *ValidationError.
var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidRange    = errors.New("invalid time range")
	ErrInvalidDate     = errors.New("invalid date")
)

// ValidationError reports malformed caller input. It is always returned synchronously.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, value string, err error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Err: err}
}
