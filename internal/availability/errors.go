package availability

import (
	"errors"
	"fmt"

	"slotkeeper/internal/model"
)

// ValidationError is returned synchronously for malformed dates, times, durations and ranges.
type ValidationError = model.ValidationError

var (
	ErrInvalidDuration = model.ErrInvalidDuration
	ErrInvalidTime     = model.ErrInvalidTime
	ErrInvalidRange    = model.ErrInvalidRange
	ErrInvalidDate     = model.ErrInvalidDate
)

var (
	// ErrTemplateMissing is logged when no template hours resolve for a weekday; fallback hours are used.
	ErrTemplateMissing = errors.New("no template entry for weekday")
	ErrNotReady        = errors.New("availability not loaded yet")
	ErrSlotBooked      = errors.New("slot is booked")
	ErrSlotNotFound    = errors.New("slot not found")
)

// PersistenceError wraps a failed store call.
type PersistenceError struct {
	Op   string
	Date string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Date == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Date, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op, date string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Date: date, Err: err}
}

// IsValidation reports whether err is caller input rejected before any state change.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func opOf(err error) string {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return perr.Op
	}
	return "unknown"
}
