package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnknownParticipant = errors.New("unknown participant")

	ErrNotFound = errors.New("expense not found")
	ErrNoData   = errors.New("no unsettled expenses for period")
)

// ValidationError reports bad input caught at the boundary.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError is returned when a settlement targets an id the store does not hold.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("expense not found: %s", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StoreError wraps a failed write or read in the expense store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NoDataError signals an export for a month with nothing unsettled in it.
// It is informational: callers show a message instead of writing a header-only file.
type NoDataError struct {
	Key MonthKey
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no unsettled expenses found for %s", e.Key)
}

func (e *NoDataError) Is(target error) bool { return target == ErrNoData }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// AsStoreError wraps err as a StoreError unless it already carries a
// NotFoundError or StoreError.
func AsStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.Is(err, ErrNotFound) || errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
