package model

import (
	"errors"
	"fmt"
)

// Error classes shared by the store, the exam engine and the HTTP layer.
// Callers wrap these with context and classify them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrPersistence  = errors.New("persistence failed")
	ErrState        = errors.New("exam is not open")
)

var (
	ErrInactive       = fmt.Errorf("exam is inactive: %w", ErrState)
	ErrOutsideWindow  = fmt.Errorf("exam is outside its availability window: %w", ErrState)
	ErrLengthMismatch = fmt.Errorf("answer count does not match question count: %w", ErrValidation)
	ErrConflict       = fmt.Errorf("already exists: %w", ErrValidation)
)

// Invalid returns a validation error with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
