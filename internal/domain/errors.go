package domain

import "errors"

var (
	// ErrNotFound is returned when a delivery, attempt, or user record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input fails domain validation.
	ErrValidation = errors.New("validation error")

	// ErrConflict is returned when an operation conflicts with the current state.
	ErrConflict = errors.New("conflict")

	// ErrPermanentlyFailed is returned when an operation targets a delivery
	// that has already exhausted its retry budget.
	ErrPermanentlyFailed = errors.New("delivery permanently failed")
)
