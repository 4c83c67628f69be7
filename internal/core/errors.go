package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrRateFetch  = errors.New("rate fetch error")
	ErrNotFound   = errors.New("transaction not found")
)

// ValidationError reports malformed user input. It is raised before any
// network call is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateFetchError is returned once the retry budget is exhausted. Cause is the
// failure of the last attempt.
type RateFetchError struct {
	Attempts int
	Cause    error
}

func (e *RateFetchError) Error() string {
	return fmt.Sprintf("rate fetch failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RateFetchError) Unwrap() error {
	return e.Cause
}

func (e *RateFetchError) Is(target error) bool {
	return target == ErrRateFetch
}

type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction %d not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
