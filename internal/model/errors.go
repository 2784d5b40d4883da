package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lineage and lookup invariants.
var (
	// ErrNotFound indicates an unknown tracking id.
	ErrNotFound = errors.New("not found")

	// ErrCycle indicates a link that would make a submission its own ancestor.
	ErrCycle = errors.New("lineage cycle")

	// ErrMultipleParent indicates a child that already has a parent edge.
	ErrMultipleParent = errors.New("submission already has a parent")

	// ErrTruncated indicates an ancestor walk that exceeded the safety bound.
	// It is surfaced to the caller, never swallowed.
	ErrTruncated = errors.New("ancestor walk truncated")
)

// ValidationError reports an input outside its allowed range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError constructs a ValidationError for a named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether any error in the chain is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundf wraps ErrNotFound with entity context so callers can still
// match with errors.Is.
func NotFoundf(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
