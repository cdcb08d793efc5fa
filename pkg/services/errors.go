// Package services hosts the domain orchestration layer between the HTTP
// API and the detection, consensus, and storage components.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInputTooLarge is returned when a payload exceeds its configured
	// size bound.
	ErrInputTooLarge = errors.New("input too large")

	// ErrDetectorUnavailable is returned when the internal detector fails;
	// external provider faults never surface this.
	ErrDetectorUnavailable = errors.New("detector unavailable")

	// ErrUnsupportedMedia is returned when a payload cannot be decoded as
	// the claimed modality.
	ErrUnsupportedMedia = errors.New("unsupported media format")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
