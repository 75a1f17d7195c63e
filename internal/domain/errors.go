package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")

	// ErrEmptyRegion means the supplied region has no foreground pixels.
	// Callers treat it as "no object", never as a reason to retry.
	ErrEmptyRegion = errors.New("empty region")

	// ErrLowConfidenceDetection means the upstream detector score is below the
	// configured minimum; there is nothing to learn or recall.
	ErrLowConfidenceDetection = errors.New("detection confidence too low")

	// ErrStoreWrite means the durability layer could not persist a write.
	ErrStoreWrite = errors.New("store write failed")

	// ErrInvalidLanguage means the language has no registered matching configuration.
	ErrInvalidLanguage = errors.New("invalid language")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// StoreWriteError reports a failed persistence operation. It matches both
// ErrStoreWrite and the underlying cause under errors.Is, so a caller can tell
// a cancelled write from a broken database.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreWrite, e.Err)
}

func (e *StoreWriteError) Unwrap() []error { return []error{ErrStoreWrite, e.Err} }

// NewStoreWriteError wraps err as a StoreWriteError. A nil err yields nil.
func NewStoreWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreWriteError{Op: op, Err: err}
}
