package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	// ErrStorageUnavailable reports that the durable store could not complete a call.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrActivationFailed reports that an entity could not be brought to the active state.
	ErrActivationFailed = errors.New("activation failed")
	// ErrCancelled reports that the caller gave up before the operation started.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a store failure that survived the store's retry policy.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// ActivationError wraps the cause of a failed activation for one entity key.
type ActivationError struct {
	Key string
	Err error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activation of %q failed: %v", e.Key, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

func (e *ActivationError) Is(target error) bool { return target == ErrActivationFailed }
