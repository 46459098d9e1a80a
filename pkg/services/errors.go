// Package services provides the job acceptance and rollback entry points and their error types.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrEmptyUserID    = errors.New("user ID cannot be empty")
	ErrEmptyJobID     = errors.New("job ID cannot be empty")

	// Business Logic Conflicts (409 Conflict).
	ErrJobAlreadyAccepted = errors.New("job already has an active application")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyUserID) ||
		errors.Is(err, ErrEmptyJobID) ||
		workflow.IsValidationError(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrJobAlreadyAccepted) ||
		errors.Is(err, persistence.ErrApplicationAlreadyExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error with context.
func NewConflictError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func requireIDs(op, userID, jobID string) error {
	if userID == "" {
		return NewValidationError(op, "EMPTY_USER_ID", "user ID cannot be empty", ErrEmptyUserID)
	}

	if jobID == "" {
		return NewValidationError(op, "EMPTY_JOB_ID", "job ID cannot be empty", ErrEmptyJobID)
	}

	return nil
}
