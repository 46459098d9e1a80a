package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowRunNotFound indicates no workflow run matched the lookup.
	ErrWorkflowRunNotFound = errors.New("workflow run not found")

	// ErrWorkflowRunAlreadyExists indicates a run with the same idempotency key exists.
	ErrWorkflowRunAlreadyExists = errors.New("workflow run already exists")

	// ErrTimerNotFound indicates a scheduled timer was not found.
	ErrTimerNotFound = errors.New("scheduled timer not found")

	// ErrApplicationNotFound indicates an application was not found.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrApplicationAlreadyExists indicates the user already has an application for the job.
	ErrApplicationAlreadyExists = errors.New("application already exists")

	// ErrJobNotFound indicates a job listing was not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrDocumentNotFound indicates a generated document was not found.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrSettingsNotFound indicates the user never saved automation settings.
	ErrSettingsNotFound = errors.New("automation settings not found")

	// ErrProfileNotFound indicates the user has no profile.
	ErrProfileNotFound = errors.New("user profile not found")

	// ErrFollowUpNotFound indicates no follow-up tracking exists for the application.
	ErrFollowUpNotFound = errors.New("follow-up tracking not found")
)

var notFoundErrors = []error{
	ErrWorkflowRunNotFound,
	ErrTimerNotFound,
	ErrApplicationNotFound,
	ErrJobNotFound,
	ErrDocumentNotFound,
	ErrSettingsNotFound,
	ErrProfileNotFound,
	ErrFollowUpNotFound,
}

// EntityError wraps a repository error with the operation and entity it concerns.
type EntityError struct {
	Op     string // Operation being performed (e.g., "ByID", "Create", "Delete")
	Entity string // Entity name (e.g., "workflow_run")
	ID     string // Entity identifier if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates any referenced entity was missing.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IsWorkflowRunNotFound checks if an error indicates a workflow run was not found.
func IsWorkflowRunNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowRunNotFound)
}

// IsApplicationNotFound checks if an error indicates an application was not found.
func IsApplicationNotFound(err error) bool {
	return errors.Is(err, ErrApplicationNotFound)
}
