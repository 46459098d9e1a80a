package models

import "time"

// WorkflowStatus is the lifecycle state of a WorkflowRun.
type WorkflowStatus string

const (
	WorkflowStatusPending                    WorkflowStatus = "pending"
	WorkflowStatusGeneratingResume           WorkflowStatus = "generating_resume"
	WorkflowStatusGeneratingCoverLetter      WorkflowStatus = "generating_cover_letter"
	WorkflowStatusWaitingCVVerification      WorkflowStatus = "waiting_cv_verification"
	WorkflowStatusWaitingMessageVerification WorkflowStatus = "waiting_message_verification"
	WorkflowStatusApplying                   WorkflowStatus = "applying"
	WorkflowStatusCompleted                  WorkflowStatus = "completed"
	WorkflowStatusFailed                     WorkflowStatus = "failed"
	WorkflowStatusCancelled                  WorkflowStatus = "cancelled"
)

// IsTerminal reports whether no further step may run for a run in this status.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusGeneratingResume, WorkflowStatusGeneratingCoverLetter,
		WorkflowStatusWaitingCVVerification, WorkflowStatusWaitingMessageVerification,
		WorkflowStatusApplying, WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// Step labels stored in WorkflowRun.CurrentStep.
const (
	StepQueued              = "queued"
	StepGenerateResume      = "generate_resume"
	StepVerifyResume        = "verify_resume"
	StepGenerateCoverLetter = "generate_cover_letter"
	StepVerifyCoverLetter   = "verify_cover_letter"
	StepSubmit              = "submit_application"
	StepDone                = "done"
	StepCancelled           = "cancelled"
)

// WorkflowMetadata carries the run's auxiliary state.
type WorkflowMetadata struct {
	JobID           string `json:"job_id,omitempty"`
	LastError       string `json:"last_error,omitempty"`
	FailedStep      string `json:"failed_step,omitempty"`
	SchedulingError string `json:"scheduling_error,omitempty"`
}

// WorkflowRun tracks one auto-apply attempt for an application.
type WorkflowRun struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	ApplicationID string `json:"application_id"`

	// IdempotencyKey is derived from (UserID, ApplicationID) and is unique across runs.
	IdempotencyKey string `json:"idempotency_key"`

	Status      WorkflowStatus   `json:"status"`
	CurrentStep string           `json:"current_step"`
	Metadata    WorkflowMetadata `json:"metadata"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// WorkflowIdempotencyKey returns the deterministic key for the run of an application.
func WorkflowIdempotencyKey(userID, applicationID string) string {
	return "workflow-" + userID + "-" + applicationID
}
