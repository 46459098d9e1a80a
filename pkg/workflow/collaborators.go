package workflow

import (
	"context"
	"time"

	"github.com/dukex/applyflow/pkg/models"
)

// GenerationRequest asks the generation service for a tailored document.
type GenerationRequest struct {
	UserID          string `json:"userId"`
	JobID           string `json:"jobId"`
	BaseDocumentRef string `json:"baseDocumentRef,omitempty"`
}

// GenerationResult is the generation service's answer. Error is set when Success is false.
type GenerationResult struct {
	Success     bool   `json:"success"`
	DocumentRef string `json:"documentRef,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Generator produces resumes and cover letters.
type Generator interface {
	GenerateResume(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	GenerateCoverLetter(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// SubmissionRequest asks the submission service to apply on the user's behalf.
type SubmissionRequest struct {
	ApplicationID  string             `json:"applicationId"`
	ResumeRef      *string            `json:"resumeRef,omitempty"`
	CoverLetterRef *string            `json:"coverLetterRef,omitempty"`
	Profile        models.UserProfile `json:"userProfile"`
	ApplyMethod    string             `json:"applyMethod"`
	ApplyTarget    string             `json:"applyTarget"`
}

// SubmissionResult is the submission service's answer.
type SubmissionResult struct {
	Success        bool       `json:"success"`
	SubmittedAt    *time.Time `json:"submittedAt,omitempty"`
	ConfirmationID string     `json:"confirmationId,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Submitter submits applications.
type Submitter interface {
	Submit(ctx context.Context, req SubmissionRequest) (*SubmissionResult, error)
}
