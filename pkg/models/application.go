package models

import "time"

// Stage is an application's position in its lifecycle.
type Stage string

const (
	StageSyncing        Stage = "Syncing"
	StageCVCheck        Stage = "CV Check"
	StageMessageCheck   Stage = "Message Check"
	StageBeingApplied   Stage = "Being Applied"
	StageApplied        Stage = "Applied"
	StageFailed         Stage = "Failed"
	StageInterview1     Stage = "Interview 1"
	StageNextInterviews Stage = "Next Interviews"
	StageRejected       Stage = "Rejected"
	StageAccepted       Stage = "Accepted"
	StageWithdrawn      Stage = "Withdrawn"
)

// AcceptsFollowUps reports whether follow-up reminders apply at this stage.
func (s Stage) AcceptsFollowUps() bool {
	return s == StageApplied || s == StageInterview1 || s == StageNextInterviews
}

// Application links a user to a job they accepted.
type Application struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	JobID         string     `json:"job_id"`
	Stage         Stage      `json:"stage"`
	ResumeID      *string    `json:"resume_id,omitempty"`
	CoverLetterID *string    `json:"cover_letter_id,omitempty"`
	AppliedAt     *time.Time `json:"applied_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasGeneratedDocuments reports whether a resume or cover letter is attached.
func (a *Application) HasGeneratedDocuments() bool {
	return a.ResumeID != nil || a.CoverLetterID != nil
}

// UserJobStatus is a user's decision on a job listing.
type UserJobStatus string

const (
	UserJobStatusPending  UserJobStatus = "pending"
	UserJobStatusAccepted UserJobStatus = "accepted"
	UserJobStatusRejected UserJobStatus = "rejected"
)

// Job is the subset of a job listing the workflow needs.
type Job struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	ApplyMethod string `json:"apply_method"`
	ApplyTarget string `json:"apply_target"`
}
