package models

import (
	"maps"
	"time"
)

// TimerType selects the handler a ScheduledTimer is dispatched to.
type TimerType string

const (
	TimerTypeAutoApplyDelay      TimerType = "auto_apply_delay"
	TimerTypeCVVerification      TimerType = "cv_verification"
	TimerTypeMessageVerification TimerType = "message_verification"
	TimerTypeDocDeletion         TimerType = "doc_deletion"
	TimerTypeFollowUpReminder    TimerType = "follow_up_reminder"
)

// Metadata keys carried by timers.
const (
	TimerMetaApplicationID  = "applicationId"
	TimerMetaWorkflowRunID  = "workflowRunId"
	TimerMetaJobID          = "jobId"
	TimerMetaResumeID       = "resumeId"
	TimerMetaCoverLetterID  = "coverLetterId"
	TimerMetaFollowUpNumber = "followUpNumber"
)

// TimerTypes lists every timer type in registration order.
func TimerTypes() []TimerType {
	return []TimerType{
		TimerTypeAutoApplyDelay,
		TimerTypeCVVerification,
		TimerTypeMessageVerification,
		TimerTypeDocDeletion,
		TimerTypeFollowUpReminder,
	}
}

// ScheduledTimer is a durable single-fire delayed action.
type ScheduledTimer struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Type   TimerType `json:"type"`

	// TargetID is an application id, or a resume id for doc_deletion timers.
	TargetID string `json:"target_id"`

	ExecuteAt  time.Time      `json:"execute_at"`
	Executed   bool           `json:"executed"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Attempts counts failed dispatches. LastError holds the most recent failure.
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`

	// LockedUntil is the claim lease of the dispatcher currently running the timer.
	LockedUntil *time.Time `json:"locked_until,omitempty"`

	// QuarantinedAt is set once Attempts reaches the dispatcher's limit.
	// Quarantined timers are kept but never dispatched again.
	QuarantinedAt *time.Time `json:"quarantined_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsDue reports whether the timer may be claimed at now.
func (t *ScheduledTimer) IsDue(now time.Time) bool {
	if t.Executed || t.QuarantinedAt != nil || t.ExecuteAt.After(now) {
		return false
	}

	return t.LockedUntil == nil || !t.LockedUntil.After(now)
}

// MetadataString returns the string value stored under key, or "".
func (t *ScheduledTimer) MetadataString(key string) string {
	if t.Metadata == nil {
		return ""
	}

	v, _ := t.Metadata[key].(string)

	return v
}

// Clone returns a copy that shares no mutable state with t.
func (t *ScheduledTimer) Clone() *ScheduledTimer {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	c.ExecutedAt = cloneTime(t.ExecutedAt)
	c.LockedUntil = cloneTime(t.LockedUntil)
	c.QuarantinedAt = cloneTime(t.QuarantinedAt)

	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}
