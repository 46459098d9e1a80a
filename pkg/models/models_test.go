package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowStatus_IsTerminal(t *testing.T) {
	terminal := []WorkflowStatus{WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}

	open := []WorkflowStatus{
		WorkflowStatusPending,
		WorkflowStatusGeneratingResume,
		WorkflowStatusGeneratingCoverLetter,
		WorkflowStatusWaitingCVVerification,
		WorkflowStatusWaitingMessageVerification,
		WorkflowStatusApplying,
	}
	for _, s := range open {
		assert.False(t, s.IsTerminal(), s)
		assert.True(t, s.IsValid(), s)
	}

	assert.False(t, WorkflowStatus("paused").IsValid())
}

func TestWorkflowIdempotencyKey(t *testing.T) {
	assert.Equal(t, "workflow-user-1-app-9", WorkflowIdempotencyKey("user-1", "app-9"))
	assert.NotEqual(t, WorkflowIdempotencyKey("a", "b"), WorkflowIdempotencyKey("b", "a"))
}

func TestStage_AcceptsFollowUps(t *testing.T) {
	assert.True(t, StageApplied.AcceptsFollowUps())
	assert.True(t, StageInterview1.AcceptsFollowUps())
	assert.True(t, StageNextInterviews.AcceptsFollowUps())
	assert.False(t, StageRejected.AcceptsFollowUps())
	assert.False(t, StageCVCheck.AcceptsFollowUps())
	assert.False(t, StageWithdrawn.AcceptsFollowUps())
}

func TestScheduledTimer_IsDue(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		timer ScheduledTimer
		due   bool
	}{
		{"due", ScheduledTimer{ExecuteAt: past}, true},
		{"exactly now", ScheduledTimer{ExecuteAt: now}, true},
		{"future", ScheduledTimer{ExecuteAt: future}, false},
		{"executed", ScheduledTimer{ExecuteAt: past, Executed: true}, false},
		{"quarantined", ScheduledTimer{ExecuteAt: past, QuarantinedAt: &past}, false},
		{"leased", ScheduledTimer{ExecuteAt: past, LockedUntil: &future}, false},
		{"lease expired", ScheduledTimer{ExecuteAt: past, LockedUntil: &past}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.due, tt.timer.IsDue(now))
		})
	}
}

func TestScheduledTimer_Clone(t *testing.T) {
	locked := time.Now()
	original := &ScheduledTimer{
		ID:          "timer-1",
		Metadata:    map[string]any{TimerMetaApplicationID: "app-1"},
		LockedUntil: &locked,
	}

	clone := original.Clone()
	clone.Metadata[TimerMetaApplicationID] = "app-2"
	*clone.LockedUntil = locked.Add(time.Hour)

	assert.Equal(t, "app-1", original.MetadataString(TimerMetaApplicationID))
	assert.Equal(t, locked, *original.LockedUntil)
}

func TestScheduledTimer_MetadataString(t *testing.T) {
	timer := &ScheduledTimer{Metadata: map[string]any{"a": "x", "n": 3}}

	assert.Equal(t, "x", timer.MetadataString("a"))
	assert.Empty(t, timer.MetadataString("n"))
	assert.Empty(t, timer.MetadataString("missing"))
	assert.Empty(t, (&ScheduledTimer{}).MetadataString("a"))
}

func TestTimerTypes(t *testing.T) {
	types := TimerTypes()
	require.Len(t, types, 5)
	assert.Equal(t, TimerTypeAutoApplyDelay, types[0])
	assert.Contains(t, types, TimerTypeFollowUpReminder)
}

func TestAutomationSettings_Validation(t *testing.T) {
	validate := validator.New()

	settings := DefaultAutomationSettings("user-1")
	require.NoError(t, validate.Struct(settings))

	settings.VerificationWindow = 0
	err := validate.Struct(settings)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "VerificationWindow", validationErrors[0].Field())
	assert.Equal(t, "gt", validationErrors[0].Tag())
}

func TestDefaultAutomationSettings(t *testing.T) {
	settings := DefaultAutomationSettings("user-1")

	assert.Equal(t, "user-1", settings.UserID)
	assert.True(t, settings.GenerateResume)
	assert.True(t, settings.VerifyResume)
	assert.True(t, settings.AutoApply)
	assert.False(t, settings.AutoFollowUpEmail)
	assert.Equal(t, 5*time.Minute, settings.VerificationWindow)
}

func TestApplication_HasGeneratedDocuments(t *testing.T) {
	resume := "doc-1"

	assert.False(t, (&Application{}).HasGeneratedDocuments())
	assert.True(t, (&Application{ResumeID: &resume}).HasGeneratedDocuments())
	assert.True(t, (&Application{CoverLetterID: &resume}).HasGeneratedDocuments())
}

func TestIdempotencyRecord(t *testing.T) {
	now := time.Now()
	record := &IdempotencyRecord{ExpiresAt: now.Add(IdempotencyTTL)}

	assert.False(t, record.Completed())
	assert.False(t, record.Expired(now))
	assert.True(t, record.Expired(now.Add(IdempotencyTTL)))

	record.StatusCode = 201
	assert.True(t, record.Completed())
}

func TestWorkflowRun_JSONSerialization(t *testing.T) {
	run := WorkflowRun{
		ID:            "run-1",
		UserID:        "user-1",
		ApplicationID: "app-1",
		Status:        WorkflowStatusWaitingCVVerification,
		CurrentStep:   StepVerifyResume,
		Metadata:      WorkflowMetadata{JobID: "job-1"},
	}

	data, err := json.Marshal(run)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"waiting_cv_verification"`)
	assert.NotContains(t, string(data), "completed_at")
	assert.NotContains(t, string(data), "last_error")
}
