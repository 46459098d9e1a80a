// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestJob creates a test Job with default values that can be overridden.
func CreateTestJob(overrides ...func(*models.Job)) models.Job {
	job := models.Job{
		ID:          uuid.NewString(),
		Title:       "Backend Engineer",
		Company:     "Acme",
		ApplyMethod: "email",
		ApplyTarget: "jobs@acme.test",
	}

	for _, override := range overrides {
		override(&job)
	}

	return job
}

// CreateTestApplication creates a test Application at stage Syncing.
func CreateTestApplication(userID, jobID string, overrides ...func(*models.Application)) *models.Application {
	now := time.Now().UTC()
	app := &models.Application{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobID:     jobID,
		Stage:     models.StageSyncing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(app)
	}

	return app
}

// WithStage sets the application stage.
func WithStage(stage models.Stage) func(*models.Application) {
	return func(a *models.Application) {
		a.Stage = stage
	}
}

// WithResume attaches a resume document id.
func WithResume(documentID string) func(*models.Application) {
	return func(a *models.Application) {
		a.ResumeID = &documentID
	}
}

// WithCoverLetter attaches a cover letter document id.
func WithCoverLetter(documentID string) func(*models.Application) {
	return func(a *models.Application) {
		a.CoverLetterID = &documentID
	}
}

// CreateTestSettings creates automation settings with every step enabled and no verification.
func CreateTestSettings(userID string, overrides ...func(*models.AutomationSettings)) *models.AutomationSettings {
	settings := models.DefaultAutomationSettings(userID)
	settings.VerifyResume = false
	settings.VerifyCoverLetter = false
	settings.BaseResumeRef = "uploads/" + userID + "/resume.pdf"

	for _, override := range overrides {
		override(settings)
	}

	return settings
}

// WithVerification sets whether generated documents wait for confirmation.
func WithVerification(resume, coverLetter bool) func(*models.AutomationSettings) {
	return func(s *models.AutomationSettings) {
		s.VerifyResume = resume
		s.VerifyCoverLetter = coverLetter
	}
}

// WithSteps enables or disables the workflow steps.
func WithSteps(resume, coverLetter, apply bool) func(*models.AutomationSettings) {
	return func(s *models.AutomationSettings) {
		s.GenerateResume = resume
		s.GenerateCoverLetter = coverLetter
		s.AutoApply = apply
	}
}

// CreateTestProfile creates a user profile.
func CreateTestProfile(userID string) *models.UserProfile {
	return &models.UserProfile{
		UserID:   userID,
		FullName: "Ada Lovelace",
		Email:    userID + "@example.test",
	}
}

// Seed stores an application together with its owner's settings and profile.
func Seed(t *testing.T, repos *persistence.Repositories, app *models.Application, settings *models.AutomationSettings) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, repos.Applications.Create(ctx, app))

	if settings != nil {
		require.NoError(t, repos.Settings.Save(ctx, settings))
	}

	require.NoError(t, repos.Settings.SaveProfile(ctx, CreateTestProfile(app.UserID)))
}

// SeedDocument stores a document and returns its id.
func SeedDocument(t *testing.T, repos *persistence.Repositories, userID string, kind models.DocumentKind, storageKey string) string {
	t.Helper()

	doc := &models.Document{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		StorageKey: storageKey,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repos.Documents.Create(context.Background(), doc))

	return doc.ID
}
