//go:build integration

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

var tables = []string{
	"idempotency_keys",
	"follow_up_tracking",
	"user_profiles",
	"automation_settings",
	"scheduled_timers",
	"workflow_runs",
	"applications",
	"documents",
	"user_job_statuses",
	"jobs",
	"schema_migrations",
}

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range tables {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("applyflow_test"),
			postgres.WithUsername("applyflow"),
			postgres.WithPassword("applyflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func seedJob(ctx context.Context, t *testing.T, p *postgresql.Persistence, id string) {
	t.Helper()

	_, err := p.DB().ExecContext(ctx, `INSERT INTO jobs (id, title, company) VALUES ($1, 'Engineer', 'Acme')`, id)
	require.NoError(t, err)
}

func newRun(appID string) *models.WorkflowRun {
	now := time.Now().UTC()

	return &models.WorkflowRun{
		ID:             uuid.NewString(),
		UserID:         "user-1",
		ApplicationID:  appID,
		IdempotencyKey: models.WorkflowIdempotencyKey("user-1", appID),
		Status:         models.WorkflowStatusPending,
		CurrentStep:    models.StepQueued,
		Metadata:       models.WorkflowMetadata{JobID: "job-1"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx := setupTestDB(t)

	var count int

	err := p.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestRuns_CreateAndTransition(t *testing.T) {
	p, ctx := setupTestDB(t)
	repos := p.Repositories()

	run := newRun("app-1")
	require.NoError(t, repos.Runs.Create(ctx, run))

	dup := newRun("app-1")
	assert.ErrorIs(t, repos.Runs.Create(ctx, dup), persistence.ErrWorkflowRunAlreadyExists)

	moved, err := repos.Runs.Transition(ctx, run.ID, models.WorkflowStatusPending, models.WorkflowStatusGeneratingResume, models.StepGenerateResume)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repos.Runs.Transition(ctx, run.ID, models.WorkflowStatusPending, models.WorkflowStatusCancelled, models.StepCancelled)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = repos.Runs.Transition(ctx, uuid.NewString(), models.WorkflowStatusPending, models.WorkflowStatusCancelled, models.StepCancelled)
	assert.True(t, persistence.IsWorkflowRunNotFound(err))

	stored, err := repos.Runs.ByIdempotencyKey(ctx, run.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusGeneratingResume, stored.Status)
	assert.Equal(t, "job-1", stored.Metadata.JobID)

	latest, err := repos.Runs.LatestByApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
}

func TestTimers_ClaimAndFailure(t *testing.T) {
	p, ctx := setupTestDB(t)
	repos := p.Repositories()
	now := time.Now().UTC()

	due := &models.ScheduledTimer{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		Type:      models.TimerTypeAutoApplyDelay,
		TargetID:  "app-1",
		ExecuteAt: now.Add(-time.Minute),
		Metadata:  map[string]any{"applicationId": "app-1"},
		CreatedAt: now,
	}
	future := &models.ScheduledTimer{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		Type:      models.TimerTypeFollowUpReminder,
		TargetID:  "app-1",
		ExecuteAt: now.Add(time.Hour),
		CreatedAt: now,
	}

	require.NoError(t, repos.Timers.Create(ctx, due))
	require.NoError(t, repos.Timers.Create(ctx, future))

	claimed, err := repos.Timers.Claim(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, "app-1", claimed[0].MetadataString("applicationId"))

	again, err := repos.Timers.Claim(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	failed, err := repos.Timers.RecordFailure(ctx, due.ID, "boom", 1, now)
	require.NoError(t, err)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, "boom", failed.LastError)
	assert.NotNil(t, failed.QuarantinedAt)
	assert.Nil(t, failed.LockedUntil)

	dueNow, err := repos.Timers.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, dueNow)

	removed, err := repos.Timers.DeletePendingByTarget(ctx, "app-1", models.TimerTypeFollowUpReminder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestTransact_RollsBack(t *testing.T) {
	p, ctx := setupTestDB(t)
	seedJob(ctx, t, p, "job-1")

	app := &models.Application{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		JobID:     "job-1",
		Stage:     models.StageSyncing,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	err := p.Transact(ctx, func(ctx context.Context, repos *persistence.Repositories) error {
		require.NoError(t, repos.Applications.Create(ctx, app))
		require.NoError(t, repos.Jobs.SetUserStatus(ctx, "user-1", "job-1", models.UserJobStatusAccepted))

		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = p.Repositories().Applications.ByID(ctx, app.ID)
	assert.True(t, persistence.IsApplicationNotFound(err))

	status, err := p.Repositories().Jobs.UserStatus(ctx, "user-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.UserJobStatusPending, status)
}

func TestApplications_DocumentReferences(t *testing.T) {
	p, ctx := setupTestDB(t)
	seedJob(ctx, t, p, "job-1")
	seedJob(ctx, t, p, "job-2")
	repos := p.Repositories()
	now := time.Now().UTC()

	doc := &models.Document{ID: uuid.NewString(), UserID: "user-1", Kind: models.DocumentKindResume, StorageKey: "resumes/a.pdf", CreatedAt: now}
	require.NoError(t, repos.Documents.Create(ctx, doc))

	for _, jobID := range []string{"job-1", "job-2"} {
		require.NoError(t, repos.Applications.Create(ctx, &models.Application{
			ID: uuid.NewString(), UserID: "user-1", JobID: jobID, Stage: models.StageApplied,
			ResumeID: &doc.ID, CreatedAt: now, UpdatedAt: now,
		}))
	}

	count, err := repos.Applications.CountReferencingDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	app, err := repos.Applications.ByUserAndJob(ctx, "user-1", "job-1")
	require.NoError(t, err)
	require.NotNil(t, app.ResumeID)
	assert.Equal(t, doc.ID, *app.ResumeID)
	assert.Nil(t, app.CoverLetterID)
}

func TestSettings_RoundTripDurations(t *testing.T) {
	p, ctx := setupTestDB(t)
	repos := p.Repositories()

	settings := models.DefaultAutomationSettings("user-1")
	settings.AutoApplyDelay = 90 * time.Second
	require.NoError(t, repos.Settings.Save(ctx, settings))

	stored, err := repos.Settings.ByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, stored.AutoApplyDelay)
	assert.Equal(t, 7*24*time.Hour, stored.FollowUpInterval)

	_, err = repos.Settings.ByUser(ctx, "user-2")
	assert.ErrorIs(t, err, persistence.ErrSettingsNotFound)
}
