package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/applyflow/pkg/mocks"
	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/persistence/memory"
	"github.com/dukex/applyflow/pkg/services"
	"github.com/dukex/applyflow/pkg/testutil"
	"github.com/dukex/applyflow/pkg/timers/handlers"
	"github.com/dukex/applyflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

type fixture struct {
	store      *memory.Persistence
	repos      *persistence.Repositories
	engine     *workflow.Engine
	generator  *mocks.MockGenerator
	acceptance *services.Acceptance
	rollback   *services.Rollback
	job        models.Job
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	generator := &mocks.MockGenerator{}
	engine := workflow.NewEngine(workflow.Dependencies{
		Persistence: store,
		Generator:   generator,
		Submitter:   &mocks.MockSubmitter{},
		Logger:      testutil.DiscardLogger(),
	})

	job := testutil.CreateTestJob()
	store.AddJob(job)

	return &fixture{
		store:      store,
		repos:      store.Repositories(),
		engine:     engine,
		generator:  generator,
		acceptance: services.NewAcceptance(store, engine, testutil.DiscardLogger()),
		rollback:   services.NewRollback(store, engine, testutil.DiscardLogger()),
		job:        job,
	}
}

// brokenTimers fails every timer insert made inside a transaction.
type brokenTimers struct {
	persistence.Persistence
}

func (b brokenTimers) Transact(ctx context.Context, fn func(ctx context.Context, repos *persistence.Repositories) error) error {
	return b.Persistence.Transact(ctx, func(ctx context.Context, repos *persistence.Repositories) error {
		timers := &mocks.MockTimerRepository{}
		timers.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		timers.On("DeletePendingByTarget", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)

		repos.Timers = timers

		return fn(ctx, repos)
	})
}

func TestAcceptJob(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.repos.Settings.Save(ctx, testutil.CreateTestSettings(userID)))

	result, err := f.acceptance.AcceptJob(ctx, userID, f.job.ID, map[string]any{"source": "digest"})
	require.NoError(t, err)

	assert.Equal(t, f.job.ID, result.Job.ID)
	assert.Equal(t, models.StageSyncing, result.Application.Stage)
	assert.Equal(t, models.WorkflowStatusPending, result.Workflow.Status)
	assert.Equal(t, result.Application.ID, result.Workflow.ApplicationID)
	require.NotEmpty(t, result.AutoApplyTimerID)

	timer, err := f.repos.Timers.ByID(ctx, result.AutoApplyTimerID)
	require.NoError(t, err)
	assert.Equal(t, models.TimerTypeAutoApplyDelay, timer.Type)
	assert.Equal(t, result.Application.ID, timer.TargetID)
	assert.Equal(t, result.Workflow.ID, timer.MetadataString(models.TimerMetaWorkflowRunID))
	assert.Equal(t, "digest", timer.MetadataString("source"))
	assert.WithinDuration(t, time.Now().Add(time.Minute), timer.ExecuteAt, 5*time.Second)

	status, err := f.repos.Jobs.UserStatus(ctx, userID, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserJobStatusAccepted, status)
}

func TestAcceptJob_Errors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.acceptance.AcceptJob(ctx, "", f.job.ID, nil)
	assert.True(t, services.IsValidationError(err))

	_, err = f.acceptance.AcceptJob(ctx, userID, "", nil)
	assert.ErrorIs(t, err, services.ErrEmptyJobID)

	_, err = f.acceptance.AcceptJob(ctx, userID, "missing-job", nil)
	assert.ErrorIs(t, err, persistence.ErrJobNotFound)
	assert.True(t, persistence.IsNotFound(err))

	_, err = f.acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	require.NoError(t, err)

	_, err = f.acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	assert.ErrorIs(t, err, services.ErrJobAlreadyAccepted)
	assert.True(t, services.IsConflictError(err))
}

func TestAcceptJob_SchedulingFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	acceptance := services.NewAcceptance(brokenTimers{f.store}, f.engine, testutil.DiscardLogger())

	result, err := acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, result.AutoApplyTimerID)

	run, err := f.repos.Runs.ByID(ctx, result.Workflow.ID)
	require.NoError(t, err)
	assert.Contains(t, run.Metadata.SchedulingError, "timer scheduling failed")
	assert.Contains(t, run.Metadata.SchedulingError, "disk full")

	_, err = f.repos.Applications.ByID(ctx, result.Application.ID)
	assert.NoError(t, err)
}

func TestRollback_IsAtomicAndSchedulesCleanup(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	accepted, err := f.acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	require.NoError(t, err)

	resumeID := testutil.SeedDocument(t, f.repos, userID, models.DocumentKindResume, "generated/resume.pdf")
	app := accepted.Application
	app.ResumeID = &resumeID
	require.NoError(t, f.repos.Applications.Update(ctx, app))

	result, err := f.rollback.Rollback(ctx, userID, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, result.ApplicationID)
	assert.Equal(t, accepted.Workflow.ID, result.CancelledRunID)
	assert.EqualValues(t, 1, result.PurgedTimers)
	require.NotEmpty(t, result.CleanupTimerID)

	pending, err := f.repos.Timers.PendingByTarget(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	cleanup, err := f.repos.Timers.PendingByTarget(ctx, resumeID)
	require.NoError(t, err)
	require.Len(t, cleanup, 1)
	assert.Equal(t, models.TimerTypeDocDeletion, cleanup[0].Type)
	assert.Equal(t, resumeID, cleanup[0].MetadataString(models.TimerMetaResumeID))
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), cleanup[0].ExecuteAt, 5*time.Second)

	_, err = f.repos.Applications.ByID(ctx, app.ID)
	assert.True(t, persistence.IsApplicationNotFound(err))

	status, err := f.repos.Jobs.UserStatus(ctx, userID, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserJobStatusPending, status)

	run, err := f.repos.Runs.ByID(ctx, accepted.Workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCancelled, run.Status)
}

func TestRollback_CancelledRunIgnoresLateTimer(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	accepted, err := f.acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	require.NoError(t, err)

	timer, err := f.repos.Timers.ByID(ctx, accepted.AutoApplyTimerID)
	require.NoError(t, err)

	_, err = f.rollback.Rollback(ctx, userID, f.job.ID)
	require.NoError(t, err)

	h := handlers.New(handlers.Dependencies{
		Persistence: f.store,
		Workflow:    f.engine,
		Logger:      testutil.DiscardLogger(),
	})

	// The timer was claimed before the rollback purged it.
	require.NoError(t, h.AutoApplyDelay(ctx, timer))
	require.NoError(t, f.engine.Process(ctx, accepted.Workflow.ID))

	run, err := f.repos.Runs.ByID(ctx, accepted.Workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCancelled, run.Status)
	f.generator.AssertNotCalled(t, "GenerateResume", mock.Anything, mock.Anything)
}

func TestRollback_WithoutDocumentsSchedulesNothing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	require.NoError(t, err)

	result, err := f.rollback.Rollback(ctx, userID, f.job.ID)
	require.NoError(t, err)
	assert.Empty(t, result.CleanupTimerID)

	// The job can be accepted again.
	_, err = f.acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	require.NoError(t, err)
}

func TestRollback_NotFound(t *testing.T) {
	f := setup(t)

	_, err := f.rollback.Rollback(context.Background(), userID, f.job.ID)
	assert.True(t, persistence.IsApplicationNotFound(err))
}

func TestRollback_FailedCleanupDoesNotUnwind(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	accepted, err := f.acceptance.AcceptJob(ctx, userID, f.job.ID, nil)
	require.NoError(t, err)

	app := accepted.Application
	letterID := testutil.SeedDocument(t, f.repos, userID, models.DocumentKindCoverLetter, "generated/letter.pdf")
	app.CoverLetterID = &letterID
	require.NoError(t, f.repos.Applications.Update(ctx, app))

	rollback := services.NewRollback(brokenTimers{f.store}, f.engine, testutil.DiscardLogger())

	result, err := rollback.Rollback(ctx, userID, f.job.ID)
	require.NoError(t, err)
	assert.Empty(t, result.CleanupTimerID)
	assert.Contains(t, result.SchedulingError, "disk full")

	_, err = f.repos.Applications.ByID(ctx, app.ID)
	assert.True(t, persistence.IsApplicationNotFound(err))
}
