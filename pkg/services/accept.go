package services

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/timers"
	"github.com/dukex/applyflow/pkg/workflow"
	"github.com/google/uuid"
)

// AcceptResult is what AcceptJob created.
type AcceptResult struct {
	Job         *models.Job         `json:"job"`
	Application *models.Application `json:"application"`
	Workflow    *models.WorkflowRun `json:"workflow"`

	// AutoApplyTimerID is empty when the delay timer could not be scheduled. The failure is
	// recorded in Workflow.Metadata.SchedulingError.
	AutoApplyTimerID string `json:"auto_apply_timer_id,omitempty"`
}

// Acceptance turns a user's acceptance of a job into an application and a delayed workflow run.
type Acceptance struct {
	persistence persistence.Persistence
	engine      *workflow.Engine
	logger      *slog.Logger
}

func NewAcceptance(p persistence.Persistence, engine *workflow.Engine, logger *slog.Logger) *Acceptance {
	return &Acceptance{persistence: p, engine: engine, logger: logger}
}

// AcceptJob creates the application, its workflow run and the auto-apply delay timer in one
// transaction. metadata is copied onto the delay timer.
func (a *Acceptance) AcceptJob(ctx context.Context, userID, jobID string, metadata map[string]any) (*AcceptResult, error) {
	err := requireIDs("AcceptJob", userID, jobID)
	if err != nil {
		return nil, err
	}

	return persistence.Transact(ctx, a.persistence, func(ctx context.Context, repos *persistence.Repositories) (*AcceptResult, error) {
		job, err := repos.Jobs.ByID(ctx, jobID)
		if err != nil {
			return nil, err
		}

		existing, err := repos.Applications.ByUserAndJob(ctx, userID, jobID)
		if err != nil && !persistence.IsApplicationNotFound(err) {
			return nil, fmt.Errorf("failed to look up application: %w", err)
		}

		if existing != nil {
			return nil, NewConflictError("AcceptJob", "JOB_ALREADY_ACCEPTED",
				fmt.Sprintf("job %s already has application %s", jobID, existing.ID), ErrJobAlreadyAccepted)
		}

		now := time.Now().UTC()
		app := &models.Application{
			ID:        uuid.NewString(),
			UserID:    userID,
			JobID:     jobID,
			Stage:     models.StageSyncing,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = repos.Applications.Create(ctx, app)
		if err != nil {
			return nil, fmt.Errorf("failed to create application: %w", err)
		}

		err = repos.Jobs.SetUserStatus(ctx, userID, jobID, models.UserJobStatusAccepted)
		if err != nil {
			return nil, fmt.Errorf("failed to mark job accepted: %w", err)
		}

		settings, err := a.engine.Settings(ctx, repos, userID)
		if err != nil {
			return nil, err
		}

		run, err := a.engine.CreateRun(ctx, repos, userID, app.ID, jobID)
		if err != nil {
			return nil, err
		}

		timerMetadata := maps.Clone(metadata)
		if timerMetadata == nil {
			timerMetadata = map[string]any{}
		}

		timerMetadata[models.TimerMetaApplicationID] = app.ID
		timerMetadata[models.TimerMetaWorkflowRunID] = run.ID
		timerMetadata[models.TimerMetaJobID] = jobID

		timerID, err := timers.NewStore(repos.Timers, a.logger).ScheduleIn(ctx, settings.AutoApplyDelay, timers.ScheduleRequest{
			UserID:   userID,
			Type:     models.TimerTypeAutoApplyDelay,
			TargetID: app.ID,
			Metadata: timerMetadata,
		})
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to schedule auto-apply delay",
				"application_id", app.ID,
				"workflow_run_id", run.ID,
				"error", err)

			run.Metadata.SchedulingError = err.Error()

			err = repos.Runs.Update(ctx, run)
			if err != nil {
				return nil, fmt.Errorf("failed to record scheduling failure: %w", err)
			}
		}

		a.logger.InfoContext(ctx, "Job accepted",
			"user_id", userID,
			"job_id", jobID,
			"application_id", app.ID,
			"workflow_run_id", run.ID)

		return &AcceptResult{Job: job, Application: app, Workflow: run, AutoApplyTimerID: timerID}, nil
	})
}
