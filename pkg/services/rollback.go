package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/timers"
	"github.com/dukex/applyflow/pkg/workflow"
)

// DocumentRetention is the grace period before the documents of a rolled back application
// are deleted.
const DocumentRetention = 24 * time.Hour

// RollbackResult reports what a rollback undid.
type RollbackResult struct {
	ApplicationID  string `json:"application_id"`
	CancelledRunID string `json:"cancelled_run_id,omitempty"`
	PurgedTimers   int64  `json:"purged_timers"`
	CleanupTimerID string `json:"cleanup_timer_id,omitempty"`

	// SchedulingError is set when the document cleanup timer could not be scheduled.
	SchedulingError string `json:"scheduling_error,omitempty"`
}

// Rollback undoes the acceptance of a job.
type Rollback struct {
	persistence persistence.Persistence
	engine      *workflow.Engine
	logger      *slog.Logger
}

func NewRollback(p persistence.Persistence, engine *workflow.Engine, logger *slog.Logger) *Rollback {
	return &Rollback{persistence: p, engine: engine, logger: logger}
}

// Rollback cancels the application's workflow, purges its pending timers, schedules its
// documents for deletion, deletes the application and resets the job status. Everything
// happens in one transaction.
func (r *Rollback) Rollback(ctx context.Context, userID, jobID string) (*RollbackResult, error) {
	err := requireIDs("Rollback", userID, jobID)
	if err != nil {
		return nil, err
	}

	return persistence.Transact(ctx, r.persistence, func(ctx context.Context, repos *persistence.Repositories) (*RollbackResult, error) {
		app, err := repos.Applications.ByUserAndJob(ctx, userID, jobID)
		if err != nil {
			return nil, err
		}

		logger := r.logger.With("application_id", app.ID, "user_id", userID, "job_id", jobID)
		result := &RollbackResult{ApplicationID: app.ID}

		run, err := repos.Runs.LatestByApplication(ctx, app.ID)
		if err != nil && !persistence.IsWorkflowRunNotFound(err) {
			return nil, fmt.Errorf("failed to load workflow run: %w", err)
		}

		if run != nil {
			cancelled, err := r.engine.CancelRun(ctx, repos, run.ID)
			if err != nil {
				return nil, err
			}

			if cancelled {
				result.CancelledRunID = run.ID
			}
		}

		store := timers.NewStore(repos.Timers, r.logger)

		result.PurgedTimers, err = store.CancelByTarget(ctx, app.ID)
		if err != nil {
			return nil, err
		}

		if app.HasGeneratedDocuments() {
			result.CleanupTimerID, err = store.ScheduleIn(ctx, DocumentRetention, cleanupRequest(app))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to schedule document cleanup", "error", err)

				result.SchedulingError = err.Error()
			}
		}

		err = repos.Applications.Delete(ctx, app.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete application: %w", err)
		}

		err = repos.Jobs.SetUserStatus(ctx, userID, jobID, models.UserJobStatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to reset job status: %w", err)
		}

		logger.InfoContext(ctx, "Job acceptance rolled back",
			"cancelled_run_id", result.CancelledRunID,
			"purged_timers", result.PurgedTimers)

		return result, nil
	})
}

func cleanupRequest(app *models.Application) timers.ScheduleRequest {
	metadata := map[string]any{models.TimerMetaApplicationID: app.ID}

	var target string

	if app.CoverLetterID != nil {
		metadata[models.TimerMetaCoverLetterID] = *app.CoverLetterID
		target = *app.CoverLetterID
	}

	if app.ResumeID != nil {
		metadata[models.TimerMetaResumeID] = *app.ResumeID
		target = *app.ResumeID
	}

	return timers.ScheduleRequest{
		UserID:   app.UserID,
		Type:     models.TimerTypeDocDeletion,
		TargetID: target,
		Metadata: metadata,
	}
}
