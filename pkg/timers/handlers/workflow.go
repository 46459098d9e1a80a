package handlers

import (
	"context"
	"fmt"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

// AutoApplyDelay starts the workflow of a freshly accepted job. Runs that are cancelled,
// finished or suspended at a verification window are left alone.
func (h *Handlers) AutoApplyDelay(ctx context.Context, timer *models.ScheduledTimer) error {
	logger := h.timerLogger(timer)
	repos := h.persistence.Repositories()

	run, err := repos.Runs.LatestByApplication(ctx, applicationID(timer))
	if err != nil {
		if persistence.IsWorkflowRunNotFound(err) {
			logger.InfoContext(ctx, "No workflow run for application, skipping")

			return nil
		}

		return fmt.Errorf("failed to load workflow run: %w", err)
	}

	switch run.Status {
	case models.WorkflowStatusPending,
		models.WorkflowStatusGeneratingResume,
		models.WorkflowStatusGeneratingCoverLetter,
		models.WorkflowStatusApplying:
	default:
		logger.InfoContext(ctx, "Workflow run not startable, skipping", "workflow_run_id", run.ID, "status", run.Status)

		return nil
	}

	return h.workflow.Process(ctx, run.ID)
}

// CVVerification resumes a run whose resume verification window ended unconfirmed.
func (h *Handlers) CVVerification(ctx context.Context, timer *models.ScheduledTimer) error {
	return h.verificationTimeout(ctx, timer, models.StageCVCheck, models.WorkflowStatusWaitingCVVerification)
}

// MessageVerification resumes a run whose cover letter verification window ended unconfirmed.
func (h *Handlers) MessageVerification(ctx context.Context, timer *models.ScheduledTimer) error {
	return h.verificationTimeout(ctx, timer, models.StageMessageCheck, models.WorkflowStatusWaitingMessageVerification)
}

func (h *Handlers) verificationTimeout(ctx context.Context, timer *models.ScheduledTimer, stage models.Stage, waiting models.WorkflowStatus) error {
	logger := h.timerLogger(timer)
	repos := h.persistence.Repositories()

	app, err := repos.Applications.ByID(ctx, applicationID(timer))
	if err != nil {
		if persistence.IsApplicationNotFound(err) {
			logger.InfoContext(ctx, "Application is gone, skipping verification timeout")

			return nil
		}

		return fmt.Errorf("failed to load application: %w", err)
	}

	if app.Stage != stage {
		logger.InfoContext(ctx, "Application left the checkpoint, skipping", "stage", app.Stage, "expected", stage)

		return nil
	}

	run, err := repos.Runs.LatestByApplication(ctx, app.ID)
	if err != nil {
		if persistence.IsWorkflowRunNotFound(err) {
			return nil
		}

		return fmt.Errorf("failed to load workflow run: %w", err)
	}

	if run.Status != waiting {
		logger.InfoContext(ctx, "Workflow run is not waiting, skipping", "workflow_run_id", run.ID, "status", run.Status)

		return nil
	}

	logger.InfoContext(ctx, "Verification window ended, resuming workflow", "workflow_run_id", run.ID)

	return h.workflow.Process(ctx, run.ID)
}
