// Package workflow implements the auto-apply state machine that moves a WorkflowRun through
// document generation, verification windows and submission.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/notification"
	"github.com/dukex/applyflow/pkg/otelhelper"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies wires an Engine.
type Dependencies struct {
	Persistence persistence.Persistence
	Generator   Generator
	Submitter   Submitter
	Sink        notification.Sink
	Tracer      trace.Tracer
	Logger      *slog.Logger

	// Defaults returns the settings of users that never saved any.
	Defaults func(userID string) *models.AutomationSettings
}

// Engine owns WorkflowRun records and advances them.
type Engine struct {
	persistence persistence.Persistence
	generator   Generator
	submitter   Submitter
	sink        notification.Sink
	tracer      trace.Tracer
	logger      *slog.Logger
	defaults    func(userID string) *models.AutomationSettings
	now         func() time.Time
}

func NewEngine(deps Dependencies) *Engine {
	defaults := deps.Defaults
	if defaults == nil {
		defaults = models.DefaultAutomationSettings
	}

	sink := deps.Sink
	if sink == nil {
		sink = notification.Discard{}
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otelhelper.NewNoopTracer()
	}

	return &Engine{
		persistence: deps.Persistence,
		generator:   deps.Generator,
		submitter:   deps.Submitter,
		sink:        sink,
		tracer:      tracer,
		logger:      deps.Logger,
		defaults:    defaults,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun returns the run of an application, creating it when none exists. Calling it
// again for the same user and application returns the same row.
func (e *Engine) CreateRun(ctx context.Context, repos *persistence.Repositories, userID, applicationID, jobID string) (*models.WorkflowRun, error) {
	key := models.WorkflowIdempotencyKey(userID, applicationID)

	existing, err := repos.Runs.ByIdempotencyKey(ctx, key)
	if err == nil {
		return existing, nil
	}

	if !persistence.IsWorkflowRunNotFound(err) {
		return nil, fmt.Errorf("failed to look up workflow run: %w", err)
	}

	now := e.now()
	run := &models.WorkflowRun{
		ID:             uuid.NewString(),
		UserID:         userID,
		ApplicationID:  applicationID,
		IdempotencyKey: key,
		Status:         models.WorkflowStatusPending,
		CurrentStep:    models.StepQueued,
		Metadata:       models.WorkflowMetadata{JobID: jobID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = repos.Runs.Create(ctx, run)
	if errors.Is(err, persistence.ErrWorkflowRunAlreadyExists) {
		return repos.Runs.ByIdempotencyKey(ctx, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create workflow run: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow run created",
		"workflow_run_id", run.ID,
		"application_id", applicationID,
		"user_id", userID)

	return run, nil
}

// CancelRun moves a run that is neither completed nor cancelled to cancelled. It reports
// whether the run was cancelled by this call.
func (e *Engine) CancelRun(ctx context.Context, repos *persistence.Repositories, runID string) (bool, error) {
	const attempts = 3

	for range attempts {
		run, err := repos.Runs.ByID(ctx, runID)
		if err != nil {
			return false, err
		}

		if run.Status == models.WorkflowStatusCompleted || run.Status == models.WorkflowStatusCancelled {
			return false, nil
		}

		moved, err := repos.Runs.Transition(ctx, runID, run.Status, models.WorkflowStatusCancelled, models.StepCancelled)
		if err != nil {
			return false, fmt.Errorf("failed to cancel workflow run: %w", err)
		}

		if moved {
			e.logger.InfoContext(ctx, "Workflow run cancelled", "workflow_run_id", runID, "previous_status", run.Status)

			return true, nil
		}
	}

	return false, fmt.Errorf("failed to cancel workflow run %s: status kept changing", runID)
}

// Settings returns the user's automation settings, or the defaults.
func (e *Engine) Settings(ctx context.Context, repos *persistence.Repositories, userID string) (*models.AutomationSettings, error) {
	settings, err := repos.Settings.ByUser(ctx, userID)
	if err == nil {
		return settings, nil
	}

	if errors.Is(err, persistence.ErrSettingsNotFound) {
		return e.defaults(userID), nil
	}

	return nil, fmt.Errorf("failed to load automation settings: %w", err)
}

type action int

const (
	actionComplete action = iota
	actionResume
	actionCoverLetter
	actionSubmit
)

// nextAction derives the next step from what the application already has, so a resumed
// run never repeats a finished step.
func nextAction(app *models.Application, settings *models.AutomationSettings) action {
	switch {
	case settings.GenerateResume && app.ResumeID == nil:
		return actionResume
	case settings.GenerateCoverLetter && app.CoverLetterID == nil:
		return actionCoverLetter
	case settings.AutoApply && app.AppliedAt == nil:
		return actionSubmit
	default:
		return actionComplete
	}
}

// Process advances a run until it completes, fails or suspends at a verification window.
// Cancelled and finished runs are left untouched. Collaborator failures end the run and
// return nil; storage failures are returned so the caller retries.
func (e *Engine) Process(ctx context.Context, runID string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.process",
		attribute.String(otelhelper.WorkflowRunIDKey, runID))
	defer span.End()

	err := e.process(ctx, runID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (e *Engine) process(ctx context.Context, runID string) error {
	repos := e.persistence.Repositories()

	run, err := repos.Runs.ByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load workflow run: %w", err)
	}

	logger := e.logger.With("workflow_run_id", run.ID, "application_id", run.ApplicationID)

	if run.Status.IsTerminal() {
		logger.DebugContext(ctx, "Workflow run is finished, nothing to do", "status", run.Status)

		return nil
	}

	settings, err := e.Settings(ctx, repos, run.UserID)
	if err != nil {
		return err
	}

	for {
		app, err := repos.Applications.ByID(ctx, run.ApplicationID)
		if err != nil {
			if persistence.IsApplicationNotFound(err) {
				logger.WarnContext(ctx, "Application is gone, skipping workflow run")

				return nil
			}

			return fmt.Errorf("failed to load application: %w", err)
		}

		var proceed bool

		switch nextAction(app, settings) {
		case actionResume:
			proceed, err = e.generate(ctx, logger, run, app, settings, resumeStep)
		case actionCoverLetter:
			proceed, err = e.generate(ctx, logger, run, app, settings, coverLetterStep)
		case actionSubmit:
			proceed, err = e.submit(ctx, logger, run, app, settings)
		default:
			return e.complete(ctx, logger, run)
		}

		if err != nil || !proceed {
			return err
		}
	}
}

func (e *Engine) complete(ctx context.Context, logger *slog.Logger, run *models.WorkflowRun) error {
	moved, err := e.transition(ctx, e.persistence.Repositories(), run, models.WorkflowStatusCompleted, models.StepDone)
	if err != nil {
		return err
	}

	if moved {
		logger.InfoContext(ctx, "Workflow run completed")
	}

	return nil
}

// transition compare-and-sets the run status and mirrors the change on run.
func (e *Engine) transition(ctx context.Context, repos *persistence.Repositories, run *models.WorkflowRun, to models.WorkflowStatus, step string) (bool, error) {
	moved, err := repos.Runs.Transition(ctx, run.ID, run.Status, to, step)
	if err != nil {
		return false, fmt.Errorf("failed to transition workflow run to %s: %w", to, err)
	}

	if moved {
		e.apply(run, to, step)
	}

	return moved, nil
}

func (e *Engine) apply(run *models.WorkflowRun, to models.WorkflowStatus, step string) {
	now := e.now()

	run.Status = to
	run.CurrentStep = step
	run.UpdatedAt = now

	if to.IsTerminal() {
		run.CompletedAt = &now
	}
}

// fail ends the run as failed, moves the application to Failed and tells the user.
func (e *Engine) fail(ctx context.Context, logger *slog.Logger, run *models.WorkflowRun, step string, notice models.NotificationType, cause error) error {
	err := e.persistence.Transact(ctx, func(ctx context.Context, repos *persistence.Repositories) error {
		moved, err := e.transition(ctx, repos, run, models.WorkflowStatusFailed, step)
		if err != nil {
			return err
		}

		if !moved {
			return errRunMoved
		}

		run.Metadata.LastError = cause.Error()
		run.Metadata.FailedStep = step

		err = repos.Runs.Update(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to record workflow failure: %w", err)
		}

		app, err := repos.Applications.ByID(ctx, run.ApplicationID)
		if err != nil {
			return fmt.Errorf("failed to load application: %w", err)
		}

		app.Stage = models.StageFailed

		return repos.Applications.Update(ctx, app)
	})
	if errors.Is(err, errRunMoved) {
		logger.InfoContext(ctx, "Workflow run changed before failure was recorded", "step", step, "cause", cause)

		return nil
	}

	if err != nil {
		return err
	}

	logger.ErrorContext(ctx, "Workflow run failed", "step", step, "error", cause)

	notification.Send(ctx, e.sink, logger, notification.New(run.UserID, notice,
		failureTitle(notice),
		fmt.Sprintf("The %s step failed: %s", stepLabel(step), cause),
		runMetadata(run),
	))

	return nil
}

func runMetadata(run *models.WorkflowRun) map[string]any {
	return map[string]any{
		models.TimerMetaApplicationID: run.ApplicationID,
		models.TimerMetaWorkflowRunID: run.ID,
		models.TimerMetaJobID:         run.Metadata.JobID,
	}
}

func failureTitle(notice models.NotificationType) string {
	if notice == models.NotificationApplyFailed {
		return "Application failed"
	}

	return "Document generation failed"
}

func stepLabel(step string) string {
	switch step {
	case models.StepGenerateResume:
		return "resume generation"
	case models.StepGenerateCoverLetter:
		return "cover letter generation"
	case models.StepSubmit:
		return "application submission"
	default:
		return step
	}
}
