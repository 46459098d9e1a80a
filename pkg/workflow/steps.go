package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/notification"
	"github.com/dukex/applyflow/pkg/otelhelper"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/timers"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// documentStep describes one generate-then-verify step.
type documentStep struct {
	kind       models.DocumentKind
	status     models.WorkflowStatus
	step       string
	waitStatus models.WorkflowStatus
	waitStep   string
	stage      models.Stage
	timerType  models.TimerType
	ready      models.NotificationType
	title      string
}

var resumeStep = documentStep{
	kind:       models.DocumentKindResume,
	status:     models.WorkflowStatusGeneratingResume,
	step:       models.StepGenerateResume,
	waitStatus: models.WorkflowStatusWaitingCVVerification,
	waitStep:   models.StepVerifyResume,
	stage:      models.StageCVCheck,
	timerType:  models.TimerTypeCVVerification,
	ready:      models.NotificationCVReady,
	title:      "Your tailored resume is ready",
}

var coverLetterStep = documentStep{
	kind:       models.DocumentKindCoverLetter,
	status:     models.WorkflowStatusGeneratingCoverLetter,
	step:       models.StepGenerateCoverLetter,
	waitStatus: models.WorkflowStatusWaitingMessageVerification,
	waitStep:   models.StepVerifyCoverLetter,
	stage:      models.StageMessageCheck,
	timerType:  models.TimerTypeMessageVerification,
	ready:      models.NotificationMessageReady,
	title:      "Your cover letter is ready",
}

func (s documentStep) verify(settings *models.AutomationSettings) bool {
	if s.kind == models.DocumentKindResume {
		return settings.VerifyResume
	}

	return settings.VerifyCoverLetter
}

func (s documentStep) attach(app *models.Application, documentID string) {
	if s.kind == models.DocumentKindResume {
		app.ResumeID = &documentID
	} else {
		app.CoverLetterID = &documentID
	}
}

// generate runs one document step. It reports whether the run may continue to the next step.
func (e *Engine) generate(
	ctx context.Context,
	logger *slog.Logger,
	run *models.WorkflowRun,
	app *models.Application,
	settings *models.AutomationSettings,
	s documentStep,
) (bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.WorkflowRunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowStepKey, s.step))
	defer span.End()

	repos := e.persistence.Repositories()

	moved, err := e.transition(ctx, repos, run, s.status, s.step)
	if err != nil {
		return false, err
	}

	if !moved {
		logger.InfoContext(ctx, "Workflow run advanced concurrently, skipping step", "step", s.step)

		return false, nil
	}

	req := GenerationRequest{UserID: run.UserID, JobID: app.JobID, BaseDocumentRef: settings.BaseResumeRef}

	if s.kind == models.DocumentKindCoverLetter && app.ResumeID != nil {
		resume, err := repos.Documents.ByID(ctx, *app.ResumeID)
		if err != nil && !errors.Is(err, persistence.ErrDocumentNotFound) {
			return false, fmt.Errorf("failed to load resume: %w", err)
		}

		if resume != nil {
			req.BaseDocumentRef = resume.StorageKey
		}
	}

	ref, err := e.callGenerator(ctx, s.kind, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return false, e.fail(ctx, logger, run, s.step, models.NotificationGenerationFailed, err)
	}

	wait := s.verify(settings)

	err = e.persistence.Transact(ctx, func(ctx context.Context, repos *persistence.Repositories) error {
		to, step := s.status, s.step
		if wait {
			to, step = s.waitStatus, s.waitStep
		}

		current := *run

		moved, err := e.transition(ctx, repos, &current, to, step)
		if err != nil {
			return err
		}

		if !moved {
			return errRunMoved
		}

		fresh, err := repos.Applications.ByID(ctx, app.ID)
		if err != nil {
			return fmt.Errorf("failed to load application: %w", err)
		}

		doc := &models.Document{
			ID:         uuid.NewString(),
			UserID:     run.UserID,
			Kind:       s.kind,
			StorageKey: ref,
			CreatedAt:  e.now(),
		}

		err = repos.Documents.Create(ctx, doc)
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", s.kind, err)
		}

		s.attach(fresh, doc.ID)
		fresh.Stage = s.stage

		err = repos.Applications.Update(ctx, fresh)
		if err != nil {
			return fmt.Errorf("failed to attach %s: %w", s.kind, err)
		}

		if wait {
			_, err = timers.NewStore(repos.Timers, e.logger).ScheduleIn(ctx, settings.VerificationWindow, timers.ScheduleRequest{
				UserID:   run.UserID,
				Type:     s.timerType,
				TargetID: app.ID,
				Metadata: map[string]any{
					models.TimerMetaApplicationID: app.ID,
					models.TimerMetaWorkflowRunID: run.ID,
				},
			})
			if err != nil {
				logger.ErrorContext(ctx, "Failed to schedule verification timeout", "timer_type", s.timerType, "error", err)

				current.Metadata.SchedulingError = err.Error()

				err = repos.Runs.Update(ctx, &current)
				if err != nil {
					return fmt.Errorf("failed to record scheduling failure: %w", err)
				}
			}
		}

		*run = current
		*app = *fresh

		return nil
	})
	if errors.Is(err, errRunMoved) {
		logger.InfoContext(ctx, "Workflow run changed during generation, discarding result", "step", s.step)

		return false, nil
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return false, err
	}

	logger.InfoContext(ctx, "Document generated", "kind", s.kind, "awaiting_verification", wait)

	notification.Send(ctx, e.sink, logger, notification.New(run.UserID, s.ready, s.title,
		"Review it now or it will be used automatically when the verification window ends.",
		runMetadata(run),
	))

	return !wait, nil
}

func (e *Engine) callGenerator(ctx context.Context, kind models.DocumentKind, req GenerationRequest) (string, error) {
	var (
		result *GenerationResult
		err    error
	)

	if kind == models.DocumentKindResume {
		result, err = e.generator.GenerateResume(ctx, req)
	} else {
		result, err = e.generator.GenerateCoverLetter(ctx, req)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExternalService, err)
	}

	if result == nil || !result.Success {
		reason := "generation was not successful"
		if result != nil && result.Error != "" {
			reason = result.Error
		}

		return "", fmt.Errorf("%w: %s", ErrExternalService, reason)
	}

	if result.DocumentRef == "" {
		return "", fmt.Errorf("%w: no document reference returned", ErrExternalService)
	}

	return result.DocumentRef, nil
}

// submit applies to the job. The run always stops here: it either completes or fails.
func (e *Engine) submit(
	ctx context.Context,
	logger *slog.Logger,
	run *models.WorkflowRun,
	app *models.Application,
	settings *models.AutomationSettings,
) (bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.WorkflowRunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowStepKey, models.StepSubmit))
	defer span.End()

	err := e.persistence.Transact(ctx, func(ctx context.Context, repos *persistence.Repositories) error {
		moved, err := e.transition(ctx, repos, run, models.WorkflowStatusApplying, models.StepSubmit)
		if err != nil {
			return err
		}

		if !moved {
			return errRunMoved
		}

		fresh, err := repos.Applications.ByID(ctx, app.ID)
		if err != nil {
			return fmt.Errorf("failed to load application: %w", err)
		}

		fresh.Stage = models.StageBeingApplied
		*app = *fresh

		return repos.Applications.Update(ctx, fresh)
	})
	if errors.Is(err, errRunMoved) {
		logger.InfoContext(ctx, "Workflow run advanced concurrently, skipping submission")

		return false, nil
	}

	if err != nil {
		return false, err
	}

	req, err := e.submissionRequest(ctx, run, app)
	if err != nil {
		if persistence.IsNotFound(err) {
			return false, e.fail(ctx, logger, run, models.StepSubmit, models.NotificationApplyFailed, err)
		}

		return false, err
	}

	result, err := e.submitter.Submit(ctx, *req)
	if err == nil && (result == nil || !result.Success) {
		reason := "submission was not successful"
		if result != nil && result.Error != "" {
			reason = result.Error
		}

		err = errors.New(reason)
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrExternalService, err)
		otelhelper.SetError(span, err)

		return false, e.fail(ctx, logger, run, models.StepSubmit, models.NotificationApplyFailed, err)
	}

	appliedAt := e.now()
	if result.SubmittedAt != nil {
		appliedAt = result.SubmittedAt.UTC()
	}

	err = e.persistence.Transact(ctx, func(ctx context.Context, repos *persistence.Repositories) error {
		current := *run

		moved, err := e.transition(ctx, repos, &current, models.WorkflowStatusCompleted, models.StepDone)
		if err != nil {
			return err
		}

		if !moved {
			return errRunMoved
		}

		fresh, err := repos.Applications.ByID(ctx, app.ID)
		if err != nil {
			return fmt.Errorf("failed to load application: %w", err)
		}

		fresh.Stage = models.StageApplied
		fresh.AppliedAt = &appliedAt

		err = repos.Applications.Update(ctx, fresh)
		if err != nil {
			return fmt.Errorf("failed to mark application applied: %w", err)
		}

		if settings.FollowUpEnabled {
			_, err = timers.NewStore(repos.Timers, e.logger).ScheduleIn(ctx, settings.FollowUpInterval, timers.ScheduleRequest{
				UserID:   run.UserID,
				Type:     models.TimerTypeFollowUpReminder,
				TargetID: app.ID,
				Metadata: map[string]any{
					models.TimerMetaApplicationID:  app.ID,
					models.TimerMetaFollowUpNumber: 1,
				},
			})
			if err != nil {
				logger.ErrorContext(ctx, "Failed to schedule follow-up reminder", "error", err)

				current.Metadata.SchedulingError = err.Error()

				err = repos.Runs.Update(ctx, &current)
				if err != nil {
					return fmt.Errorf("failed to record scheduling failure: %w", err)
				}
			}
		}

		*run = current
		*app = *fresh

		return nil
	})
	if errors.Is(err, errRunMoved) {
		// The application was submitted but the run was cancelled meanwhile.
		logger.WarnContext(ctx, "Workflow run changed during submission", "confirmation_id", result.ConfirmationID)

		return false, nil
	}

	if err != nil {
		return false, err
	}

	logger.InfoContext(ctx, "Application submitted", "confirmation_id", result.ConfirmationID)

	notification.Send(ctx, e.sink, logger, notification.New(run.UserID, models.NotificationStatusChanged,
		"Application submitted",
		"Your application was submitted.",
		map[string]any{
			models.TimerMetaApplicationID: app.ID,
			models.TimerMetaWorkflowRunID: run.ID,
			"stage":                       string(models.StageApplied),
			"confirmationId":              result.ConfirmationID,
		},
	))

	return false, nil
}

func (e *Engine) submissionRequest(ctx context.Context, run *models.WorkflowRun, app *models.Application) (*SubmissionRequest, error) {
	repos := e.persistence.Repositories()

	job, err := repos.Jobs.ByID(ctx, app.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	profile, err := repos.Settings.Profile(ctx, run.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}

	req := &SubmissionRequest{
		ApplicationID: app.ID,
		Profile:       *profile,
		ApplyMethod:   job.ApplyMethod,
		ApplyTarget:   job.ApplyTarget,
	}

	req.ResumeRef, err = e.documentRef(ctx, repos, app.ResumeID)
	if err != nil {
		return nil, err
	}

	req.CoverLetterRef, err = e.documentRef(ctx, repos, app.CoverLetterID)
	if err != nil {
		return nil, err
	}

	return req, nil
}

func (e *Engine) documentRef(ctx context.Context, repos *persistence.Repositories, id *string) (*string, error) {
	if id == nil {
		return nil, nil
	}

	doc, err := repos.Documents.ByID(ctx, *id)
	if err != nil {
		if errors.Is(err, persistence.ErrDocumentNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	return &doc.StorageKey, nil
}
