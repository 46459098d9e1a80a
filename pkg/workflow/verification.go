package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/timers"
)

// VerificationKind names a verification checkpoint.
type VerificationKind string

const (
	VerificationCV      VerificationKind = "cv"
	VerificationMessage VerificationKind = "message"
)

type checkpoint struct {
	stage     models.Stage
	status    models.WorkflowStatus
	timerType models.TimerType
}

var checkpoints = map[VerificationKind]checkpoint{
	VerificationCV: {
		stage:     models.StageCVCheck,
		status:    models.WorkflowStatusWaitingCVVerification,
		timerType: models.TimerTypeCVVerification,
	},
	VerificationMessage: {
		stage:     models.StageMessageCheck,
		status:    models.WorkflowStatusWaitingMessageVerification,
		timerType: models.TimerTypeMessageVerification,
	},
}

// ConfirmVerification lets the user approve a generated document before its verification
// window ends. The pending timeout timer is cancelled and the run resumes immediately.
func (e *Engine) ConfirmVerification(ctx context.Context, userID, applicationID string, kind VerificationKind) (*models.WorkflowRun, error) {
	cp, ok := checkpoints[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerification, kind)
	}

	repos := e.persistence.Repositories()

	app, err := repos.Applications.ByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if app.UserID != userID {
		return nil, persistence.NewEntityError("ConfirmVerification", "application", applicationID, persistence.ErrApplicationNotFound)
	}

	if app.Stage != cp.stage {
		return nil, fmt.Errorf("%w: stage is %s", ErrInvalidCheckpoint, app.Stage)
	}

	run, err := repos.Runs.LatestByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if run.Status != cp.status {
		return nil, fmt.Errorf("%w: workflow run is %s", ErrInvalidCheckpoint, run.Status)
	}

	_, err = timers.NewStore(repos.Timers, e.logger).CancelByTarget(ctx, applicationID, cp.timerType)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Verification confirmed",
		"workflow_run_id", run.ID,
		"application_id", applicationID,
		"kind", kind)

	err = e.Process(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	return repos.Runs.ByID(ctx, run.ID)
}
