// Package handlers implements the timer handlers of the auto-apply workflow. Every handler
// re-reads the state it acts on, since a timer may fire long after it was scheduled.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/notification"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/timers"
)

// Workflow is the part of the workflow engine the handlers drive.
type Workflow interface {
	Process(ctx context.Context, runID string) error
	Settings(ctx context.Context, repos *persistence.Repositories, userID string) (*models.AutomationSettings, error)
}

// DocumentStorage removes stored document files.
type DocumentStorage interface {
	Delete(ctx context.Context, storageKey string) error
}

// FollowUpEmail asks the mailer to nudge a recruiter about an application.
type FollowUpEmail struct {
	UserID         string `json:"userId"`
	ApplicationID  string `json:"applicationId"`
	JobID          string `json:"jobId"`
	FollowUpNumber int    `json:"followUpNumber"`
}

// Mailer sends follow-up emails.
type Mailer interface {
	SendFollowUp(ctx context.Context, email FollowUpEmail) error
}

// Dependencies wires Handlers. Mailer and Sink are optional.
type Dependencies struct {
	Persistence persistence.Persistence
	Workflow    Workflow
	Storage     DocumentStorage
	Mailer      Mailer
	Sink        notification.Sink
	Logger      *slog.Logger
}

// Handlers holds the timer handlers.
type Handlers struct {
	persistence persistence.Persistence
	workflow    Workflow
	storage     DocumentStorage
	mailer      Mailer
	sink        notification.Sink
	logger      *slog.Logger
	now         func() time.Time
}

func New(deps Dependencies) *Handlers {
	sink := deps.Sink
	if sink == nil {
		sink = notification.Discard{}
	}

	return &Handlers{
		persistence: deps.Persistence,
		workflow:    deps.Workflow,
		storage:     deps.Storage,
		mailer:      deps.Mailer,
		sink:        sink,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register binds every handler to its timer type.
func (h *Handlers) Register(registry *timers.Registry) error {
	handlers := map[models.TimerType]timers.Handler{
		models.TimerTypeAutoApplyDelay:      h.AutoApplyDelay,
		models.TimerTypeCVVerification:      h.CVVerification,
		models.TimerTypeMessageVerification: h.MessageVerification,
		models.TimerTypeDocDeletion:         h.DocDeletion,
		models.TimerTypeFollowUpReminder:    h.FollowUpReminder,
	}

	for _, t := range models.TimerTypes() {
		err := registry.Register(t, handlers[t])
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", t, err)
		}
	}

	return nil
}

func (h *Handlers) timerLogger(timer *models.ScheduledTimer) *slog.Logger {
	return h.logger.With("timer_id", timer.ID, "timer_type", timer.Type, "target_id", timer.TargetID)
}

func applicationID(timer *models.ScheduledTimer) string {
	if id := timer.MetadataString(models.TimerMetaApplicationID); id != "" {
		return id
	}

	return timer.TargetID
}
