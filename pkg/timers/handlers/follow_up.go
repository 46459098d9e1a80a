package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/notification"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/timers"
)

// FollowUpReminder reminds the user to follow up on a submitted application, at most
// models.MaxFollowUps times.
func (h *Handlers) FollowUpReminder(ctx context.Context, timer *models.ScheduledTimer) error {
	logger := h.timerLogger(timer)
	repos := h.persistence.Repositories()

	app, err := repos.Applications.ByID(ctx, applicationID(timer))
	if err != nil {
		if persistence.IsApplicationNotFound(err) {
			logger.InfoContext(ctx, "Application is gone, skipping follow-up")

			return nil
		}

		return fmt.Errorf("failed to load application: %w", err)
	}

	if !app.Stage.AcceptsFollowUps() {
		logger.InfoContext(ctx, "Application stage takes no follow-ups", "stage", app.Stage)

		return nil
	}

	settings, err := h.workflow.Settings(ctx, repos, app.UserID)
	if err != nil {
		return err
	}

	var tracking *models.FollowUpTracking

	err = h.persistence.Transact(ctx, func(ctx context.Context, repos *persistence.Repositories) error {
		current, err := repos.FollowUps.ByApplication(ctx, app.ID)
		if errors.Is(err, persistence.ErrFollowUpNotFound) {
			current = &models.FollowUpTracking{ApplicationID: app.ID, UserID: app.UserID}
		} else if err != nil {
			return fmt.Errorf("failed to load follow-up tracking: %w", err)
		}

		if current.FollowUpCount >= models.MaxFollowUps {
			return nil
		}

		now := h.now()
		current.FollowUpCount++
		current.LastFollowUpAt = &now

		err = repos.FollowUps.Save(ctx, current)
		if err != nil {
			return fmt.Errorf("failed to save follow-up tracking: %w", err)
		}

		tracking = current

		if current.FollowUpCount >= models.MaxFollowUps {
			return nil
		}

		_, err = timers.NewStore(repos.Timers, h.logger).ScheduleIn(ctx, settings.FollowUpInterval, timers.ScheduleRequest{
			UserID:   app.UserID,
			Type:     models.TimerTypeFollowUpReminder,
			TargetID: app.ID,
			Metadata: map[string]any{
				models.TimerMetaApplicationID:  app.ID,
				models.TimerMetaFollowUpNumber: current.FollowUpCount + 1,
			},
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to schedule next follow-up", "error", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if tracking == nil {
		logger.InfoContext(ctx, "Follow-up limit reached", "application_id", app.ID)

		return nil
	}

	logger.InfoContext(ctx, "Follow-up reminder sent", "application_id", app.ID, "follow_up_count", tracking.FollowUpCount)

	notification.Send(ctx, h.sink, logger, notification.New(app.UserID, models.NotificationFollowUpReminder,
		"Time to follow up",
		fmt.Sprintf("Consider following up on your application (reminder %d of %d).", tracking.FollowUpCount, models.MaxFollowUps),
		map[string]any{
			models.TimerMetaApplicationID:  app.ID,
			models.TimerMetaJobID:          app.JobID,
			models.TimerMetaFollowUpNumber: tracking.FollowUpCount,
		},
	))

	if settings.AutoFollowUpEmail && h.mailer != nil {
		err = h.mailer.SendFollowUp(ctx, FollowUpEmail{
			UserID:         app.UserID,
			ApplicationID:  app.ID,
			JobID:          app.JobID,
			FollowUpNumber: tracking.FollowUpCount,
		})
		if err != nil {
			logger.WarnContext(ctx, "Failed to send follow-up email", "error", err)
		}
	}

	return nil
}
