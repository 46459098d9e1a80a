// Package notification delivers user notifications produced by the workflow and timer handlers.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/google/uuid"
)

// Sink accepts notifications. Producers treat delivery as fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// New builds a notification with a fresh id.
func New(userID string, t models.NotificationType, title, message string, metadata map[string]any) *models.Notification {
	return &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      t,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Send delivers n and logs a failure instead of returning it.
func Send(ctx context.Context, sink Sink, logger *slog.Logger, n *models.Notification) {
	if sink == nil {
		return
	}

	err := sink.Notify(ctx, n)
	if err != nil {
		logger.WarnContext(ctx, "Failed to deliver notification",
			"notification_type", n.Type,
			"user_id", n.UserID,
			"error", err)
	}
}

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n *models.Notification) error {
	var errs []error

	for _, sink := range m {
		err := sink.Notify(ctx, n)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, *models.Notification) error { return nil }
