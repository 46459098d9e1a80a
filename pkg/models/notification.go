package models

import "time"

// NotificationType names a user-facing event.
type NotificationType string

const (
	NotificationCVReady          NotificationType = "cv_ready"
	NotificationMessageReady     NotificationType = "message_ready"
	NotificationGenerationFailed NotificationType = "generation_failed"
	NotificationStatusChanged    NotificationType = "status_changed"
	NotificationApplyFailed      NotificationType = "apply_failed"
	NotificationFollowUpReminder NotificationType = "follow_up_reminder"
)

// Notification is delivered to a user through a notification sink.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
