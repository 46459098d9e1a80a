package web

import (
	"time"

	"github.com/dukex/applyflow/pkg/models"
)

// HeaderUserID identifies the caller. Authentication happens in front of this API.
const HeaderUserID = "X-User-Id"

// AcceptJobRequest is the optional body of POST /jobs/:id/accept.
type AcceptJobRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CredentialSyncRequest is the body of POST /credentials/sync.
type CredentialSyncRequest struct {
	Provider    string         `json:"provider"    validate:"required,oneof=gmail outlook imap"`
	Credentials map[string]any `json:"credentials" validate:"required,min=1"`
}

// NotificationsResponse is returned by the notification long-poll.
type NotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
}

// HealthResponse reports the state of the API's dependencies.
type HealthResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Checkers  map[string]string `json:"checkers"`
	Timestamp time.Time         `json:"timestamp"`
}
