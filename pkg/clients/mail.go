package clients

import (
	"context"
	"net/http"

	"github.com/dukex/applyflow/pkg/timers/handlers"
)

var _ handlers.Mailer = (*Mailer)(nil)

// Mailer asks the mail service to send follow-up emails.
type Mailer struct {
	http jsonClient
}

func NewMailer(baseURL string, client *http.Client) *Mailer {
	return &Mailer{http: newJSONClient(baseURL, client)}
}

func (m *Mailer) SendFollowUp(ctx context.Context, email handlers.FollowUpEmail) error {
	return m.http.post(ctx, "/follow-ups", email, nil)
}
