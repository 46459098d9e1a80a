// Package web provides the HTTP API of the application workflow.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/notification"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/services"
	"github.com/dukex/applyflow/pkg/transmission"
	"github.com/dukex/applyflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	defaultPollTimeout = 25 * time.Second
	maxPollTimeout     = 60 * time.Second
)

// Dependencies are the services the handlers call.
type Dependencies struct {
	Persistence persistence.Persistence
	Acceptance  *services.Acceptance
	Rollback    *services.Rollback
	Engine      *workflow.Engine
	Broker      *notification.Broker
	Credentials *transmission.CredentialSync
	Retry       transmission.Options
	Validator   *validator.Validate
	Logger      *slog.Logger
}

type APIHandlers struct {
	deps Dependencies
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	if deps.Validator == nil {
		deps.Validator = validator.New(validator.WithRequiredStructEnabled())
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &APIHandlers{deps: deps}
}

// RequireUser rejects requests without a caller identity.
func RequireUser(c fiber.Ctx) error {
	if c.Get(HeaderUserID) == "" {
		return unauthorized(c)
	}

	return c.Next()
}

// UserID returns the caller identity of the request.
func UserID(c fiber.Ctx) string {
	return c.Get(HeaderUserID)
}

func (h *APIHandlers) AcceptJob(c fiber.Ctx) error {
	var req AcceptJobRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.deps.Acceptance.AcceptJob(c.Context(), UserID(c), c.Params("id"), req.Metadata)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) RollbackJob(c fiber.Ctx) error {
	result, err := h.deps.Rollback.Rollback(c.Context(), UserID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ConfirmVerification(c fiber.Ctx) error {
	run, err := h.deps.Engine.ConfirmVerification(
		c.Context(),
		UserID(c),
		c.Params("id"),
		workflow.VerificationKind(c.Params("kind")),
	)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) SyncCredentials(c fiber.Ctx) error {
	var req CredentialSyncRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.deps.Validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	payload := transmission.CredentialPayload{
		UserID:      UserID(c),
		Provider:    req.Provider,
		Credentials: req.Credentials,
	}

	resp, err := h.deps.Credentials.Push(c.Context(), payload, c.Get(transmission.HeaderRequestID), h.deps.Retry)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) CredentialServiceHealth(c fiber.Ctx) error {
	if !h.deps.Credentials.TestConnection(c.Context()) {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"reachable": false})
	}

	return c.JSON(fiber.Map{"reachable": true})
}

// Notifications long-polls the caller's notifications. It answers with everything that
// arrived after the first one, or 204 when the timeout elapses.
func (h *APIHandlers) Notifications(c fiber.Ctx) error {
	timeout := defaultPollTimeout

	if raw := c.Query("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return badRequest(c, "timeout must be a positive duration")
		}

		timeout = min(parsed, maxPollTimeout)
	}

	notifications := h.wait(c.Context(), UserID(c), timeout)
	if len(notifications) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(NotificationsResponse{Notifications: notifications})
}

func (h *APIHandlers) wait(ctx context.Context, userID string, timeout time.Duration) []*models.Notification {
	sub := h.deps.Broker.Subscribe(userID)
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var received []*models.Notification

	select {
	case n, ok := <-sub.C():
		if !ok {
			return nil
		}

		received = append(received, n)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}

	for {
		select {
		case n, ok := <-sub.C():
			if !ok {
				return received
			}

			received = append(received, n)
		default:
			return received
		}
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "applyflow API is healthy"
	httpStatus := http.StatusOK
	repository := "ok"

	if err := h.deps.Persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "applyflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repository = err.Error()
	}

	return c.Status(httpStatus).JSON(HealthResponse{
		Status:    status,
		Message:   message,
		Checkers:  map[string]string{"repository": repository},
		Timestamp: time.Now().UTC(),
	})
}
