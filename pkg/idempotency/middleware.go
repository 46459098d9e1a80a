package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

const (
	// HeaderKey carries the client-chosen idempotency key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed is set on replayed responses.
	HeaderReplayed = "Idempotent-Replayed"
)

// Config configures the middleware.
type Config struct {
	Store Store

	// UserID scopes keys to the caller. Keys of different users never collide.
	UserID func(c fiber.Ctx) string

	// TTL defaults to models.IdempotencyTTL.
	TTL time.Duration
	// Wait bounds how long a duplicate waits for the original request. Defaults to 5s.
	Wait time.Duration
	// PollInterval defaults to 50ms.
	PollInterval time.Duration

	Logger *slog.Logger
}

// New returns middleware that runs a keyed request once and replays its response to
// duplicates. Requests without the header pass through.
func New(config Config) fiber.Handler {
	if config.TTL <= 0 {
		config.TTL = models.IdempotencyTTL
	}

	if config.Wait <= 0 {
		config.Wait = 5 * time.Second
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 50 * time.Millisecond
	}

	if config.UserID == nil {
		config.UserID = func(fiber.Ctx) string { return "" }
	}

	return func(c fiber.Ctx) error {
		key := c.Get(HeaderKey)
		if key == "" || c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
			return c.Next()
		}

		now := time.Now().UTC()
		record := &models.IdempotencyRecord{
			UserID:      config.UserID(c),
			Key:         key,
			RequestHash: Fingerprint(c.Method(), c.Path(), c.Body()),
			ExpiresAt:   now.Add(config.TTL),
			CreatedAt:   now,
		}

		ctx := c.Context()

		claimed, existing, err := config.Store.Claim(ctx, record)
		if err != nil {
			return problem(c, fiber.StatusInternalServerError, "internal_error", err.Error())
		}

		if !claimed {
			return replay(c, config, record, existing)
		}

		err = c.Next()

		status := c.Response().StatusCode()
		if err != nil || status >= fiber.StatusInternalServerError {
			releaseErr := config.Store.Release(ctx, record.UserID, key)
			if releaseErr != nil {
				config.Logger.ErrorContext(ctx, "Failed to release idempotency key", "key", key, "error", releaseErr)
			}

			return err
		}

		record.StatusCode = status
		record.ContentType = string(c.Response().Header.ContentType())
		record.Response = bytes.Clone(c.Response().Body())

		err = config.Store.Complete(ctx, record)
		if err != nil {
			config.Logger.ErrorContext(ctx, "Failed to store idempotent response", "key", key, "error", err)
		}

		return nil
	}
}

func replay(c fiber.Ctx, config Config, record, existing *models.IdempotencyRecord) error {
	if existing.RequestHash != record.RequestHash {
		return problem(c, fiber.StatusUnprocessableEntity, "idempotency_key_reused",
			"Idempotency-Key was already used for a different request")
	}

	ctx := c.Context()
	deadline := time.Now().Add(config.Wait)
	ticker := time.NewTicker(config.PollInterval)

	defer ticker.Stop()

	for !existing.Completed() {
		if time.Now().After(deadline) {
			return problem(c, fiber.StatusConflict, "request_in_progress",
				"A request with this Idempotency-Key is still being processed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := config.Store.Get(ctx, record.UserID, record.Key)
		if errors.Is(err, ErrRecordNotFound) {
			return problem(c, fiber.StatusConflict, "request_in_progress",
				"The original request failed; retry with the same Idempotency-Key")
		}

		if err != nil {
			return problem(c, fiber.StatusInternalServerError, "internal_error", err.Error())
		}

		existing = current
	}

	if existing.ContentType != "" {
		c.Set(fiber.HeaderContentType, existing.ContentType)
	}

	c.Set(HeaderReplayed, "true")

	return c.Status(existing.StatusCode).Send(existing.Response)
}

// Fingerprint identifies a request by method, path and body.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)

	return hex.EncodeToString(h.Sum(nil))
}

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}
