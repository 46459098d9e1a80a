package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	credentialsPath = "/email-credentials"
	healthPath      = "/health"

	// HeaderRequestID correlates a push with the downstream service's logs.
	HeaderRequestID = "X-Request-Id"

	healthTimeout = 5 * time.Second
)

// CredentialPayload is the body of a credential push.
type CredentialPayload struct {
	UserID      string         `json:"userId" validate:"required"`
	Provider    string         `json:"provider" validate:"required"`
	Credentials map[string]any `json:"credentials" validate:"required"`
}

// CredentialResponse is the credential service's answer.
type CredentialResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrRejected indicates the service answered success=false.
var ErrRejected = errors.New("credential sync rejected")

// CredentialSync pushes email credentials to the credential sync service.
type CredentialSync struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewCredentialSync creates a client for the service at baseURL. A nil client uses a
// client with a 30s timeout.
func NewCredentialSync(baseURL string, client *http.Client, logger *slog.Logger) *CredentialSync {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &CredentialSync{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Push sends payload with retries. A response with success=false counts as a failed attempt.
func (s *CredentialSync) Push(ctx context.Context, payload CredentialPayload, requestID string, opts Options) (*CredentialResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential payload: %w", err)
	}

	logger := s.logger.With("user_id", payload.UserID, "provider", payload.Provider, "request_id", requestID)

	previous := opts.OnRetry
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.WarnContext(ctx, "Credential push failed, retrying", "attempt", attempt, "delay", delay, "error", err)

		if previous != nil {
			previous(attempt, delay, err)
		}
	}

	resp, err := Retry(ctx, opts, func(ctx context.Context) (*CredentialResponse, error) {
		return s.push(ctx, body, requestID)
	})
	if err != nil {
		logger.ErrorContext(ctx, "Credential push failed", "error", err)

		return nil, err
	}

	logger.InfoContext(ctx, "Credentials pushed")

	return resp, nil
}

func (s *CredentialSync) push(ctx context.Context, body []byte, requestID string) (*CredentialResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+credentialsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result CredentialResponse

	err = json.Unmarshal(data, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = result.Message
		}

		return nil, fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	return &result, nil
}

// TestConnection probes the service once and reports whether it answered 2xx.
func (s *CredentialSync) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+healthPath, nil)
	if err != nil {
		return false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.DebugContext(ctx, "Credential service unreachable", "error", err)

		return false
	}

	_ = resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
