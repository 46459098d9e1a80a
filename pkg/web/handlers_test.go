package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/applyflow/pkg/idempotency"
	"github.com/dukex/applyflow/pkg/mocks"
	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/notification"
	"github.com/dukex/applyflow/pkg/persistence/memory"
	"github.com/dukex/applyflow/pkg/services"
	"github.com/dukex/applyflow/pkg/testutil"
	"github.com/dukex/applyflow/pkg/transmission"
	"github.com/dukex/applyflow/pkg/web"
	"github.com/dukex/applyflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

type fixture struct {
	app    *fiber.App
	store  *memory.Persistence
	broker *notification.Broker
	job    models.Job
}

func setup(t *testing.T, credentialsURL string) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	broker := notification.NewBroker(8, testutil.DiscardLogger())
	engine := workflow.NewEngine(workflow.Dependencies{
		Persistence: store,
		Generator:   &mocks.MockGenerator{},
		Submitter:   &mocks.MockSubmitter{},
		Sink:        broker,
		Logger:      testutil.DiscardLogger(),
	})

	job := testutil.CreateTestJob()
	store.AddJob(job)

	if credentialsURL == "" {
		credentialsURL = "http://127.0.0.1:1"
	}

	handlers := web.NewAPIHandlers(web.Dependencies{
		Persistence: store,
		Acceptance:  services.NewAcceptance(store, engine, testutil.DiscardLogger()),
		Rollback:    services.NewRollback(store, engine, testutil.DiscardLogger()),
		Engine:      engine,
		Broker:      broker,
		Credentials: transmission.NewCredentialSync(credentialsURL, nil, testutil.DiscardLogger()),
		Retry:       transmission.Options{MaxRetries: 0, RetryDelay: time.Millisecond},
		Logger:      testutil.DiscardLogger(),
	})

	app := web.NewApp(handlers, web.AppConfig{
		Idempotency: idempotency.Config{
			Store:  idempotency.NewMemoryStore(),
			Logger: testutil.DiscardLogger(),
		},
	})

	return &fixture{app: app, store: store, broker: broker, job: job}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.HeaderUserID, userID)

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAcceptJob(t *testing.T) {
	t.Parallel()

	f := setup(t, "")

	resp, body := f.do(t, http.MethodPost, "/jobs/"+f.job.ID+"/accept", web.AcceptJobRequest{
		Metadata: map[string]any{"source": "board"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var result services.AcceptResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, models.StageSyncing, result.Application.Stage)
	assert.Equal(t, models.WorkflowStatusPending, result.Workflow.Status)
	assert.NotEmpty(t, result.AutoApplyTimerID)

	t.Run("second acceptance conflicts", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/jobs/"+f.job.ID+"/accept", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "conflict", problemType(t, body))
	})
}

func TestAcceptJob_Errors(t *testing.T) {
	t.Parallel()

	f := setup(t, "")

	resp, body := f.do(t, http.MethodPost, "/jobs/missing/accept", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "job_not_found", problemType(t, body))

}

func TestRoutes_RequireUser(t *testing.T) {
	t.Parallel()

	f := setup(t, "")

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/jobs/" + f.job.ID + "/accept"},
		{http.MethodDelete, "/jobs/" + f.job.ID + "/accept"},
		{http.MethodPost, "/applications/app-1/verifications/cv"},
		{http.MethodPost, "/credentials/sync"},
		{http.MethodGet, "/credentials/sync/health"},
		{http.MethodGet, "/notifications?timeout=1ms"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set(idempotency.HeaderKey, "anonymous-1")

			resp, err := f.app.Test(req)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	t.Run("accept still works for the user", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/jobs/"+f.job.ID+"/accept", nil)
		assert.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	})
}

func TestAcceptJob_IdempotentReplay(t *testing.T) {
	t.Parallel()

	f := setup(t, "")
	path := "/jobs/" + f.job.ID + "/accept"

	first, firstBody := f.do(t, http.MethodPost, path, nil, idempotency.HeaderKey, "accept-1")
	require.Equal(t, http.StatusCreated, first.StatusCode, string(firstBody))
	assert.Empty(t, first.Header.Get(idempotency.HeaderReplayed))

	second, secondBody := f.do(t, http.MethodPost, path, nil, idempotency.HeaderKey, "accept-1")
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(idempotency.HeaderReplayed))
	assert.JSONEq(t, string(firstBody), string(secondBody))
}

func TestRollbackJob(t *testing.T) {
	t.Parallel()

	f := setup(t, "")
	path := "/jobs/" + f.job.ID + "/accept"

	resp, body := f.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var accepted services.AcceptResult
	require.NoError(t, json.Unmarshal(body, &accepted))

	resp, body = f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result services.RollbackResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, accepted.Application.ID, result.ApplicationID)
	assert.Equal(t, accepted.Workflow.ID, result.CancelledRunID)
	assert.Equal(t, int64(1), result.PurgedTimers)
	assert.Empty(t, result.CleanupTimerID)

	resp, body = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application_not_found", problemType(t, body))
}

func TestConfirmVerification_Errors(t *testing.T) {
	t.Parallel()

	f := setup(t, "")

	resp, body := f.do(t, http.MethodPost, "/jobs/"+f.job.ID+"/accept", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var accepted services.AcceptResult
	require.NoError(t, json.Unmarshal(body, &accepted))

	tests := []struct {
		name         string
		path         string
		expected     int
		expectedType string
	}{
		{
			name:         "unknown kind",
			path:         "/applications/" + accepted.Application.ID + "/verifications/portfolio",
			expected:     http.StatusBadRequest,
			expectedType: "validation_error",
		},
		{
			name:         "not waiting for the verification",
			path:         "/applications/" + accepted.Application.ID + "/verifications/cv",
			expected:     http.StatusConflict,
			expectedType: "invalid_checkpoint",
		},
		{
			name:         "unknown application",
			path:         "/applications/missing/verifications/cv",
			expected:     http.StatusNotFound,
			expectedType: "application_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, tt.path, nil)
			assert.Equal(t, tt.expected, resp.StatusCode, string(body))
			assert.Equal(t, tt.expectedType, problemType(t, body))
		})
	}
}

func TestSyncCredentials(t *testing.T) {
	t.Parallel()

	var got transmission.CredentialPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)

			return
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"message":"stored"}`))
	}))
	defer server.Close()

	f := setup(t, server.URL)

	resp, body := f.do(t, http.MethodPost, "/credentials/sync", web.CredentialSyncRequest{
		Provider:    "gmail",
		Credentials: map[string]any{"refresh_token": "secret"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "stored")
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "gmail", got.Provider)

	resp, body = f.do(t, http.MethodPost, "/credentials/sync", web.CredentialSyncRequest{
		Provider:    "carrier-pigeon",
		Credentials: map[string]any{"token": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", problemType(t, body))

	resp, _ = f.do(t, http.MethodGet, "/credentials/sync/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSyncCredentials_Rejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"invalid token"}`))
	}))
	defer server.Close()

	f := setup(t, server.URL)

	resp, body := f.do(t, http.MethodPost, "/credentials/sync", web.CredentialSyncRequest{
		Provider:    "imap",
		Credentials: map[string]any{"password": "x"},
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "credential_sync_rejected", problemType(t, body))
}

func TestNotifications(t *testing.T) {
	t.Parallel()

	t.Run("timeout without notifications", func(t *testing.T) {
		f := setup(t, "")

		resp, _ := f.do(t, http.MethodGet, "/notifications?timeout=20ms", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("invalid timeout", func(t *testing.T) {
		f := setup(t, "")

		resp, _ := f.do(t, http.MethodGet, "/notifications?timeout=soon", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("delivers a notification", func(t *testing.T) {
		f := setup(t, "")

		go func() {
			for f.broker.Subscribers(userID) == 0 {
				time.Sleep(time.Millisecond)
			}

			_ = f.broker.Notify(context.Background(), notification.New(
				userID, models.NotificationCVReady, "Resume ready", "Review it", nil,
			))
		}()

		resp, body := f.do(t, http.MethodGet, "/notifications?timeout=800ms", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result web.NotificationsResponse
		require.NoError(t, json.Unmarshal(body, &result))
		require.Len(t, result.Notifications, 1)
		assert.Equal(t, models.NotificationCVReady, result.Notifications[0].Type)
		assert.Eventually(t, func() bool { return f.broker.Subscribers(userID) == 0 }, time.Second, 5*time.Millisecond)
	})
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	f := setup(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health web.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, strings.HasPrefix(health.Message, "applyflow"))
}
