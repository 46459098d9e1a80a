package transmission_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/applyflow/pkg/testutil"
	"github.com/dukex/applyflow/pkg/transmission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_ExhaustsWithExponentialDelays(t *testing.T) {
	var (
		attempts int
		delays   []time.Duration
	)

	opts := transmission.Options{
		MaxRetries: 2,
		RetryDelay: 100 * time.Millisecond,
		OnRetry: func(_ int, delay time.Duration, _ error) {
			delays = append(delays, delay)
		},
	}

	start := time.Now()

	_, err := transmission.Retry(context.Background(), opts, func(context.Context) (string, error) {
		attempts++

		return "", errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestRetry_ReturnsEarlySuccess(t *testing.T) {
	attempts := 0

	result, err := transmission.Retry(context.Background(), transmission.Options{MaxRetries: 3, RetryDelay: time.Millisecond},
		func(context.Context) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("unavailable")
			}

			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ZeroDelayRetriesImmediately(t *testing.T) {
	var delays []time.Duration

	opts := transmission.Options{
		MaxRetries: 2,
		OnRetry: func(_ int, delay time.Duration, _ error) {
			delays = append(delays, delay)
		},
	}

	start := time.Now()

	_, err := transmission.Retry(context.Background(), opts, func(context.Context) (string, error) {
		return "", errors.New("refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, []time.Duration{0, 0}, delays)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetry_ZeroRetriesRunsOnce(t *testing.T) {
	attempts := 0

	_, err := transmission.Retry(context.Background(), transmission.Options{MaxRetries: 0, RetryDelay: time.Millisecond},
		func(context.Context) (bool, error) {
			attempts++

			return false, errors.New("down")
		})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "1 attempts")
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	_, err := transmission.Retry(ctx, transmission.Options{MaxRetries: 5, RetryDelay: time.Hour},
		func(context.Context) (bool, error) {
			attempts++
			cancel()

			return false, errors.New("down")
		})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func credentialServer(t *testing.T, responses ...func(w http.ResponseWriter)) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)

			return
		case "/email-credentials":
		default:
			http.NotFound(w, r)

			return
		}

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "req-1", r.Header.Get(transmission.HeaderRequestID))

		var payload transmission.CredentialPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "user-1", payload.UserID)

		n := int(calls.Add(1))
		if n > len(responses) {
			n = len(responses)
		}

		responses[n-1](w)
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

var payload = transmission.CredentialPayload{
	UserID:      "user-1",
	Provider:    "gmail",
	Credentials: map[string]any{"refreshToken": "secret"},
}

func TestCredentialSync_PushRetriesRejections(t *testing.T) {
	server, calls := credentialServer(t,
		reply(http.StatusOK, `{"success":false,"error":"mailbox locked"}`),
		reply(http.StatusServiceUnavailable, `busy`),
		reply(http.StatusOK, `{"success":true,"message":"stored"}`),
	)

	sync := transmission.NewCredentialSync(server.URL, nil, testutil.DiscardLogger())

	resp, err := sync.Push(context.Background(), payload, "req-1", transmission.Options{MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "stored", resp.Message)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCredentialSync_PushGivesUp(t *testing.T) {
	server, calls := credentialServer(t, reply(http.StatusOK, `{"success":false,"error":"invalid credentials"}`))

	sync := transmission.NewCredentialSync(server.URL+"/", nil, testutil.DiscardLogger())

	_, err := sync.Push(context.Background(), payload, "req-1", transmission.Options{MaxRetries: 1, RetryDelay: time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, transmission.ErrRejected)
	assert.Contains(t, err.Error(), "2 attempts")
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.EqualValues(t, 2, calls.Load())
}

func TestCredentialSync_TestConnection(t *testing.T) {
	server, _ := credentialServer(t, reply(http.StatusOK, `{}`))
	sync := transmission.NewCredentialSync(server.URL, nil, testutil.DiscardLogger())

	assert.True(t, sync.TestConnection(context.Background()))

	server.Close()
	assert.False(t, sync.TestConnection(context.Background()))
}
