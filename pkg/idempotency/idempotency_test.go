package idempotency_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/applyflow/pkg/idempotency"
	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T, store idempotency.Store, wait time.Duration, calls *atomic.Int32, status int) *fiber.App {
	t.Helper()

	app := fiber.New()
	app.Use(idempotency.New(idempotency.Config{
		Store:        store,
		UserID:       func(c fiber.Ctx) string { return c.Get("X-User-Id") },
		Wait:         wait,
		PollInterval: 10 * time.Millisecond,
		Logger:       testutil.DiscardLogger(),
	}))
	app.Post("/jobs/:id/accept", func(c fiber.Ctx) error {
		n := calls.Add(1)

		return c.Status(status).JSON(fiber.Map{"call": n, "job": c.Params("id")})
	})

	return app
}

func request(key, user, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/jobs/job-1/accept", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", user)

	if key != "" {
		req.Header.Set(idempotency.HeaderKey, key)
	}

	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestMiddleware_ReplaysFirstResponse(t *testing.T) {
	var calls atomic.Int32
	app := setupApp(t, idempotency.NewMemoryStore(), time.Second, &calls, fiber.StatusCreated)

	first, err := app.Test(request("key-1", "user-1", `{}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, first.StatusCode)
	firstBody := readBody(t, first)
	assert.Empty(t, first.Header.Get(idempotency.HeaderReplayed))

	second, err := app.Test(request("key-1", "user-1", `{}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(idempotency.HeaderReplayed))
	assert.Equal(t, firstBody, readBody(t, second))
	assert.Contains(t, second.Header.Get("Content-Type"), "application/json")

	assert.EqualValues(t, 1, calls.Load())
}

func TestMiddleware_KeysAreScopedPerUser(t *testing.T) {
	var calls atomic.Int32
	app := setupApp(t, idempotency.NewMemoryStore(), time.Second, &calls, fiber.StatusCreated)

	_, err := app.Test(request("key-1", "user-1", `{}`))
	require.NoError(t, err)
	_, err = app.Test(request("key-1", "user-2", `{}`))
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
}

func TestMiddleware_WithoutKeyPassesThrough(t *testing.T) {
	var calls atomic.Int32
	app := setupApp(t, idempotency.NewMemoryStore(), time.Second, &calls, fiber.StatusCreated)

	for range 2 {
		resp, err := app.Test(request("", "user-1", `{}`))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	assert.EqualValues(t, 2, calls.Load())
}

func TestMiddleware_DifferentRequestWithSameKey(t *testing.T) {
	var calls atomic.Int32
	app := setupApp(t, idempotency.NewMemoryStore(), time.Second, &calls, fiber.StatusCreated)

	_, err := app.Test(request("key-1", "user-1", `{"a":1}`))
	require.NoError(t, err)

	resp, err := app.Test(request("key-1", "user-1", `{"a":2}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "idempotency_key_reused")
	assert.EqualValues(t, 1, calls.Load())
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	var calls atomic.Int32
	app := setupApp(t, idempotency.NewMemoryStore(), time.Second, &calls, fiber.StatusBadGateway)

	for range 2 {
		resp, err := app.Test(request("key-1", "user-1", `{}`))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
		assert.Empty(t, resp.Header.Get(idempotency.HeaderReplayed))
	}

	assert.EqualValues(t, 2, calls.Load())
}

func inFlight(t *testing.T, store idempotency.Store, key, body string) *models.IdempotencyRecord {
	t.Helper()

	record := &models.IdempotencyRecord{
		UserID:      "user-1",
		Key:         key,
		RequestHash: idempotency.Fingerprint(http.MethodPost, "/jobs/job-1/accept", []byte(body)),
		ExpiresAt:   time.Now().Add(time.Hour),
		CreatedAt:   time.Now(),
	}

	claimed, _, err := store.Claim(context.Background(), record)
	require.NoError(t, err)
	require.True(t, claimed)

	return record
}

func TestMiddleware_InFlightDuplicateConflicts(t *testing.T) {
	var calls atomic.Int32
	store := idempotency.NewMemoryStore()
	app := setupApp(t, store, 30*time.Millisecond, &calls, fiber.StatusCreated)

	inFlight(t, store, "key-1", `{}`)

	resp, err := app.Test(request("key-1", "user-1", `{}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Zero(t, calls.Load())
}

func TestMiddleware_DuplicateWaitsForOriginal(t *testing.T) {
	var calls atomic.Int32
	store := idempotency.NewMemoryStore()
	app := setupApp(t, store, 500*time.Millisecond, &calls, fiber.StatusCreated)

	record := inFlight(t, store, "key-1", `{}`)

	go func() {
		time.Sleep(30 * time.Millisecond)

		record.StatusCode = fiber.StatusAccepted
		record.ContentType = "text/plain"
		record.Response = []byte("original")
		_ = store.Complete(context.Background(), record)
	}()

	resp, err := app.Test(request("key-1", "user-1", `{}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "original", readBody(t, resp))
	assert.Equal(t, "true", resp.Header.Get(idempotency.HeaderReplayed))
	assert.Zero(t, calls.Load())
}

func TestMemoryStore_ConcurrentClaimHasOneWinner(t *testing.T) {
	store := idempotency.NewMemoryStore()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			claimed, _, err := store.Claim(context.Background(), &models.IdempotencyRecord{
				UserID:    "user-1",
				Key:       "key-1",
				ExpiresAt: time.Now().Add(time.Hour),
			})
			assert.NoError(t, err)

			if claimed {
				winners.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.EqualValues(t, 1, winners.Load())
}

func TestMemoryStore_ExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := idempotency.NewMemoryStore()

	expired := &models.IdempotencyRecord{UserID: "user-1", Key: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	claimed, _, err := store.Claim(ctx, expired)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = store.Get(ctx, "user-1", "old")
	require.ErrorIs(t, err, idempotency.ErrRecordNotFound)

	// An expired holder does not block a new claim.
	claimed, _, err = store.Claim(ctx, &models.IdempotencyRecord{UserID: "user-1", Key: "old", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, claimed)

	_, _, err = store.Claim(ctx, &models.IdempotencyRecord{UserID: "user-1", Key: "stale", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)

	janitor := idempotency.NewJanitor(store, "", testutil.DiscardLogger())
	removed, err := janitor.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestJanitor_InvalidSchedule(t *testing.T) {
	janitor := idempotency.NewJanitor(idempotency.NewMemoryStore(), "every tuesday", testutil.DiscardLogger())

	assert.Error(t, janitor.Start(context.Background()))
	janitor.Stop(context.Background())
}
