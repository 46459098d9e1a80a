package web

import (
	"github.com/dukex/applyflow/pkg/idempotency"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// AppConfig configures the API application.
type AppConfig struct {
	Idempotency idempotency.Config
	// AccessLog enables the fiber request logger.
	AccessLog bool
}

// NewApp builds the fiber application with every route mounted. Mutating routes are guarded
// by the idempotency middleware.
func NewApp(handlers *APIHandlers, config AppConfig) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())

	if config.AccessLog {
		app.Use(logger.New(logger.Config{
			DisableColors: true,
		}))
	}

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	if config.Idempotency.UserID == nil {
		config.Idempotency.UserID = UserID
	}

	guard := idempotency.New(config.Idempotency)

	// fiber v3 takes the route handler first; the middleware that follows runs before it.
	app.Post("/jobs/:id/accept", handlers.AcceptJob, RequireUser, guard)
	app.Delete("/jobs/:id/accept", handlers.RollbackJob, RequireUser, guard)
	app.Post("/applications/:id/verifications/:kind", handlers.ConfirmVerification, RequireUser, guard)

	app.Post("/credentials/sync", handlers.SyncCredentials, RequireUser, guard)
	app.Get("/credentials/sync/health", handlers.CredentialServiceHealth, RequireUser)

	app.Get("/notifications", handlers.Notifications, RequireUser)

	return app
}
