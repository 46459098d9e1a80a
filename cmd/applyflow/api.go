package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/applyflow/pkg/cmd"
	"github.com/dukex/applyflow/pkg/idempotency"
	"github.com/dukex/applyflow/pkg/log"
	"github.com/dukex/applyflow/pkg/services"
	"github.com/dukex/applyflow/pkg/transmission"
	"github.com/dukex/applyflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 10 * time.Second
)

func NewAPICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "with-dispatcher",
				Usage:   "Also run the timer dispatcher in this process (required with memory persistence)",
				Sources: cli.EnvVars("WITH_DISPATCHER"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			setup(command)

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing applyflow API")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, logger, runtimeOptions(command, serviceName+"-api"))
			if err != nil {
				return err
			}

			defer closeRuntime(runtime)

			store, release, err := cmd.NewIdempotencyStore(ctx, runtime.Config.Idempotency, runtime.Persistence)
			if err != nil {
				return err
			}

			runtime.OnClose(func(context.Context) error { return release() })

			cfg := runtime.Config
			handlers := web.NewAPIHandlers(web.Dependencies{
				Persistence: runtime.Persistence,
				Acceptance:  services.NewAcceptance(runtime.Persistence, runtime.Engine, logger.With("component", "acceptance")),
				Rollback:    services.NewRollback(runtime.Persistence, runtime.Engine, logger.With("component", "rollback")),
				Engine:      runtime.Engine,
				Broker:      runtime.Notifications.Broker,
				Credentials: transmission.NewCredentialSync(cfg.Services.CredentialsURL, nil, logger.With("component", "credential_sync")),
				Retry:       cfg.Transmission,
				Logger:      logger,
			})

			app := web.NewApp(handlers, web.AppConfig{
				Idempotency: idempotency.Config{
					Store:  store,
					TTL:    cfg.Idempotency.TTL,
					Wait:   cfg.Idempotency.Wait,
					Logger: logger.With("component", "idempotency"),
				},
				AccessLog: true,
			})

			group, ctx := errgroup.WithContext(ctx)

			group.Go(func() error { return runtime.Notifications.Run(ctx) })

			if command.Bool("with-dispatcher") {
				group.Go(func() error { return runDispatcher(ctx, runtime, store) })
			}

			group.Go(func() error {
				return app.Listen(":" + strconv.Itoa(command.Int("port")))
			})

			group.Go(func() error {
				<-ctx.Done()

				return shutdown(app)
			})

			err = group.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api stopped: %w", err)
			}

			logger.InfoContext(ctx, "applyflow API stopped")

			return nil
		},
	}
}

func shutdown(app *fiber.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return app.ShutdownWithContext(ctx)
}

func closeRuntime(runtime *cmd.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := runtime.Close(ctx)
	if err != nil {
		runtime.Logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
	}
}
