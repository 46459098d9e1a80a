package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/applyflow/pkg/cmd"
	"github.com/dukex/applyflow/pkg/idempotency"
	"github.com/dukex/applyflow/pkg/log"
	"github.com/dukex/applyflow/pkg/timers"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func NewDispatcherCommand() *cli.Command {
	return &cli.Command{
		Name:  "dispatcher",
		Usage: "Run due timers and purge expired idempotency records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Sources: cli.EnvVars("DISPATCHER_ID"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			setup(command)

			dispatcherID := command.String("dispatcher-id")
			if dispatcherID == "" {
				dispatcherID = "dispatcher-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("dispatcher").With("dispatcher_id", dispatcherID)
			logger.InfoContext(ctx, "Initializing applyflow dispatcher")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, logger, runtimeOptions(command, serviceName+"-dispatcher"))
			if err != nil {
				return err
			}

			defer closeRuntime(runtime)

			store, release, err := cmd.NewIdempotencyStore(ctx, runtime.Config.Idempotency, runtime.Persistence)
			if err != nil {
				return err
			}

			runtime.OnClose(func(context.Context) error { return release() })

			err = runDispatcher(ctx, runtime, store)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}
}

// runDispatcher polls timers and runs the idempotency janitor until ctx ends.
func runDispatcher(ctx context.Context, runtime *cmd.Runtime, store idempotency.Store) error {
	registry, err := cmd.NewTimerRegistry(runtime.TimerHandlers())
	if err != nil {
		return fmt.Errorf("failed to register timer handlers: %w", err)
	}

	dispatcher := timers.NewDispatcher(
		runtime.Persistence.Repositories().Timers,
		registry,
		runtime.Tracer,
		runtime.Logger.With("component", "timer_dispatcher"),
		runtime.Config.Dispatcher,
	)

	janitor := idempotency.NewJanitor(store, runtime.Config.Idempotency.PurgeSchedule, runtime.Logger.With("component", "idempotency_janitor"))

	err = dispatcher.Start(ctx)
	if err != nil {
		return err
	}

	err = janitor.Start(ctx)
	if err != nil {
		_ = dispatcher.Stop(context.Background())

		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	janitor.Stop(stopCtx)

	err = dispatcher.Stop(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to stop dispatcher: %w", err)
	}

	return ctx.Err()
}
