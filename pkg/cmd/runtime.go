package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/applyflow/pkg/clients"
	"github.com/dukex/applyflow/pkg/config"
	"github.com/dukex/applyflow/pkg/otelhelper"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/timers/handlers"
	"github.com/dukex/applyflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeOptions are the settings every command shares.
type RuntimeOptions struct {
	ServiceName string
	DatabaseURL string
	ConfigPath  string
	Tracing     bool
}

// Runtime holds the components shared by the api and dispatcher commands.
type Runtime struct {
	Config        *config.Config
	Persistence   persistence.Persistence
	Notifications *Notifications
	Engine        *workflow.Engine
	Tracer        trace.Tracer
	Logger        *slog.Logger

	httpClient *http.Client
	closers    []func(ctx context.Context) error
}

func NewRuntime(ctx context.Context, logger *slog.Logger, opts RuntimeOptions) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Tracer:     otelhelper.NewNoopTracer(),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}

	if opts.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, opts.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}

		r.Tracer = tracer
		r.closers = append(r.closers, shutdown)
	}

	r.Persistence, err = NewPersistence(ctx, logger, opts.DatabaseURL)
	if err != nil {
		return nil, r.abort(ctx, err)
	}

	r.closers = append(r.closers, r.Persistence.Close)

	r.Notifications, err = NewNotifications(cfg.Notifications, opts.ServiceName, logger)
	if err != nil {
		return nil, r.abort(ctx, err)
	}

	r.closers = append(r.closers, func(context.Context) error { return r.Notifications.Close() })

	r.Engine = workflow.NewEngine(workflow.Dependencies{
		Persistence: r.Persistence,
		Generator:   clients.NewGenerator(cfg.Services.GeneratorURL, r.httpClient),
		Submitter:   clients.NewSubmitter(cfg.Services.SubmitterURL, r.httpClient),
		Sink:        r.Notifications.Sink,
		Tracer:      r.Tracer,
		Logger:      logger.With("component", "workflow"),
		Defaults:    cfg.DefaultSettings,
	})

	return r, nil
}

// TimerHandlers returns the dependencies of the timer handlers.
func (r *Runtime) TimerHandlers() handlers.Dependencies {
	deps := handlers.Dependencies{
		Persistence: r.Persistence,
		Workflow:    r.Engine,
		Storage:     clients.NewLocalStorage(r.Config.Services.DocumentsPath),
		Sink:        r.Notifications.Sink,
		Logger:      r.Logger.With("component", "timer_handlers"),
	}

	if r.Config.Services.MailerURL != "" {
		deps.Mailer = clients.NewMailer(r.Config.Services.MailerURL, r.httpClient)
	}

	return deps
}

// OnClose registers fn to run, before the components built here, when the runtime closes.
func (r *Runtime) OnClose(fn func(ctx context.Context) error) {
	r.closers = append(r.closers, fn)
}

// Close releases everything in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}

	r.closers = nil

	return errors.Join(errs...)
}

func (r *Runtime) abort(ctx context.Context, err error) error {
	closeErr := r.Close(ctx)
	if closeErr != nil {
		return fmt.Errorf("%w (cleanup: %v)", err, closeErr)
	}

	return err
}
