package timers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/otelhelper"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoHandler is recorded on timers whose type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for timer type")

	// ErrHandlerPanic is recorded when a handler panics.
	ErrHandlerPanic = errors.New("timer handler panicked")
)

// DispatcherConfig tunes the poll loop.
type DispatcherConfig struct {
	// Schedule is a robfig/cron expression such as "@every 5s".
	Schedule string `yaml:"schedule" validate:"required"`
	// BatchSize caps the timers claimed per poll.
	BatchSize int `yaml:"batch_size" validate:"gte=1"`
	// Concurrency caps the handlers running at once.
	Concurrency int `yaml:"concurrency" validate:"gte=1"`
	// Lease is how long a claimed timer is hidden from other dispatchers. Handlers run
	// with a deadline of one lease.
	Lease time.Duration `yaml:"lease" validate:"gt=0"`
	// MaxAttempts quarantines a timer after that many failures. Zero retries forever.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=0"`
}

// DefaultDispatcherConfig returns the production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Schedule:    "@every 5s",
		BatchSize:   100,
		Concurrency: 8,
		Lease:       5 * time.Minute,
		MaxAttempts: 10,
	}
}

// PollResult summarizes one poll.
type PollResult struct {
	Claimed     int
	Executed    int
	Failed      int
	Quarantined int
}

// Dispatcher claims due timers and routes each to the handler registered for its type.
type Dispatcher struct {
	repo     persistence.TimerRepository
	registry *Registry
	tracer   trace.Tracer
	logger   *slog.Logger
	config   DispatcherConfig
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewDispatcher creates a dispatcher. Zero config fields fall back to the defaults.
func NewDispatcher(
	repo persistence.TimerRepository,
	registry *Registry,
	tracer trace.Tracer,
	logger *slog.Logger,
	config DispatcherConfig,
) *Dispatcher {
	defaults := DefaultDispatcherConfig()

	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}

	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}

	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}

	return &Dispatcher{
		repo:     repo,
		registry: registry,
		tracer:   tracer,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start begins polling on the configured schedule until Stop is called or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	cronLog := cronLogger{logger: d.logger}

	d.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		),
	)

	_, err := d.cron.AddFunc(d.config.Schedule, func() {
		_, err := d.Poll(ctx)
		if err != nil {
			d.logger.ErrorContext(ctx, "Timer poll failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid dispatcher schedule %q: %w", d.config.Schedule, err)
	}

	d.cron.Start()
	d.started = true

	d.logger.InfoContext(ctx, "Timer dispatcher started",
		"schedule", d.config.Schedule,
		"batch_size", d.config.BatchSize,
		"concurrency", d.config.Concurrency,
		"timer_types", d.registry.Types())

	return nil
}

// Stop halts polling and waits for the running poll to finish or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.started = false
	stopped := d.cron.Stop()

	select {
	case <-stopped.Done():
		d.logger.InfoContext(ctx, "Timer dispatcher stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll claims one batch of due timers and runs them. A failing timer never blocks the others.
func (d *Dispatcher) Poll(ctx context.Context) (PollResult, error) {
	var result PollResult

	claimed, err := d.repo.Claim(ctx, d.now(), d.config.Lease, d.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to claim due timers: %w", err)
	}

	result.Claimed = len(claimed)
	if len(claimed) == 0 {
		return result, nil
	}

	d.logger.DebugContext(ctx, "Processing due timers", "count", len(claimed))

	var (
		mu    sync.Mutex
		group errgroup.Group
	)

	group.SetLimit(d.config.Concurrency)

	for _, timer := range claimed {
		group.Go(func() error {
			outcome := d.dispatch(ctx, timer)

			mu.Lock()
			defer mu.Unlock()

			switch outcome {
			case outcomeExecuted:
				result.Executed++
			case outcomeQuarantined:
				result.Failed++
				result.Quarantined++
			default:
				result.Failed++
			}

			return nil
		})
	}

	_ = group.Wait()

	return result, nil
}

type outcome int

const (
	outcomeExecuted outcome = iota
	outcomeFailed
	outcomeQuarantined
)

func (d *Dispatcher) dispatch(ctx context.Context, timer *models.ScheduledTimer) outcome {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "timer.dispatch",
		attribute.String(otelhelper.TimerIDKey, timer.ID),
		attribute.String(otelhelper.TimerTypeKey, string(timer.Type)),
		attribute.String(otelhelper.TargetIDKey, timer.TargetID),
		attribute.Int(otelhelper.AttemptKey, timer.Attempts+1),
	)
	defer span.End()

	logger := d.logger.With("timer_id", timer.ID, "timer_type", timer.Type, "target_id", timer.TargetID)

	err := d.run(ctx, timer)
	if err == nil {
		err = d.repo.MarkExecuted(ctx, timer.ID, d.now())
		if err == nil {
			logger.InfoContext(ctx, "Timer executed")

			return outcomeExecuted
		}

		err = fmt.Errorf("failed to mark timer executed: %w", err)
	}

	otelhelper.SetError(span, err)

	updated, recordErr := d.repo.RecordFailure(ctx, timer.ID, err.Error(), d.config.MaxAttempts, d.now())
	if recordErr != nil {
		// The lease still expires, so the timer is redelivered anyway.
		logger.ErrorContext(ctx, "Failed to record timer failure", "error", err, "record_error", recordErr)

		return outcomeFailed
	}

	if updated.QuarantinedAt != nil {
		logger.ErrorContext(ctx, "Timer quarantined after repeated failures",
			"attempts", updated.Attempts,
			"error", err)

		return outcomeQuarantined
	}

	logger.WarnContext(ctx, "Timer handler failed, will retry", "attempts", updated.Attempts, "error", err)

	return outcomeFailed
}

func (d *Dispatcher) run(ctx context.Context, timer *models.ScheduledTimer) (err error) {
	handler, ok := d.registry.Handler(timer.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, timer.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Lease)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return handler(ctx, timer)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
