package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor purges expired records on a cron schedule.
type Janitor struct {
	store    Store
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor creates a janitor. An empty schedule means hourly.
func NewJanitor(store Store, schedule string, logger *slog.Logger) *Janitor {
	if schedule == "" {
		schedule = "@hourly"
	}

	return &Janitor{store: store, schedule: schedule, logger: logger}
}

// Start schedules the purge job.
func (j *Janitor) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger)))

	_, err := c.AddFunc(j.schedule, func() {
		_, _ = j.Purge(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", j.schedule, err)
	}

	j.cron = c
	c.Start()

	j.logger.InfoContext(ctx, "Idempotency janitor started", "schedule", j.schedule)

	return nil
}

// Stop waits for a running purge to finish.
func (j *Janitor) Stop(ctx context.Context) {
	if j.cron == nil {
		return
	}

	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Purge deletes expired records once.
func (j *Janitor) Purge(ctx context.Context) (int64, error) {
	removed, err := j.store.Purge(ctx, time.Now().UTC())
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to purge idempotency records", "error", err)

		return 0, err
	}

	if removed > 0 {
		j.logger.InfoContext(ctx, "Purged expired idempotency records", "removed", removed)
	}

	return removed, nil
}
