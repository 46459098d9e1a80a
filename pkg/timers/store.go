// Package timers implements durable single-fire timers: the store that schedules them, the
// registry that maps timer types to handlers, and the dispatcher that runs them when due.
package timers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrSchedulingFailed marks any failure to create a timer. Callers record it rather than abort.
	ErrSchedulingFailed = errors.New("timer scheduling failed")

	// ErrInvalidTimer indicates a schedule request with an unknown type, no target or bad metadata.
	ErrInvalidTimer = errors.New("invalid timer")
)

// ScheduleRequest describes a timer to create.
type ScheduleRequest struct {
	UserID    string
	Type      models.TimerType
	TargetID  string
	ExecuteAt time.Time
	Metadata  map[string]any
}

// Store schedules and cancels timers through one TimerRepository. A Store built from a
// transaction's repositories takes part in that transaction.
type Store struct {
	repo   persistence.TimerRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a timer store.
func NewStore(repo persistence.TimerRepository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Schedule persists a new timer and returns its id. Every error wraps ErrSchedulingFailed.
func (s *Store) Schedule(ctx context.Context, req ScheduleRequest) (string, error) {
	if req.TargetID == "" {
		return "", fmt.Errorf("%w: %w: empty target", ErrSchedulingFailed, ErrInvalidTimer)
	}

	err := validateMetadata(req.Type, req.Metadata)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSchedulingFailed, err)
	}

	timer := &models.ScheduledTimer{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Type:      req.Type,
		TargetID:  req.TargetID,
		ExecuteAt: req.ExecuteAt.UTC(),
		Metadata:  req.Metadata,
		CreatedAt: s.now(),
	}

	err = s.repo.Create(ctx, timer)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSchedulingFailed, err)
	}

	if timer.ID == "" {
		return "", fmt.Errorf("%w: no timer id returned", ErrSchedulingFailed)
	}

	s.logger.DebugContext(ctx, "Timer scheduled",
		"timer_id", timer.ID,
		"timer_type", timer.Type,
		"target_id", timer.TargetID,
		"execute_at", timer.ExecuteAt)

	return timer.ID, nil
}

// ScheduleIn schedules a timer delay from now.
func (s *Store) ScheduleIn(ctx context.Context, delay time.Duration, req ScheduleRequest) (string, error) {
	req.ExecuteAt = s.now().Add(delay)

	return s.Schedule(ctx, req)
}

// Cancel deletes a timer. Cancelling a missing timer is a no-op.
func (s *Store) Cancel(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to cancel timer %s: %w", id, err)
	}

	return nil
}

// CancelByTarget deletes the pending timers of a target, optionally only those of some types.
func (s *Store) CancelByTarget(ctx context.Context, targetID string, types ...models.TimerType) (int64, error) {
	removed, err := s.repo.DeletePendingByTarget(ctx, targetID, types...)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel timers of %s: %w", targetID, err)
	}

	return removed, nil
}

// DueTimers returns every pending, non-quarantined timer with ExecuteAt <= now.
func (s *Store) DueTimers(ctx context.Context, now time.Time) ([]*models.ScheduledTimer, error) {
	return s.repo.Due(ctx, now)
}

// MarkExecuted records a successful run. Executed timers are never returned again.
func (s *Store) MarkExecuted(ctx context.Context, id string) error {
	return s.repo.MarkExecuted(ctx, id, s.now())
}
