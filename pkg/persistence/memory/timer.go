package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

type timerRepository struct {
	access access
}

func (r *timerRepository) Create(_ context.Context, timer *models.ScheduledTimer) error {
	return r.access(func(st *state) error {
		st.timers[timer.ID] = timer.Clone()
		st.touch()

		return nil
	})
}

func (r *timerRepository) ByID(_ context.Context, id string) (*models.ScheduledTimer, error) {
	var found *models.ScheduledTimer

	err := r.access(func(st *state) error {
		timer, ok := st.timers[id]
		if !ok {
			return persistence.NewEntityError("ByID", "scheduled_timer", id, persistence.ErrTimerNotFound)
		}

		found = timer.Clone()

		return nil
	})

	return found, err
}

func (r *timerRepository) Delete(_ context.Context, id string) error {
	return r.access(func(st *state) error {
		delete(st.timers, id)
		st.touch()

		return nil
	})
}

func (r *timerRepository) DeletePendingByTarget(_ context.Context, targetID string, types ...models.TimerType) (int64, error) {
	var removed int64

	err := r.access(func(st *state) error {
		for id, timer := range st.timers {
			if timer.TargetID != targetID || timer.Executed {
				continue
			}

			if len(types) > 0 && !slices.Contains(types, timer.Type) {
				continue
			}

			delete(st.timers, id)
			st.touch()
			removed++
		}

		return nil
	})

	return removed, err
}

func (r *timerRepository) PendingByTarget(_ context.Context, targetID string) ([]*models.ScheduledTimer, error) {
	var pending []*models.ScheduledTimer

	err := r.access(func(st *state) error {
		for _, timer := range st.timers {
			if timer.TargetID == targetID && !timer.Executed {
				pending = append(pending, timer.Clone())
			}
		}

		return nil
	})

	sortByExecuteAt(pending)

	return pending, err
}

func (r *timerRepository) Due(_ context.Context, now time.Time) ([]*models.ScheduledTimer, error) {
	var due []*models.ScheduledTimer

	err := r.access(func(st *state) error {
		for _, timer := range st.timers {
			if !timer.Executed && timer.QuarantinedAt == nil && !timer.ExecuteAt.After(now) {
				due = append(due, timer.Clone())
			}
		}

		return nil
	})

	sortByExecuteAt(due)

	return due, err
}

func (r *timerRepository) Claim(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*models.ScheduledTimer, error) {
	var claimed []*models.ScheduledTimer

	err := r.access(func(st *state) error {
		var due []*models.ScheduledTimer

		for _, timer := range st.timers {
			if timer.IsDue(now) {
				due = append(due, timer)
			}
		}

		sortByExecuteAt(due)

		if limit > 0 && len(due) > limit {
			due = due[:limit]
		}

		until := now.Add(lease)
		for _, timer := range due {
			st.touch()
			timer.LockedUntil = &until
			claimed = append(claimed, timer.Clone())
		}

		return nil
	})

	return claimed, err
}

func (r *timerRepository) MarkExecuted(_ context.Context, id string, at time.Time) error {
	return r.access(func(st *state) error {
		timer, ok := st.timers[id]
		if !ok {
			return persistence.NewEntityError("MarkExecuted", "scheduled_timer", id, persistence.ErrTimerNotFound)
		}

		timer.Executed = true
		timer.ExecutedAt = &at
		timer.LockedUntil = nil
		st.touch()

		return nil
	})
}

func (r *timerRepository) RecordFailure(_ context.Context, id, cause string, maxAttempts int, now time.Time) (*models.ScheduledTimer, error) {
	var updated *models.ScheduledTimer

	err := r.access(func(st *state) error {
		timer, ok := st.timers[id]
		if !ok {
			return persistence.NewEntityError("RecordFailure", "scheduled_timer", id, persistence.ErrTimerNotFound)
		}

		timer.Attempts++
		timer.LastError = cause
		timer.LockedUntil = nil

		if maxAttempts > 0 && timer.Attempts >= maxAttempts {
			timer.QuarantinedAt = &now
		}

		updated = timer.Clone()
		st.touch()

		return nil
	})

	return updated, err
}

func sortByExecuteAt(timers []*models.ScheduledTimer) {
	slices.SortStableFunc(timers, func(a, b *models.ScheduledTimer) int {
		return a.ExecuteAt.Compare(b.ExecuteAt)
	})
}
