package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/lib/pq"
)

const timerColumns = `
	id
  , user_id
  , type
  , target_id
  , execute_at
  , executed
  , executed_at
  , metadata
  , attempts
  , last_error
  , locked_until
  , quarantined_at
  , created_at`

type timerRepository struct {
	q      querier
	logger *slog.Logger

	// inTx guards inserts with a savepoint so a failed schedule leaves the transaction usable.
	inTx bool
}

func (r *timerRepository) Create(ctx context.Context, timer *models.ScheduledTimer) error {
	metadata, err := marshalMetadata(timer.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scheduled_timers (` + timerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if r.inTx {
		_, err = r.q.ExecContext(ctx, `SAVEPOINT timer_insert`)
		if err != nil {
			return fmt.Errorf("failed to create savepoint: %w", err)
		}
	}

	_, err = r.q.ExecContext(ctx, query,
		timer.ID, timer.UserID, timer.Type, timer.TargetID, timer.ExecuteAt, timer.Executed, timer.ExecutedAt,
		metadata, timer.Attempts, timer.LastError, timer.LockedUntil, timer.QuarantinedAt, timer.CreatedAt,
	)
	if err != nil {
		if r.inTx {
			_, rbErr := r.q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT timer_insert`)
			if rbErr != nil {
				return fmt.Errorf("savepoint rollback failed: %v (original err: %w)", rbErr, err)
			}
		}

		return fmt.Errorf("failed to insert scheduled timer: %w", err)
	}

	if r.inTx {
		_, err = r.q.ExecContext(ctx, `RELEASE SAVEPOINT timer_insert`)
		if err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
	}

	return nil
}

func (r *timerRepository) ByID(ctx context.Context, id string) (*models.ScheduledTimer, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+timerColumns+` FROM scheduled_timers WHERE id = $1`, id)

	timer, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ByID", "scheduled_timer", id, persistence.ErrTimerNotFound)
		}

		return nil, fmt.Errorf("failed to scan scheduled timer: %w", err)
	}

	return timer, nil
}

func (r *timerRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM scheduled_timers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled timer: %w", err)
	}

	return nil
}

func (r *timerRepository) DeletePendingByTarget(ctx context.Context, targetID string, types ...models.TimerType) (int64, error) {
	query := `DELETE FROM scheduled_timers WHERE target_id = $1 AND executed = false`
	args := []any{targetID}

	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}

		query += ` AND type = ANY($2)`
		args = append(args, pq.Array(names))
	}

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending timers: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return removed, nil
}

func (r *timerRepository) PendingByTarget(ctx context.Context, targetID string) ([]*models.ScheduledTimer, error) {
	query := `SELECT ` + timerColumns + `
		FROM scheduled_timers
		WHERE target_id = $1 AND executed = false
		ORDER BY execute_at
	`

	return r.list(ctx, query, targetID)
}

func (r *timerRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduledTimer, error) {
	query := `SELECT ` + timerColumns + `
		FROM scheduled_timers
		WHERE executed = false AND quarantined_at IS NULL AND execute_at <= $1
		ORDER BY execute_at
	`

	return r.list(ctx, query, now)
}

// Claim leases due timers with SKIP LOCKED so concurrent dispatchers never share a timer.
func (r *timerRepository) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.ScheduledTimer, error) {
	query := `
		UPDATE scheduled_timers
		SET locked_until = $2
		WHERE id IN (
			SELECT id
			FROM scheduled_timers
			WHERE executed = false
			  AND quarantined_at IS NULL
			  AND execute_at <= $1
			  AND (locked_until IS NULL OR locked_until <= $1)
			ORDER BY execute_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + timerColumns

	var capped sql.NullInt64
	if limit > 0 {
		capped = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	timers, err := r.list(ctx, query, now, now.Add(lease), capped)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(timers, func(a, b *models.ScheduledTimer) int {
		return a.ExecuteAt.Compare(b.ExecuteAt)
	})

	return timers, nil
}

func (r *timerRepository) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE scheduled_timers
		SET executed = true
		  , executed_at = $2
		  , locked_until = NULL
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark timer executed: %w", err)
	}

	return requireAffected(result, "MarkExecuted", "scheduled_timer", id, persistence.ErrTimerNotFound)
}

func (r *timerRepository) RecordFailure(ctx context.Context, id, cause string, maxAttempts int, now time.Time) (*models.ScheduledTimer, error) {
	query := `
		UPDATE scheduled_timers
		SET attempts = attempts + 1
		  , last_error = $2
		  , locked_until = NULL
		  , quarantined_at = CASE
				WHEN $3::int > 0 AND attempts + 1 >= $3::int THEN $4
				ELSE quarantined_at
			END
		WHERE id = $1
		RETURNING ` + timerColumns

	timer, err := scanTimer(r.q.QueryRowContext(ctx, query, id, cause, maxAttempts, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("RecordFailure", "scheduled_timer", id, persistence.ErrTimerNotFound)
		}

		return nil, fmt.Errorf("failed to record timer failure: %w", err)
	}

	return timer, nil
}

func (r *timerRepository) list(ctx context.Context, query string, args ...any) ([]*models.ScheduledTimer, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled timers: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	timers := make([]*models.ScheduledTimer, 0)

	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled timer: %w", err)
		}

		timers = append(timers, timer)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating scheduled timers: %w", err)
	}

	return timers, nil
}

func scanTimer(row scanner) (*models.ScheduledTimer, error) {
	var (
		timer                                models.ScheduledTimer
		metadata                             []byte
		executedAt, lockedUntil, quarantined sql.NullTime
	)

	err := row.Scan(
		&timer.ID, &timer.UserID, &timer.Type, &timer.TargetID, &timer.ExecuteAt, &timer.Executed, &executedAt,
		&metadata, &timer.Attempts, &timer.LastError, &lockedUntil, &quarantined, &timer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		err = json.Unmarshal(metadata, &timer.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal timer metadata: %w", err)
		}
	}

	timer.ExecutedAt = nullTime(executedAt)
	timer.LockedUntil = nullTime(lockedUntil)
	timer.QuarantinedAt = nullTime(quarantined)

	return &timer, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return data, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time

	return &v
}
