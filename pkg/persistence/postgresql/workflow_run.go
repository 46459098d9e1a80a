package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/lib/pq"
)

const runColumns = `
	id
  , user_id
  , application_id
  , idempotency_key
  , status
  , current_step
  , metadata
  , created_at
  , updated_at
  , completed_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type runRepository struct {
	q      querier
	logger *slog.Logger
}

func (r *runRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow run metadata: %w", err)
	}

	// DO NOTHING keeps an enclosing transaction usable when the key is already taken.
	query := `
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		run.ID, run.UserID, run.ApplicationID, run.IdempotencyKey, run.Status, run.CurrentStep,
		metadata, run.CreatedAt, run.UpdatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow run: %w", err)
	}

	return requireAffected(result, "Create", "workflow_run", run.IdempotencyKey, persistence.ErrWorkflowRunAlreadyExists)
}

func (r *runRepository) ByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id)

	return r.one(row, "ByID", id)
}

func (r *runRepository) ByIdempotencyKey(ctx context.Context, key string) (*models.WorkflowRun, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE idempotency_key = $1`, key)

	return r.one(row, "ByIdempotencyKey", key)
}

func (r *runRepository) LatestByApplication(ctx context.Context, applicationID string) (*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE application_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.one(r.q.QueryRowContext(ctx, query, applicationID), "LatestByApplication", applicationID)
}

func (r *runRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow run metadata: %w", err)
	}

	run.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflow_runs
		SET status = $2
		  , current_step = $3
		  , metadata = $4
		  , updated_at = $5
		  , completed_at = $6
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, run.ID, run.Status, run.CurrentStep, metadata, run.UpdatedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow run: %w", err)
	}

	return requireAffected(result, "Update", "workflow_run", run.ID, persistence.ErrWorkflowRunNotFound)
}

func (r *runRepository) Transition(ctx context.Context, id string, from, to models.WorkflowStatus, step string) (bool, error) {
	query := `
		UPDATE workflow_runs
		SET status = $3
		  , current_step = $4
		  , updated_at = NOW()
		  , completed_at = CASE WHEN $5 THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.ExecContext(ctx, query, id, from, to, step, to.IsTerminal())
	if err != nil {
		return false, fmt.Errorf("failed to transition workflow run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected > 0 {
		return true, nil
	}

	var exists bool

	err = r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_runs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check workflow run: %w", err)
	}

	if !exists {
		return false, persistence.NewEntityError("Transition", "workflow_run", id, persistence.ErrWorkflowRunNotFound)
	}

	return false, nil
}

func (r *runRepository) one(row scanner, op, id string) (*models.WorkflowRun, error) {
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError(op, "workflow_run", id, persistence.ErrWorkflowRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow run: %w", err)
	}

	return run, nil
}

func scanRun(row scanner) (*models.WorkflowRun, error) {
	var (
		run         models.WorkflowRun
		metadata    []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID, &run.UserID, &run.ApplicationID, &run.IdempotencyKey, &run.Status, &run.CurrentStep,
		&metadata, &run.CreatedAt, &run.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		err = json.Unmarshal(metadata, &run.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow run metadata: %w", err)
		}
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func requireAffected(result sql.Result, op, entity, id string, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError(op, entity, id, notFound)
	}

	return nil
}
