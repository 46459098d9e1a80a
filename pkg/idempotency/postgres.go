package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/applyflow/pkg/models"
)

const recordColumns = `user_id, key, request_hash, status_code, content_type, response, expires_at, created_at`

// PostgresStore keeps records in the idempotency_keys table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Claim relies on the (user_id, key) primary key: the insert that lands first wins, and an
// expired row is taken over in the same statement.
func (s *PostgresStore) Claim(ctx context.Context, record *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error) {
	query := `
		INSERT INTO idempotency_keys (` + recordColumns + `)
		VALUES ($1, $2, $3, 0, '', NULL, $4, $5)
		ON CONFLICT (user_id, key) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			status_code = 0,
			content_type = '',
			response = NULL,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
		WHERE idempotency_keys.expires_at <= NOW()
	`

	result, err := s.db.ExecContext(ctx, query, record.UserID, record.Key, record.RequestHash, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 1 {
		return true, nil, nil
	}

	existing, err := s.Get(ctx, record.UserID, record.Key)
	if err != nil {
		return false, nil, err
	}

	return false, existing, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, key string) (*models.IdempotencyRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM idempotency_keys WHERE user_id = $1 AND key = $2 AND expires_at > NOW()`

	var (
		record      models.IdempotencyRecord
		contentType sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, userID, key).Scan(
		&record.UserID, &record.Key, &record.RequestHash, &record.StatusCode,
		&contentType, &record.Response, &record.ExpiresAt, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}

		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	record.ContentType = contentType.String

	return &record, nil
}

func (s *PostgresStore) Complete(ctx context.Context, record *models.IdempotencyRecord) error {
	query := `
		UPDATE idempotency_keys
		SET status_code = $3, content_type = $4, response = $5
		WHERE user_id = $1 AND key = $2
	`

	result, err := s.db.ExecContext(ctx, query, record.UserID, record.Key, record.StatusCode, record.ContentType, record.Response)
	if err != nil {
		return fmt.Errorf("failed to store idempotent response: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func (s *PostgresStore) Release(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE user_id = $1 AND key = $2`, userID, key)
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}

	return nil
}

func (s *PostgresStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}

	return result.RowsAffected()
}
