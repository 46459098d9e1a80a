package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "applyflow:idempotency:"

func redisKey(userID, key string) string {
	return redisKeyPrefix + userID + ":" + key
}

// RedisStore keeps records as JSON strings that expire with the record.
type RedisStore struct {
	client goredis.Cmdable
}

// NewRedisStore creates a store on client. The caller owns the client lifecycle.
func NewRedisStore(client goredis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Claim(ctx context.Context, record *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, nil, fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return false, nil, fmt.Errorf("idempotency record for %s already expired", record.Key)
	}

	ok, err := s.client.SetNX(ctx, redisKey(record.UserID, record.Key), data, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	if ok {
		return true, nil, nil
	}

	existing, err := s.Get(ctx, record.UserID, record.Key)
	if errors.Is(err, ErrRecordNotFound) {
		// The holder expired or released between SETNX and GET.
		return s.Claim(ctx, record)
	}

	if err != nil {
		return false, nil, err
	}

	return false, existing, nil
}

func (s *RedisStore) Get(ctx context.Context, userID, key string) (*models.IdempotencyRecord, error) {
	data, err := s.client.Get(ctx, redisKey(userID, key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrRecordNotFound
		}

		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var record models.IdempotencyRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}

	return &record, nil
}

func (s *RedisStore) Complete(ctx context.Context, record *models.IdempotencyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ok, err := s.client.SetXX(ctx, redisKey(record.UserID, record.Key), data, goredis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store idempotent response: %w", err)
	}

	if !ok {
		return ErrRecordNotFound
	}

	return nil
}

func (s *RedisStore) Release(ctx context.Context, userID, key string) error {
	err := s.client.Del(ctx, redisKey(userID, key)).Err()
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}

	return nil
}

// Purge is a no-op: Redis expires records on its own.
func (s *RedisStore) Purge(context.Context, time.Time) (int64, error) {
	return 0, nil
}
