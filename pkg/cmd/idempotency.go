package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/applyflow/pkg/config"
	"github.com/dukex/applyflow/pkg/idempotency"
	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/persistence/postgresql"
	goredis "github.com/redis/go-redis/v9"
)

var ErrPostgresRequired = errors.New("the postgres idempotency store requires PostgreSQL persistence")

// NewIdempotencyStore builds the replay cache store and returns a function that releases it.
func NewIdempotencyStore(ctx context.Context, cfg config.Idempotency, p persistence.Persistence) (idempotency.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case "", "memory":
		return idempotency.NewMemoryStore(), noop, nil
	case "postgres":
		pg, ok := p.(*postgresql.Persistence)
		if !ok {
			return nil, nil, ErrPostgresRequired
		}

		return idempotency.NewPostgresStore(pg.DB()), noop, nil
	case "redis":
		options, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}

		client := goredis.NewClient(options)

		err = client.Ping(ctx).Err()
		if err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		return idempotency.NewRedisStore(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported idempotency store %q", cfg.Store)
	}
}
