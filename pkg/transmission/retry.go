// Package transmission delivers payloads to downstream services with bounded exponential retry.
package transmission

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options controls Retry. DefaultOptions holds the one second default delay; a zero
// RetryDelay retries without waiting.
type Options struct {
	// MaxRetries counts attempts after the first one.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`
	// RetryDelay is the wait after the first failed attempt. It doubles after every failure.
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gte=0"`

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error) `yaml:"-"`
}

func DefaultOptions() Options {
	return Options{MaxRetries: 3, RetryDelay: time.Second}
}

const maxRetryInterval = 24 * time.Hour

func (o Options) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.MaxRetries)), ctx)
}

// Retry runs op until it succeeds or MaxRetries+1 attempts failed. The waits are
// RetryDelay * 2^attempt without jitter.
func Retry[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	attempts := 0

	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempts++

		return op(ctx)
	}, opts.backOff(ctx), func(err error, delay time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(attempts, delay, err)
		}
	})
	if err != nil {
		var zero T

		return zero, fmt.Errorf("request failed after %d attempts: %w", attempts, err)
	}

	return result, nil
}
