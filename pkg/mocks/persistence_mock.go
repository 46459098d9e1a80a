package mocks

import (
	"context"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockTimerRepository is a mock implementation of persistence.TimerRepository interface.
type MockTimerRepository struct {
	mock.Mock
}

func (m *MockTimerRepository) Create(ctx context.Context, timer *models.ScheduledTimer) error {
	args := m.Called(ctx, timer)

	return args.Error(0)
}

func (m *MockTimerRepository) ByID(ctx context.Context, id string) (*models.ScheduledTimer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ScheduledTimer), args.Error(1)
}

func (m *MockTimerRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockTimerRepository) DeletePendingByTarget(ctx context.Context, targetID string, types ...models.TimerType) (int64, error) {
	args := m.Called(ctx, targetID, types)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTimerRepository) PendingByTarget(ctx context.Context, targetID string) ([]*models.ScheduledTimer, error) {
	args := m.Called(ctx, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ScheduledTimer), args.Error(1)
}

func (m *MockTimerRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduledTimer, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ScheduledTimer), args.Error(1)
}

func (m *MockTimerRepository) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.ScheduledTimer, error) {
	args := m.Called(ctx, now, lease, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ScheduledTimer), args.Error(1)
}

func (m *MockTimerRepository) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)

	return args.Error(0)
}

func (m *MockTimerRepository) RecordFailure(ctx context.Context, id, cause string, maxAttempts int, now time.Time) (*models.ScheduledTimer, error) {
	args := m.Called(ctx, id, cause, maxAttempts, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ScheduledTimer), args.Error(1)
}
