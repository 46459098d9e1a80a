package mocks

import (
	"context"

	"github.com/dukex/applyflow/pkg/timers/handlers"
	"github.com/dukex/applyflow/pkg/workflow"
	"github.com/stretchr/testify/mock"
)

// MockGenerator is a mock implementation of workflow.Generator interface.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateResume(ctx context.Context, req workflow.GenerationRequest) (*workflow.GenerationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*workflow.GenerationResult), args.Error(1)
}

func (m *MockGenerator) GenerateCoverLetter(ctx context.Context, req workflow.GenerationRequest) (*workflow.GenerationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*workflow.GenerationResult), args.Error(1)
}

// MockSubmitter is a mock implementation of workflow.Submitter interface.
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, req workflow.SubmissionRequest) (*workflow.SubmissionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*workflow.SubmissionResult), args.Error(1)
}

// MockMailer is a mock implementation of handlers.Mailer interface.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendFollowUp(ctx context.Context, email handlers.FollowUpEmail) error {
	args := m.Called(ctx, email)

	return args.Error(0)
}

// MockDocumentStorage is a mock implementation of handlers.DocumentStorage interface.
type MockDocumentStorage struct {
	mock.Mock
}

func (m *MockDocumentStorage) Delete(ctx context.Context, storageKey string) error {
	args := m.Called(ctx, storageKey)

	return args.Error(0)
}
