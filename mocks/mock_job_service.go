package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"adekit/internal/domain"
	"adekit/internal/port"
	"adekit/internal/service"
)

// MockJobService is a mock implementation of service.JobService.
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Submit(ctx context.Context, input service.SubmitInput) (*domain.Job, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobService) Get(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, tenantID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobService) List(ctx context.Context, tenantID uuid.UUID, filter port.JobFilter) ([]domain.Job, int, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Job), args.Int(1), args.Error(2)
}

func (m *MockJobService) Result(ctx context.Context, tenantID, jobID uuid.UUID) (*service.JobResult, error) {
	args := m.Called(ctx, tenantID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.JobResult), args.Error(1)
}

func (m *MockJobService) Export(ctx context.Context, tenantID, jobID uuid.UUID, format string) (*service.ExportFile, error) {
	args := m.Called(ctx, tenantID, jobID, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportFile), args.Error(1)
}

func (m *MockJobService) Retry(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, tenantID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobService) Delete(ctx context.Context, tenantID, jobID uuid.UUID) error {
	args := m.Called(ctx, tenantID, jobID)
	return args.Error(0)
}

func (m *MockJobService) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionResult), args.Error(1)
}
