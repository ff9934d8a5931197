package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"adekit/internal/domain"
	"adekit/internal/port"
)

// MockJobRepository is a mock implementation of port.JobRepository.
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, tenantID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) List(ctx context.Context, tenantID uuid.UUID, filter port.JobFilter) ([]domain.Job, int, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Job), args.Int(1), args.Error(2)
}

func (m *MockJobRepository) ClaimQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobRepository) SetRemoteJobID(ctx context.Context, jobID uuid.UUID, remoteJobID string) error {
	args := m.Called(ctx, jobID, remoteJobID)
	return args.Error(0)
}

func (m *MockJobRepository) UpdateResult(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) Requeue(ctx context.Context, tenantID, jobID uuid.UUID) error {
	args := m.Called(ctx, tenantID, jobID)
	return args.Error(0)
}

func (m *MockJobRepository) Delete(ctx context.Context, tenantID, jobID uuid.UUID) error {
	args := m.Called(ctx, tenantID, jobID)
	return args.Error(0)
}

func (m *MockJobRepository) ListFinishedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobRepository) ReclaimStale(ctx context.Context, before time.Time, maxAttempts int) (int64, error) {
	args := m.Called(ctx, before, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}
