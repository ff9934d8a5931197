package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"adekit/internal/domain"
	"adekit/internal/port"
)

// MockDocumentProcessor is a mock implementation of port.DocumentProcessor.
type MockDocumentProcessor struct {
	mock.Mock
}

func (m *MockDocumentProcessor) Parse(ctx context.Context, input port.ParseInput) (*domain.ParseResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParseResult), args.Error(1)
}

func (m *MockDocumentProcessor) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionResult), args.Error(1)
}

// MockParseJobClient is a mock implementation of port.ParseJobClient.
type MockParseJobClient struct {
	mock.Mock
}

func (m *MockParseJobClient) CreateParseJob(ctx context.Context, input port.ParseInput) (*domain.RemoteJob, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteJob), args.Error(1)
}

func (m *MockParseJobClient) WaitForParseJob(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteJob), args.Error(1)
}
