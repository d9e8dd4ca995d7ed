package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/triggers-frontend/pkg/models"
)

// MockSender is a mock implementation of protocol.Sender interface.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, url string, body []byte, workflowState string) error {
	args := m.Called(ctx, url, body, workflowState)

	return args.Error(0)
}

// MockStatusReporter is a mock implementation of protocol.StatusReporter interface.
type MockStatusReporter struct {
	mock.Mock
}

func (m *MockStatusReporter) ReportStatus(ctx context.Context, update models.StatusUpdate) {
	m.Called(ctx, update)
}
