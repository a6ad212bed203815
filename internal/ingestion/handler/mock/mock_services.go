package mock

import (
	"context"

	"github.com/stretchr/testify/mock"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
)

// MockHistoricalService is a mock for the HistoricalService interface
type MockHistoricalService struct {
	mock.Mock
}

// ProcessThreadSnapshot mocks the ProcessThreadSnapshot method
func (m *MockHistoricalService) ProcessThreadSnapshot(ctx context.Context, payload model.ThreadSnapshotPayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}

// ProcessMessageSnapshot mocks the ProcessMessageSnapshot method
func (m *MockHistoricalService) ProcessMessageSnapshot(ctx context.Context, payload model.MessageSnapshotPayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}

// MockRealtimeService is a mock for the RealtimeService interface
type MockRealtimeService struct {
	mock.Mock
}

// IngestMessage mocks the IngestMessage method
func (m *MockRealtimeService) IngestMessage(ctx context.Context, payload model.InboundMessagePayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}

// UpdateMessageStatus mocks the UpdateMessageStatus method
func (m *MockRealtimeService) UpdateMessageStatus(ctx context.Context, payload model.MessageStatusPayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}

// UpdateConnection mocks the UpdateConnection method
func (m *MockRealtimeService) UpdateConnection(ctx context.Context, payload model.ConnectionUpdatePayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}
