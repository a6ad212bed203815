package handler_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/ingestion/handler"
	mockhandler "gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/ingestion/handler/mock"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"go.uber.org/zap"
)

const testCompanyID = "benchmark_tenant_001"

func TestMain(m *testing.M) {
	_ = logger.Initialize("fatal") // Or "error" to reduce noise during benchmarks
	os.Exit(m.Run())
}

func newBenchmarkContext(companyID string) context.Context {
	ctx := context.Background()
	requestID := uuid.NewString()
	ctx = tenant.WithCompanyID(ctx, companyID)
	ctx = tenant.WithRequestID(ctx, requestID)
	// Use the global logger from pkg/logger, initialized in TestMain
	scopedLogger := logger.Log.With(zap.String("company_id", companyID), zap.String("request_id", requestID))
	ctx = logger.WithLogger(ctx, scopedLogger)
	return ctx
}

func setupRealtimeHandlerBench() *handler.RealtimeHandler {
	mockService := new(mockhandler.MockRealtimeService)
	mockService.On("IngestMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockService.On("UpdateMessageStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockService.On("UpdateConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return handler.NewRealtimeHandler(mockService)
}

// --- Benchmark Functions ---

// BenchmarkRealtimeHandler_InboundMessage benchmarks V1MessagesInbound event
func BenchmarkRealtimeHandler_InboundMessage(b *testing.B) {
	rtHandler := setupRealtimeHandlerBench()
	ctx := newBenchmarkContext(testCompanyID)

	payload := model.NewInboundMessagePayload(&model.InboundMessagePayload{CompanyID: testCompanyID})
	rawEvent, _ := json.Marshal(payload)
	metadata := &model.MessageMetadata{
		CompanyID: testCompanyID,
		Domain:    "test.domain",
		Stream:    "message_events_stream",
		MessageID: uuid.NewString(),
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := rtHandler.HandleEvent(ctx, model.V1MessagesInbound, metadata, rawEvent)
		if err != nil {
			b.Fatalf("HandleEvent (V1MessagesInbound) returned error: %v", err)
		}
	}
	b.StopTimer()
}

// BenchmarkRealtimeHandler_MessageStatus benchmarks V1MessagesStatus event
func BenchmarkRealtimeHandler_MessageStatus(b *testing.B) {
	rtHandler := setupRealtimeHandlerBench()
	ctx := newBenchmarkContext(testCompanyID)

	payload := model.MessageStatusPayload{MessageID: uuid.NewString(), CompanyID: testCompanyID, Status: model.MessageStatusRead}
	rawEvent, _ := json.Marshal(payload)
	metadata := &model.MessageMetadata{
		CompanyID: testCompanyID,
		Domain:    "test.domain",
		Stream:    "message_events_stream",
		MessageID: uuid.NewString(),
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := rtHandler.HandleEvent(ctx, model.V1MessagesStatus, metadata, rawEvent)
		if err != nil {
			b.Fatalf("HandleEvent (V1MessagesStatus) returned error: %v", err)
		}
	}
	b.StopTimer()
}

// BenchmarkRealtimeHandler_ConnectionUpdate benchmarks V1Connection event
func BenchmarkRealtimeHandler_ConnectionUpdate(b *testing.B) {
	rtHandler := setupRealtimeHandlerBench()
	ctx := newBenchmarkContext(testCompanyID)

	payload := model.ConnectionUpdatePayload{AccountID: uuid.NewString(), CompanyID: testCompanyID, Status: model.AccountStatusConnected}
	rawEvent, _ := json.Marshal(payload)
	metadata := &model.MessageMetadata{
		CompanyID: testCompanyID,
		Domain:    "test.domain",
		Stream:    "message_events_stream",
		MessageID: uuid.NewString(),
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := rtHandler.HandleEvent(ctx, model.V1Connection, metadata, rawEvent)
		if err != nil {
			b.Fatalf("HandleEvent (V1Connection) returned error: %v", err)
		}
	}
	b.StopTimer()
}
