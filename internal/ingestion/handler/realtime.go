package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"go.uber.org/zap"
)

// RealtimeHandler processes realtime events
type RealtimeHandler struct {
	service RealtimeService
}

// RealtimeService defines the interface for realtime event processing
type RealtimeService interface {
	IngestMessage(ctx context.Context, payload model.InboundMessagePayload, metadata *model.LastMetadata) error
	UpdateMessageStatus(ctx context.Context, payload model.MessageStatusPayload, metadata *model.LastMetadata) error
	UpdateConnection(ctx context.Context, payload model.ConnectionUpdatePayload, metadata *model.LastMetadata) error
}

// NewRealtimeHandler creates a new realtime event handler
func NewRealtimeHandler(service RealtimeService) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
	}
}

// HandleEvent processes realtime events
func (h *RealtimeHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	// Generate request ID
	requestID := uuid.NewString()
	// Add request ID to context
	ctx = tenant.WithRequestID(ctx, requestID)

	log := logger.FromContext(ctx)
	log.Info("Processing realtime event", zap.String("type", string(eventType)))

	lastMetadata := metadata.ToLastMetadata()
	var err error
	switch eventType {
	case model.V1MessagesInbound:
		err = h.handleInboundMessage(ctx, lastMetadata, rawEvent)
	case model.V1MessagesStatus:
		err = h.handleMessageStatus(ctx, lastMetadata, rawEvent)
	case model.V1Connection:
		err = h.handleConnectionUpdate(ctx, lastMetadata, rawEvent)
	default:
		unsupportedErr := fmt.Errorf("unsupported realtime event type: %s", eventType)
		log.Error("Unsupported realtime event type", zap.String("eventType", string(eventType)))
		err = apperrors.NewFatal(unsupportedErr, "unsupported realtime event type")
	}
	return err // Return error (already wrapped by handlers or service)
}

// handleInboundMessage processes provider message events
func (h *RealtimeHandler) handleInboundMessage(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	// Parse the rawEvent payload
	var payload model.InboundMessagePayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal inbound message payload", zap.Error(err))
		// Wrap unmarshal error as Fatal
		return apperrors.NewFatal(err, "failed to unmarshal inbound message payload")
	}

	// Basic validation
	if payload.MessageID == "" {
		validationErr := fmt.Errorf("message ID is required")
		log.Error("Inbound message validation failed", zap.Error(validationErr))
		return apperrors.NewFatal(validationErr, "message ID is required")
	}
	if payload.ChatKey() == "" {
		validationErr := fmt.Errorf("sender or chat JID is required")
		log.Error("Inbound message validation failed", zap.Error(validationErr))
		return apperrors.NewFatal(validationErr, "sender or chat JID is required")
	}

	// Enrich payload with CompanyID from metadata
	if payload.CompanyID == "" {
		payload.CompanyID = metadata.CompanyID
	}

	log.Info("Processing inbound message",
		zap.String("message_id", payload.MessageID),
		zap.String("chat_key", payload.ChatKey()),
		zap.String("nats_message_id", metadata.MessageID))
	// Return error directly from service (already wrapped)
	return h.service.IngestMessage(ctx, payload, metadata)
}

// handleMessageStatus processes delivery receipt events
func (h *RealtimeHandler) handleMessageStatus(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	// Parse the rawEvent payload
	var payload model.MessageStatusPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal message status payload", zap.Error(err))
		// Wrap unmarshal error as Fatal
		return apperrors.NewFatal(err, "failed to unmarshal message status payload")
	}

	// Basic validation
	if payload.MessageID == "" {
		validationErr := fmt.Errorf("message ID is required for status update")
		log.Error("Message status validation failed", zap.Error(validationErr))
		return apperrors.NewFatal(validationErr, "message ID is required for status update")
	}
	if payload.Status == "" {
		validationErr := fmt.Errorf("status is required for status update")
		log.Error("Message status validation failed", zap.Error(validationErr))
		return apperrors.NewFatal(validationErr, "status is required for status update")
	}

	// Enrich payload with CompanyID from metadata
	if payload.CompanyID == "" {
		payload.CompanyID = metadata.CompanyID
	}

	log.Info("Processing message status update",
		zap.String("message_id", payload.MessageID),
		zap.String("status", payload.Status),
		zap.String("nats_message_id", metadata.MessageID))
	// Return error directly from service (already wrapped)
	return h.service.UpdateMessageStatus(ctx, payload, metadata)
}

// handleConnectionUpdate processes provider session state events
func (h *RealtimeHandler) handleConnectionUpdate(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	// Parse the rawEvent payload
	var payload model.ConnectionUpdatePayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal connection update payload", zap.Error(err))
		// Wrap unmarshal error as Fatal
		return apperrors.NewFatal(err, "failed to unmarshal connection update payload")
	}

	// Basic validation
	if payload.AccountID == "" {
		validationErr := fmt.Errorf("account ID is required for connection update")
		log.Error("Connection update validation failed", zap.Error(validationErr))
		return apperrors.NewFatal(validationErr, "account ID is required for connection update")
	}

	// Enrich payload with CompanyID from metadata
	if payload.CompanyID == "" {
		payload.CompanyID = metadata.CompanyID
	}

	log.Info("Processing connection update",
		zap.String("account_id", payload.AccountID),
		zap.String("status", payload.Status))
	// Return error directly from service (already wrapped)
	return h.service.UpdateConnection(ctx, payload, metadata)
}
