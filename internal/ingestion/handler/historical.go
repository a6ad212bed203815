package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"go.uber.org/zap"
)

// HistoricalHandler processes snapshot events
type HistoricalHandler struct {
	service HistoricalService
}

// HistoricalService defines the interface for snapshot event processing
type HistoricalService interface {
	ProcessThreadSnapshot(ctx context.Context, payload model.ThreadSnapshotPayload, metadata *model.LastMetadata) error
	ProcessMessageSnapshot(ctx context.Context, payload model.MessageSnapshotPayload, metadata *model.LastMetadata) error
}

// NewHistoricalHandler creates a new snapshot event handler
func NewHistoricalHandler(service HistoricalService) *HistoricalHandler {
	return &HistoricalHandler{
		service: service,
	}
}

// HandleEvent processes snapshot events
func (h *HistoricalHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)
	log.Info("Processing snapshot event", zap.String("type", string(eventType)))

	lastMetadata := metadata.ToLastMetadata()
	var err error

	switch eventType {
	case model.V1ThreadsSnapshot:
		err = h.handleThreadSnapshot(ctx, lastMetadata, rawEvent)
	case model.V1MessagesSnapshot:
		err = h.handleMessageSnapshot(ctx, lastMetadata, rawEvent)
	default:
		unsupportedErr := fmt.Errorf("unsupported snapshot event type: %s", eventType)
		log.Error("Unsupported snapshot event type", zap.String("eventType", string(eventType)))
		err = apperrors.NewFatal(unsupportedErr, "unsupported snapshot event type")
	}

	// Return the error (already wrapped by handlers or service layer)
	return err
}

// handleThreadSnapshot processes thread snapshot batches
func (h *HistoricalHandler) handleThreadSnapshot(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	// Parse the rawEvent payload
	var payload model.ThreadSnapshotPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal thread snapshot payload", zap.Error(err))
		// Wrap unmarshal error as Fatal
		return apperrors.NewFatal(err, "failed to unmarshal thread snapshot payload")
	}

	if len(payload.Threads) == 0 {
		log.Warn("No threads in thread snapshot payload")
		return nil
	}

	log.Info("Processing thread snapshot",
		zap.Int("count", len(payload.Threads)),
		zap.Bool("is_last_batch", payload.IsLastBatch))
	// Return error directly from service (already wrapped)
	return h.service.ProcessThreadSnapshot(ctx, payload, metadata)
}

// handleMessageSnapshot processes historical message batches
func (h *HistoricalHandler) handleMessageSnapshot(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	// Parse the rawEvent payload
	var payload model.MessageSnapshotPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal message snapshot payload", zap.Error(err))
		// Wrap unmarshal error as Fatal
		return apperrors.NewFatal(err, "failed to unmarshal message snapshot payload")
	}

	if len(payload.Messages) == 0 {
		log.Warn("No messages in message snapshot payload")
		return nil
	}

	log.Info("Processing message snapshot",
		zap.Int("count", len(payload.Messages)),
		zap.Bool("is_last_batch", payload.IsLastBatch))
	// Return error directly from service (already wrapped)
	return h.service.ProcessMessageSnapshot(ctx, payload, metadata)
}
