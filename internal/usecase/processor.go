package usecase

import (
	"context"
	"fmt"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/config"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/ingestion"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/ingestion/handler"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/jetstream"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"go.uber.org/zap"
)

// Processor wires the event router, the sharded dispatcher and both
// JetStream consumers around the service.
type Processor struct {
	service          *EventService
	jsClient         jetstream.ClientInterface
	dispatcher       *ingestion.ShardDispatcher
	realtimeConsumer *ingestion.RealtimeConsumer
	snapshotConsumer *ingestion.HistoricalConsumer
	eventRouter      ingestion.RouterInterface
	histHandler      handler.HistoricalHandlerInterface
	realtimeHandler  handler.RealtimeHandlerInterface
}

// NewProcessor creates a new processor with all components wired up.
// Accepts the main config object to access NATS and worker pool settings.
func NewProcessor(service *EventService, jsClient jetstream.ClientInterface, cfg *config.Config, companyID string) *Processor {
	// One router shared by both consumers
	router := ingestion.NewRouter()

	histHandler := handler.NewHistoricalHandler(service)
	realtimeHandler := handler.NewRealtimeHandler(service)

	// One shard pool shared by both consumers: per-conversation ordering
	// must hold across realtime and snapshot traffic alike.
	dispatcher := ingestion.NewShardDispatcher(cfg.WorkerPools.Ingest.Shards, cfg.WorkerPools.Ingest.QueueSize)

	// Append companyID to consumer names for uniqueness
	realtimeCfg := cfg.NATS.Realtime
	realtimeCfg.Consumer = realtimeCfg.Consumer + companyID
	realtimeCfg.QueueGroup = realtimeCfg.QueueGroup + companyID
	realtimeConsumer := ingestion.NewRealtimeConsumer(jsClient, router, dispatcher, realtimeCfg, companyID, cfg.NATS.DLQSubject)

	snapshotCfg := cfg.NATS.Snapshot
	snapshotCfg.Consumer = snapshotCfg.Consumer + companyID
	snapshotCfg.QueueGroup = snapshotCfg.QueueGroup + companyID
	snapshotConsumer := ingestion.NewHistoricalConsumer(jsClient, router, dispatcher, snapshotCfg, companyID, cfg.NATS.DLQSubject)

	return &Processor{
		service:          service,
		jsClient:         jsClient,
		dispatcher:       dispatcher,
		realtimeConsumer: realtimeConsumer,
		snapshotConsumer: snapshotConsumer,
		eventRouter:      router,
		histHandler:      histHandler,
		realtimeHandler:  realtimeHandler,
	}
}

// GetRouter returns the processor's event router.
func (p *Processor) GetRouter() ingestion.RouterInterface {
	return p.eventRouter
}

// Setup registers the event handlers and sets up both consumers.
func (p *Processor) Setup() error {
	// Realtime events
	p.eventRouter.Register(model.V1MessagesInbound, p.realtimeHandler.HandleEvent)
	p.eventRouter.Register(model.V1MessagesStatus, p.realtimeHandler.HandleEvent)
	p.eventRouter.Register(model.V1Connection, p.realtimeHandler.HandleEvent)

	// Snapshot events
	p.eventRouter.Register(model.V1ThreadsSnapshot, p.histHandler.HandleEvent)
	p.eventRouter.Register(model.V1MessagesSnapshot, p.histHandler.HandleEvent)

	// Default handler for unknown event types; logged and acked so a stray
	// producer cannot wedge a shard with redeliveries.
	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("version", eventType.GetVersion()),
			zap.String("base_type", string(eventType.GetBaseType())),
		)
		return nil
	})

	if err := p.realtimeConsumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup realtime consumer: %w", err)
	}
	if err := p.snapshotConsumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup snapshot consumer: %w", err)
	}

	logger.Log.Info("Processor setup complete for both consumers")
	return nil
}

// Start starts both consumers.
func (p *Processor) Start() error {
	logger.Log.Info("Starting event processor with both consumers...")

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("[panic] Recovered from panic in processor",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := p.realtimeConsumer.Start(); err != nil {
		p.snapshotConsumer.Stop()
		return fmt.Errorf("failed to start realtime consumer: %w", err)
	}
	if err := p.snapshotConsumer.Start(); err != nil {
		p.realtimeConsumer.Stop()
		return fmt.Errorf("failed to start snapshot consumer: %w", err)
	}

	logger.Log.Info("Both consumers started successfully")
	return nil
}

// Stop stops both consumers, then drains the shard pool.
func (p *Processor) Stop() {
	logger.Log.Info("Stopping event processor and both consumers...")
	p.snapshotConsumer.Stop()
	p.realtimeConsumer.Stop()
	p.dispatcher.Stop()
	logger.Log.Info("Both consumers stopped")
}
