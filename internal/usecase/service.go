package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/config"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/genai"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

// OutboundGateway is the door to the per-tenant provider session workers.
// Implemented by *provider.Registry.
type OutboundGateway interface {
	Send(ctx context.Context, companyID string, req provider.SendRequest) (string, error)
	Connected(companyID string) bool
}

// SessionRegistry tracks live provider sessions per tenant. Implemented by
// *provider.Registry; connection events drive membership.
type SessionRegistry interface {
	Register(companyID string, session provider.Session)
	Deregister(companyID string)
}

// SessionFactory builds the session for a freshly connected account.
// Implementations wrap the external provider bridge.
type SessionFactory func(companyID, accountID string) (provider.Session, error)

// EventService implements realtime ingestion, snapshot reconciliation, the
// responder, outbound dispatch and bulk fan-out on top of the repositories.
type EventService struct {
	conversationRepo   storage.ConversationRepo
	messageRepo        storage.MessageRepo
	leadRepo           storage.LeadRepo
	accountRepo        storage.ProviderAccountRepo
	exhaustedEventRepo storage.ExhaustedEventRepo

	gateway     OutboundGateway
	generator   genai.Generator
	syncWorker  ISyncWorker
	replayCache *cache.ReplayCache

	sessionRegistry SessionRegistry
	sessionFactory  SessionFactory

	defaultCountry string
	responderCfg   config.ResponderConfig
	bulkCfg        config.BulkConfig
}

// NewEventService creates the service. gateway, generator, syncWorker and
// replayCache may be nil; the features depending on them degrade to skips.
func NewEventService(
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	leadRepo storage.LeadRepo,
	accountRepo storage.ProviderAccountRepo,
	exhaustedEventRepo storage.ExhaustedEventRepo,
	gateway OutboundGateway,
	generator genai.Generator,
	syncWorker ISyncWorker,
	replayCache *cache.ReplayCache,
	cfg *config.Config,
) *EventService {
	s := &EventService{
		conversationRepo:   conversationRepo,
		messageRepo:        messageRepo,
		leadRepo:           leadRepo,
		accountRepo:        accountRepo,
		exhaustedEventRepo: exhaustedEventRepo,
		gateway:            gateway,
		generator:          generator,
		syncWorker:         syncWorker,
		replayCache:        replayCache,
	}
	if cfg != nil {
		s.defaultCountry = cfg.Identity.DefaultCountry
		s.responderCfg = cfg.Responder
		s.bulkCfg = cfg.Bulk
	}
	return s
}

// BindSessionLifecycle wires connection events to the session registry:
// a connected account registers a session built by factory, a disconnect
// deregisters it. Without the binding, connection events only persist
// account status.
func (s *EventService) BindSessionLifecycle(registry SessionRegistry, factory SessionFactory) {
	s.sessionRegistry = registry
	s.sessionFactory = factory
}

// validateCompanyTenant validates that the payload company matches the
// tenant ID from context.
func validateCompanyTenant(ctx context.Context, companyID string) error {
	if companyID == "" {
		return nil // Payload company is optional; the context is authoritative
	}

	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get tenant ID: %w", err)
	}
	if companyID != tenantID {
		return fmt.Errorf("company (%s) does not match tenant ID (%s)", companyID, tenantID)
	}
	return nil
}

// lastMetadataJSON serializes consumer metadata for the jsonb audit column.
func lastMetadataJSON(metadata *model.LastMetadata) datatypes.JSON {
	if metadata == nil {
		return nil
	}
	metadataMap := map[string]interface{}{
		"consumer_sequence": metadata.ConsumerSequence,
		"stream_sequence":   metadata.StreamSequence,
		"stream":            metadata.Stream,
		"consumer":          metadata.Consumer,
		"domain":            metadata.Domain,
		"message_id":        metadata.MessageID,
		"message_subject":   metadata.MessageSubject,
		"processed_at":      utils.Now(),
	}
	return utils.MustMarshalJSON(metadataMap)
}

// handleRepositoryError maps standard apperrors from the repository layer
// to FatalError or RetryableError for the use case layer.
func handleRepositoryError(ctx context.Context, err error, operation string, entityID string) error {
	if err == nil {
		return nil
	}

	log := logger.FromContext(ctx)
	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
	}
	if entityID != "" {
		logFields = append(logFields, zap.String("entity_id", entityID))
	}

	// Specific fatal errors (cannot be resolved by retry)
	if errors.Is(err, apperrors.ErrNotFound) {
		log.Warn("Repository operation failed: Not found", logFields...)
		return apperrors.NewFatal(err, "%s failed: resource not found", operation)
	}
	if errors.Is(err, apperrors.ErrDuplicate) {
		log.Warn("Repository operation failed: Duplicate resource", logFields...)
		return apperrors.NewFatal(err, "%s failed: duplicate resource", operation)
	}
	if errors.Is(err, apperrors.ErrBadRequest) {
		log.Warn("Repository operation failed: Bad request", logFields...)
		return apperrors.NewFatal(err, "%s failed: bad request data", operation)
	}
	if errors.Is(err, apperrors.ErrUnauthorized) {
		log.Error("Repository operation failed: Unauthorized", logFields...)
		return apperrors.NewFatal(err, "%s failed: unauthorized", operation)
	}
	if errors.Is(err, apperrors.ErrConflict) {
		log.Warn("Repository operation failed: Conflict", logFields...)
		return apperrors.NewFatal(err, "%s failed: resource conflict", operation)
	}

	// General database errors (potentially transient)
	if errors.Is(err, apperrors.ErrDatabase) {
		log.Error("Repository operation failed: Database error", logFields...)
		return apperrors.NewRetryable(err, "%s failed: database error", operation)
	}
	if errors.Is(err, apperrors.ErrTimeout) {
		log.Warn("Repository operation failed: Timeout", logFields...)
		return apperrors.NewRetryable(err, "%s failed: operation timeout", operation)
	}
	if errors.Is(err, apperrors.ErrNATS) {
		log.Error("Repository operation failed: NATS error", logFields...)
		return apperrors.NewRetryable(err, "%s failed: NATS communication error", operation)
	}

	log.Error("Repository operation failed: Unexpected error", logFields...)
	return apperrors.NewFatal(err, "%s failed: unexpected repository error", operation)
}

// resolveConversation finds the conversation owning jid or creates it from
// seed. The returned row always carries the stored ID and AI flag; profile
// fields from seed refresh the row under last-non-empty-write-wins.
func (s *EventService) resolveConversation(ctx context.Context, jid string, seed model.Conversation) (*model.Conversation, error) {
	existing, err := s.conversationRepo.FindByJID(ctx, jid)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, handleRepositoryError(ctx, err, "FindConversationByJID", jid)
	}

	if existing != nil {
		seed.ID = existing.ID
		seed.AIEnabled = existing.AIEnabled
		seed.CreatedAt = existing.CreatedAt
	}
	if seed.LastActivityAt.IsZero() {
		seed.LastActivityAt = utils.Now()
	}

	if err := s.conversationRepo.Upsert(ctx, &seed); err != nil {
		return nil, handleRepositoryError(ctx, err, "UpsertConversation", jid)
	}
	return &seed, nil
}
