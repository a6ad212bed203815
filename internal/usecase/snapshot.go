package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/identity"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

// ProcessThreadSnapshot reconciles one provider thread batch into the
// conversation store. The transformation runs in parallel; the bulk upsert
// itself goes through the sync worker pool so snapshot bursts never stall
// the ingestion shard. The whole operation is idempotent.
func (s *EventService) ProcessThreadSnapshot(ctx context.Context, payload model.ThreadSnapshotPayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)
	start := utils.Now()

	if len(payload.Threads) == 0 {
		log.Warn("No threads to process in snapshot payload")
		return nil
	}

	companyID, err := tenant.FromContext(ctx)
	if err != nil || companyID == "" {
		log.Error("Failed to get tenant ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if err := validateCompanyTenant(ctx, payload.CompanyID); err != nil {
		return apperrors.NewFatal(err, "company validation error")
	}

	metadataJSON := lastMetadataJSON(metadata)

	candidates := iter.Map(payload.Threads, func(entry *model.ThreadSnapshotEntry) *model.Conversation {
		jid, normErr := identity.Normalize(entry.Jid, s.defaultCountry)
		if normErr != nil {
			log.Warn("Skipping snapshot thread with invalid identity",
				zap.String("raw", entry.Jid),
				zap.Error(normErr),
			)
			return nil
		}
		conv := &model.Conversation{
			ID:              uuid.NewString(),
			JID:             jid,
			DisplayName:     entry.DisplayName,
			AvatarURL:       entry.AvatarURL,
			ChatType:        string(identity.Classify(jid)),
			AIEnabled:       true,
			UnreadCount:     entry.UnreadCount,
			LastMessageText: entry.LastMessageText,
			LastActivityAt:  model.CreateTimeFromTimestamp(entry.LastActivityTS),
			CompanyID:       companyID,
			LastMetadata:    metadataJSON,
		}
		if identity.IsIndividual(jid) {
			conv.PhoneNumber = identity.BareNumber(jid)
		}
		return conv
	})

	conversations := make([]model.Conversation, 0, len(candidates))
	for _, c := range candidates {
		if c != nil {
			conversations = append(conversations, *c)
		}
	}
	if len(conversations) == 0 {
		log.Warn("Snapshot batch contained no valid threads",
			zap.Int("raw_count", len(payload.Threads)),
		)
		return nil
	}

	if s.syncWorker != nil {
		taskCtx := tenant.WithCompanyID(context.Background(), companyID)
		taskCtx = logger.WithLogger(taskCtx, logger.FromContext(ctx))
		if err := s.syncWorker.Submit(SyncTask{
			Ctx:           taskCtx,
			CompanyID:     companyID,
			Conversations: conversations,
		}); err != nil {
			// Queue saturation is transient; redelivery tries again.
			return apperrors.NewRetryable(err, "failed to queue snapshot batch")
		}
	} else {
		if err := s.conversationRepo.BulkUpsert(ctx, conversations); err != nil {
			return handleRepositoryError(ctx, err, "BulkUpsertConversations", "")
		}
	}

	log.Info("Thread snapshot batch processed",
		zap.Int("count", len(conversations)),
		zap.Int("skipped", len(payload.Threads)-len(conversations)),
		zap.Bool("is_last_batch", payload.IsLastBatch),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// ProcessMessageSnapshot bulk-loads one historical message batch. Unknown
// conversations are created on the fly; replayed provider ids are absorbed
// by the message unique index.
func (s *EventService) ProcessMessageSnapshot(ctx context.Context, payload model.MessageSnapshotPayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)
	start := utils.Now()

	if len(payload.Messages) == 0 {
		log.Warn("No messages to process in snapshot payload")
		return nil
	}

	companyID, err := tenant.FromContext(ctx)
	if err != nil || companyID == "" {
		log.Error("Failed to get tenant ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}

	metadataJSON := lastMetadataJSON(metadata)

	// Resolve every distinct conversation first so the message rows carry
	// stable conversation ids.
	conversationByJID := make(map[string]*model.Conversation)
	for _, msg := range payload.Messages {
		jid, normErr := identity.Normalize(msg.ChatKey(), s.defaultCountry)
		if normErr != nil {
			continue
		}
		if _, ok := conversationByJID[jid]; ok {
			continue
		}
		seed := model.Conversation{
			ID:             uuid.NewString(),
			JID:            jid,
			DisplayName:    msg.PushName,
			AvatarURL:      msg.AvatarURL,
			ChatType:       string(identity.Classify(jid)),
			AIEnabled:      true,
			LastActivityAt: model.CreateTimeFromTimestamp(msg.MessageTimestamp),
			CompanyID:      companyID,
			LastMetadata:   metadataJSON,
		}
		if identity.IsIndividual(jid) {
			seed.PhoneNumber = identity.BareNumber(jid)
		}
		conv, resolveErr := s.resolveConversation(ctx, jid, seed)
		if resolveErr != nil {
			return resolveErr
		}
		conversationByJID[jid] = conv
	}

	candidates := iter.Map(payload.Messages, func(msg *model.InboundMessagePayload) *model.Message {
		if msg.MessageID == "" {
			return nil
		}
		jid, normErr := identity.Normalize(msg.ChatKey(), s.defaultCountry)
		if normErr != nil {
			return nil
		}
		conv := conversationByJID[jid]
		if conv == nil {
			return nil
		}

		dbMessage := &model.Message{
			MessageID:        msg.MessageID,
			ConversationID:   conv.ID,
			Jid:              jid,
			Flow:             msg.Flow,
			MessageText:      msg.MessageText,
			MessageType:      msg.MessageType,
			Origin:           model.MessageOriginProvider,
			CompanyID:        companyID,
			Status:           msg.Status,
			MessageTimestamp: msg.MessageTimestamp,
			LastMetadata:     metadataJSON,
		}
		if dbMessage.Status == "" {
			dbMessage.Status = model.MessageStatusDelivered
		}
		if msg.MessageObj != nil {
			dbMessage.MessageObj = utils.MustMarshalJSON(msg.MessageObj)
		}
		if msg.MessageTimestamp > 0 {
			dbMessage.MessageDate = model.CreateTimeFromTimestamp(msg.MessageTimestamp)
		} else {
			dbMessage.MessageDate = utils.Now()
		}
		return dbMessage
	})

	dbMessages := make([]model.Message, 0, len(candidates))
	for _, m := range candidates {
		if m != nil {
			dbMessages = append(dbMessages, *m)
		}
	}
	skipped := len(payload.Messages) - len(dbMessages)

	if len(dbMessages) > 0 {
		if err := s.messageRepo.BulkUpsert(ctx, dbMessages); err != nil {
			log.Error("Failed to process message snapshot (BulkUpsert)",
				zap.Int("count", len(dbMessages)),
				zap.Error(err),
			)
			return handleRepositoryError(ctx, err, "BulkUpsertMessages", "")
		}
	}

	log.Info("Message snapshot batch processed",
		zap.Int("count", len(dbMessages)),
		zap.Int("skipped", skipped),
		zap.Bool("is_last_batch", payload.IsLastBatch),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
