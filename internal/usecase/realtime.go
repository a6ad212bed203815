package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/identity"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/validator"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

// IngestMessage runs one inbound provider message through the pipeline:
// identity normalization, conversation resolution, idempotent log append,
// then responder evaluation. A replayed provider id short-circuits after
// the append so the responder runs at most once per message.
func (s *EventService) IngestMessage(ctx context.Context, payload model.InboundMessagePayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)

	if err := validator.Validate(payload); err != nil {
		log.Error("Inbound message validation failed",
			zap.String("message_id", payload.MessageID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "inbound message validation failed")
	}

	companyID, err := tenant.FromContext(ctx)
	if err != nil || companyID == "" {
		log.Error("Failed to get tenant ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if err := validateCompanyTenant(ctx, payload.CompanyID); err != nil {
		log.Error("CompanyID validation failed for inbound message",
			zap.String("message_id", payload.MessageID),
			zap.String("company_id", payload.CompanyID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "company validation error")
	}

	// Normalized: malformed identity is terminal, the event goes to the DLQ.
	jid, err := identity.Normalize(payload.ChatKey(), s.defaultCountry)
	if err != nil {
		log.Warn("Rejecting inbound message: invalid identity",
			zap.String("message_id", payload.MessageID),
			zap.String("raw", payload.ChatKey()),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "invalid contact identity")
	}

	metadataJSON := lastMetadataJSON(metadata)

	// ConversationResolved
	seed := model.Conversation{
		ID:              uuid.NewString(),
		JID:             jid,
		DisplayName:     payload.PushName,
		AvatarURL:       payload.AvatarURL,
		ChatType:        string(identity.Classify(jid)),
		AIEnabled:       true,
		LastMessageText: payload.MessageText,
		LastActivityAt:  model.CreateTimeFromTimestamp(payload.MessageTimestamp),
		CompanyID:       companyID,
		LastMetadata:    metadataJSON,
	}
	if identity.IsIndividual(jid) {
		seed.PhoneNumber = identity.BareNumber(jid)
	}
	conv, err := s.resolveConversation(ctx, jid, seed)
	if err != nil {
		return err
	}

	// Logged
	message := model.Message{
		MessageID:        payload.MessageID,
		ConversationID:   conv.ID,
		Jid:              jid,
		Flow:             payload.Flow,
		MessageText:      payload.MessageText,
		MessageType:      payload.MessageType,
		Origin:           model.MessageOriginProvider,
		CompanyID:        companyID,
		Status:           payload.Status,
		MessageTimestamp: payload.MessageTimestamp,
		LastMetadata:     metadataJSON,
	}
	if message.Status == "" {
		message.Status = model.MessageStatusDelivered
	}
	if payload.MessageObj != nil {
		message.MessageObj = utils.MustMarshalJSON(payload.MessageObj)
	}
	if payload.MessageTimestamp > 0 {
		message.MessageDate = model.CreateTimeFromTimestamp(payload.MessageTimestamp)
	} else {
		message.MessageDate = utils.Now()
	}

	stored, appended, err := s.messageRepo.Append(ctx, message)
	if err != nil {
		return handleRepositoryError(ctx, err, "AppendMessage", payload.MessageID)
	}
	if !appended {
		// Replay of an already-logged provider id. The existing row stands
		// and the responder must not fire again.
		log.Info("Duplicate inbound message absorbed",
			zap.String("message_id", payload.MessageID),
			zap.String("conversation_id", stored.ConversationID),
		)
		return nil
	}

	// ResponderEvaluated stays on the shard worker so replies of one
	// conversation go out in arrival order. The generation timeout caps
	// how long a single message can hold the shard.
	s.evaluateResponder(ctx, conv, stored)

	log.Info("Inbound message ingested",
		zap.String("message_id", stored.MessageID),
		zap.String("conversation_id", conv.ID),
		zap.String("flow", stored.Flow),
	)
	return nil
}

// UpdateMessageStatus applies a delivery receipt to an already-logged
// message. A receipt arriving before its message is retryable: redelivery
// gives the insert time to land.
func (s *EventService) UpdateMessageStatus(ctx context.Context, payload model.MessageStatusPayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)

	if err := validator.Validate(payload); err != nil {
		log.Error("Message status validation failed",
			zap.String("message_id", payload.MessageID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "message status validation failed")
	}
	if err := validateCompanyTenant(ctx, payload.CompanyID); err != nil {
		log.Error("CompanyID validation failed for status update",
			zap.String("message_id", payload.MessageID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "company validation error")
	}

	err := s.messageRepo.UpdateStatus(ctx, payload.MessageID, payload.Status, payload.IsDeleted)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("Receipt for unknown message, retrying later",
				zap.String("message_id", payload.MessageID),
				zap.String("status", payload.Status),
			)
			return apperrors.NewRetryable(err, "message %s not yet logged", payload.MessageID)
		}
		return handleRepositoryError(ctx, err, "UpdateMessageStatus", payload.MessageID)
	}

	log.Info("Message status updated",
		zap.String("message_id", payload.MessageID),
		zap.String("status", payload.Status),
	)
	return nil
}

// UpdateConnection persists a session connect/disconnect transition so the
// dispatch layer can explain NOT_CONNECTED failures after a restart.
func (s *EventService) UpdateConnection(ctx context.Context, payload model.ConnectionUpdatePayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)

	if err := validator.Validate(payload); err != nil {
		log.Error("Connection update validation failed",
			zap.String("account_id", payload.AccountID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "connection update validation failed")
	}
	if err := validateCompanyTenant(ctx, payload.CompanyID); err != nil {
		log.Error("CompanyID validation failed for connection update",
			zap.String("account_id", payload.AccountID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "company validation error")
	}

	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}

	account := model.ProviderAccount{
		AccountID:    payload.AccountID,
		Status:       payload.Status,
		PhoneNumber:  payload.PhoneNumber,
		HostName:     payload.HostName,
		Version:      payload.Version,
		CompanyID:    companyID,
		LastMetadata: lastMetadataJSON(metadata),
	}
	if payload.Status == model.AccountStatusConnected {
		now := utils.Now()
		account.LastConnectedAt = &now
	}

	if err := s.accountRepo.Save(ctx, account); err != nil {
		return handleRepositoryError(ctx, err, "SaveProviderAccount", payload.AccountID)
	}

	s.syncSessionRegistry(ctx, companyID, payload.AccountID, payload.Status)

	log.Info("Provider connection state recorded",
		zap.String("account_id", payload.AccountID),
		zap.String("status", payload.Status),
	)
	return nil
}

// syncSessionRegistry keeps registry membership in step with the persisted
// connection state: register on connect, deregister on disconnect. A
// session build failure is logged and left to the next connection event;
// the account row is already saved either way.
func (s *EventService) syncSessionRegistry(ctx context.Context, companyID, accountID, status string) {
	if s.sessionRegistry == nil {
		return
	}
	log := logger.FromContext(ctx)

	switch status {
	case model.AccountStatusConnected:
		if s.sessionFactory == nil {
			log.Warn("Connected account has no session factory bound; sends will fail NOT_CONNECTED",
				zap.String("account_id", accountID),
			)
			return
		}
		session, err := s.sessionFactory(companyID, accountID)
		if err != nil {
			log.Error("Failed to build provider session for connected account",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
			return
		}
		s.sessionRegistry.Register(companyID, session)
	case model.AccountStatusDisconnected:
		s.sessionRegistry.Deregister(companyID)
	}
}
