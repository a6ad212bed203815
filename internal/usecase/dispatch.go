package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/identity"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

// SendManual normalizes the raw recipient, resolves (or creates) its
// conversation and dispatches one message through the tenant's session.
// countryHint overrides the configured default dialing code for this call.
func (s *EventService) SendManual(ctx context.Context, recipientRaw, text, countryHint string) (*model.Message, error) {
	log := logger.FromContext(ctx)

	companyID, err := tenant.FromContext(ctx)
	if err != nil || companyID == "" {
		return nil, apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "message text is required")
	}

	hint := countryHint
	if hint == "" {
		hint = s.defaultCountry
	}
	jid, err := identity.Normalize(recipientRaw, hint)
	if err != nil {
		log.Warn("Manual send rejected: invalid recipient",
			zap.String("recipient_raw", recipientRaw),
			zap.Error(err),
		)
		return nil, err
	}

	seed := model.Conversation{
		ID:             uuid.NewString(),
		JID:            jid,
		ChatType:       string(identity.Classify(jid)),
		AIEnabled:      true,
		LastActivityAt: utils.Now(),
		CompanyID:      companyID,
	}
	if identity.IsIndividual(jid) {
		seed.PhoneNumber = identity.BareNumber(jid)
	}
	conv, err := s.resolveConversation(ctx, jid, seed)
	if err != nil {
		return nil, err
	}

	return s.dispatchText(ctx, conv, text, model.MessageOriginManual)
}

// dispatchText makes exactly one provider call for the conversation and, on
// success, appends the OUT row under the provider-assigned message id.
// Failures surface as *apperrors.DispatchError; nothing is retried here.
func (s *EventService) dispatchText(ctx context.Context, conv *model.Conversation, text, origin string) (*model.Message, error) {
	log := logger.FromContext(ctx)

	if s.gateway == nil {
		observer.IncDispatchResult(conv.CompanyID, strings.ToLower(string(apperrors.DispatchNotConnected)))
		return nil, apperrors.NewDispatchError(apperrors.DispatchNotConnected,
			errors.New("no outbound gateway configured"))
	}

	start := time.Now()
	providerMessageID, err := s.gateway.Send(ctx, conv.CompanyID, provider.SendRequest{
		RecipientJID: conv.JID,
		Text:         text,
	})
	observer.ObserveDispatchDuration(conv.CompanyID, time.Since(start))

	if err != nil {
		kind := apperrors.DispatchKindOf(err)
		if kind == "" {
			kind = apperrors.DispatchProviderRejected
			err = apperrors.NewDispatchError(kind, err)
		}
		observer.IncDispatchResult(conv.CompanyID, strings.ToLower(string(kind)))
		log.Warn("Outbound dispatch failed",
			zap.String("conversation_id", conv.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, err
	}
	observer.IncDispatchResult(conv.CompanyID, "success")

	now := utils.Now()
	message := model.Message{
		MessageID:        providerMessageID,
		ConversationID:   conv.ID,
		Jid:              conv.JID,
		Flow:             model.MessageFlowOutgoing,
		MessageText:      text,
		Origin:           origin,
		CompanyID:        conv.CompanyID,
		Status:           model.MessageStatusSent,
		MessageTimestamp: now.Unix(),
		MessageDate:      now,
	}
	stored, _, err := s.messageRepo.Append(ctx, message)
	if err != nil {
		// The provider accepted the message; only the log write failed.
		log.Error("Failed to append outbound message after successful send",
			zap.String("provider_message_id", providerMessageID),
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return nil, handleRepositoryError(ctx, err, "AppendOutboundMessage", providerMessageID)
	}

	log.Info("Outbound message dispatched",
		zap.String("provider_message_id", providerMessageID),
		zap.String("conversation_id", conv.ID),
		zap.String("origin", origin),
	)
	return stored, nil
}
