package usecase

import (
	"context"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/genai"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/identity"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
)

// Responder skip/outcome labels reported to metrics.
const (
	responderReplied              = "replied"
	responderSkippedDisabled      = "skipped_disabled"
	responderSkippedConversation  = "skipped_conversation_off"
	responderSkippedNonIndividual = "skipped_non_individual"
	responderSkippedOutgoing      = "skipped_outgoing"
	responderSkippedReplay        = "skipped_replay"
	responderSkippedEmptyText     = "skipped_empty_text"
	responderSkippedNoGenerator   = "skipped_no_generator"
	responderFailedGeneration     = "failed_generation"
	responderFailedDispatch       = "failed_dispatch"
	responderFailedHistory        = "failed_history"
)

// evaluateResponder runs the responder gate and, when it passes, generates
// and dispatches the reply on the calling shard worker. Staying on the
// shard keeps replies of one conversation in arrival order; the generation
// timeout bounds how long the shard can stall.
func (s *EventService) evaluateResponder(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	if !s.shouldRespond(ctx, conv, msg) {
		return
	}
	s.respond(ctx, conv, msg)
}

// shouldRespond applies the responder gate: tenant toggle, per-conversation
// flag, recipient kind, flow direction and replay dedup, in that order.
// Marking the replay cache is the last step so a rejected message does not
// burn its dedup slot.
func (s *EventService) shouldRespond(ctx context.Context, conv *model.Conversation, msg *model.Message) bool {
	log := logger.FromContext(ctx)
	skip := func(reason string) bool {
		observer.IncResponderOutcome(conv.CompanyID, reason)
		log.Debug("Responder skipped",
			zap.String("reason", reason),
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.MessageID),
		)
		return false
	}

	if !s.responderCfg.Enabled {
		return skip(responderSkippedDisabled)
	}
	if s.generator == nil {
		return skip(responderSkippedNoGenerator)
	}
	if !conv.AIEnabled {
		return skip(responderSkippedConversation)
	}
	if !identity.IsIndividual(conv.JID) {
		return skip(responderSkippedNonIndividual)
	}
	if msg.Flow != model.MessageFlowIncoming {
		return skip(responderSkippedOutgoing)
	}
	if msg.MessageText == "" {
		return skip(responderSkippedEmptyText)
	}
	if s.replayCache != nil && s.replayCache.MarkSeen(conv.ID, msg.MessageID) {
		return skip(responderSkippedReplay)
	}
	return true
}

// respond generates one reply and dispatches it. Every failure degrades to
// a skip: the inbound message is already acked and must not be retried for
// the sake of an automated reply.
func (s *EventService) respond(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	log := logger.FromContext(ctx).With(
		zap.String("conversation_id", conv.ID),
		zap.String("message_id", msg.MessageID),
	)

	genCtx := ctx
	if s.responderCfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.responderCfg.Timeout)
		defer cancel()
	}

	history, err := s.conversationHistory(genCtx, conv.ID, msg.MessageID)
	if err != nil {
		// History is contextual garnish; generate from the message alone.
		log.Warn("Failed to load conversation history for responder", zap.Error(err))
		observer.IncResponderOutcome(conv.CompanyID, responderFailedHistory)
		history = nil
	}

	reply, err := s.generator.Generate(genCtx, genai.Request{
		SystemPrompt: s.responderCfg.SystemPrompt,
		History:      history,
		UserText:     msg.MessageText,
	})
	if err != nil {
		log.Warn("Reply generation failed, skipping automated reply", zap.Error(err))
		observer.IncResponderOutcome(conv.CompanyID, responderFailedGeneration)
		return
	}
	if reply == "" {
		log.Debug("Generator returned empty reply, skipping")
		observer.IncResponderOutcome(conv.CompanyID, responderSkippedEmptyText)
		return
	}

	if _, err := s.dispatchText(ctx, conv, reply, model.MessageOriginAutoReply); err != nil {
		log.Warn("Automated reply dispatch failed", zap.Error(err))
		observer.IncResponderOutcome(conv.CompanyID, responderFailedDispatch)
		return
	}

	observer.IncResponderOutcome(conv.CompanyID, responderReplied)
	log.Info("Automated reply dispatched")
}

// conversationHistory loads the latest messages of the conversation as
// generator chat turns, oldest first, excluding the triggering message.
func (s *EventService) conversationHistory(ctx context.Context, conversationID, triggerMessageID string) ([]genai.HistoryEntry, error) {
	limit := s.responderCfg.HistoryLimit
	if limit <= 0 {
		return nil, nil
	}

	messages, err := s.messageRepo.Latest(ctx, conversationID, limit, 0)
	if err != nil {
		return nil, err
	}

	// Latest returns newest first; the model wants chronological order.
	history := make([]genai.HistoryEntry, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.MessageID == triggerMessageID || m.MessageText == "" || m.IsDeleted {
			continue
		}
		role := genai.RoleUser
		if m.Flow == model.MessageFlowOutgoing {
			role = genai.RoleAssistant
		}
		history = append(history, genai.HistoryEntry{Role: role, Text: m.MessageText})
	}
	return history, nil
}
