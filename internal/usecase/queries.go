package usecase

import (
	"context"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage"
)

// Listing defaults; the HTTP layer may override within these bounds.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListConversations returns the tenant's conversations most recently active
// first.
func (s *EventService) ListConversations(ctx context.Context, filter storage.ListConversationsFilter) ([]model.Conversation, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	convs, err := s.conversationRepo.List(ctx, filter)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "ListConversations", "")
	}
	return convs, nil
}

// ConversationMessages returns one page of a conversation's log, newest
// first, plus the total row count. beforeID pages past the previous page's
// oldest row.
func (s *EventService) ConversationMessages(ctx context.Context, conversationID string, limit int, beforeID int64) ([]model.Message, int64, error) {
	if conversationID == "" {
		return nil, 0, apperrors.NewFatal(apperrors.ErrBadRequest, "conversation id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	if _, err := s.conversationRepo.FindByID(ctx, conversationID); err != nil {
		return nil, 0, handleRepositoryError(ctx, err, "FindConversationByID", conversationID)
	}

	messages, err := s.messageRepo.Latest(ctx, conversationID, limit, beforeID)
	if err != nil {
		return nil, 0, handleRepositoryError(ctx, err, "LatestMessages", conversationID)
	}
	total, err := s.messageRepo.Count(ctx, conversationID)
	if err != nil {
		return nil, 0, handleRepositoryError(ctx, err, "CountMessages", conversationID)
	}
	return messages, total, nil
}

// SetConversationAI flips the per-conversation auto-reply flag.
func (s *EventService) SetConversationAI(ctx context.Context, conversationID string, enabled bool) error {
	if conversationID == "" {
		return apperrors.NewFatal(apperrors.ErrBadRequest, "conversation id is required")
	}
	if err := s.conversationRepo.SetAI(ctx, conversationID, enabled); err != nil {
		return handleRepositoryError(ctx, err, "SetConversationAI", conversationID)
	}
	return nil
}
