package storage

import (
	"context"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
)

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	Upsert(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByJID(ctx context.Context, jid string) (*model.Conversation, error)
	List(ctx context.Context, filter ListConversationsFilter) ([]model.Conversation, error)
	SetAI(ctx context.Context, id string, enabled bool) error
	BulkUpsert(ctx context.Context, convs []model.Conversation) error
	Close(ctx context.Context) error
}

// MessageRepo defines message log storage operations
type MessageRepo interface {
	Append(ctx context.Context, message model.Message) (*model.Message, bool, error)
	UpdateStatus(ctx context.Context, messageID, status string, isDeleted bool) error
	FindByMessageID(ctx context.Context, messageID string) (*model.Message, error)
	Latest(ctx context.Context, conversationID string, limit int, beforeID int64) ([]model.Message, error)
	Count(ctx context.Context, conversationID string) (int64, error)
	BulkUpsert(ctx context.Context, messages []model.Message) error
	Close(ctx context.Context) error
}

// LeadRepo defines lead storage operations
type LeadRepo interface {
	Save(ctx context.Context, lead model.Lead) error
	Update(ctx context.Context, lead model.Lead) error
	FindByID(ctx context.Context, id string) (*model.Lead, error)
	FindByJID(ctx context.Context, jid string) (*model.Lead, error)
	FindByColumnID(ctx context.Context, columnID string, limit, offset int) ([]model.Lead, error)
	BulkUpsert(ctx context.Context, leads []model.Lead) error
	Close(ctx context.Context) error
}

// ProviderAccountRepo defines provider session storage operations
type ProviderAccountRepo interface {
	Save(ctx context.Context, account model.ProviderAccount) error
	UpdateStatus(ctx context.Context, accountID string, status string) error
	FindByAccountID(ctx context.Context, accountID string) (*model.ProviderAccount, error)
	FindByStatus(ctx context.Context, status string) ([]model.ProviderAccount, error)
	BulkUpsert(ctx context.Context, accounts []model.ProviderAccount) error
	Close(ctx context.Context) error
}

// ExhaustedEventRepo defines exhausted event storage operations
type ExhaustedEventRepo interface {
	Save(ctx context.Context, event model.ExhaustedEvent) error
	Close(ctx context.Context) error // Assuming Close might be needed here too
}
