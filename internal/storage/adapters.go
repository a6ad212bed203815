package storage

import (
	"context"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
)

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

// Upsert creates or refreshes a conversation by jid
func (a *ConversationRepoAdapter) Upsert(ctx context.Context, conv *model.Conversation) error {
	return a.postgres.UpsertConversation(ctx, conv)
}

// FindByID finds a conversation by ID
func (a *ConversationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationByID(ctx, id)
}

// FindByJID finds a conversation by contact jid
func (a *ConversationRepoAdapter) FindByJID(ctx context.Context, jid string) (*model.Conversation, error) {
	return a.postgres.FindConversationByJID(ctx, jid)
}

// List lists conversations ordered by recency
func (a *ConversationRepoAdapter) List(ctx context.Context, filter ListConversationsFilter) ([]model.Conversation, error) {
	return a.postgres.ListConversations(ctx, filter)
}

// SetAI flips the auto-reply toggle of a conversation
func (a *ConversationRepoAdapter) SetAI(ctx context.Context, id string, enabled bool) error {
	return a.postgres.SetConversationAI(ctx, id, enabled)
}

// BulkUpsert performs a bulk upsert of conversations
func (a *ConversationRepoAdapter) BulkUpsert(ctx context.Context, convs []model.Conversation) error {
	return a.postgres.BulkUpsertConversations(ctx, convs)
}

func (a *ConversationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

// Append appends a message and touches the owning conversation
func (a *MessageRepoAdapter) Append(ctx context.Context, message model.Message) (*model.Message, bool, error) {
	return a.postgres.AppendMessage(ctx, message)
}

// UpdateStatus applies a delivery receipt
func (a *MessageRepoAdapter) UpdateStatus(ctx context.Context, messageID, status string, isDeleted bool) error {
	return a.postgres.UpdateMessageStatus(ctx, messageID, status, isDeleted)
}

// FindByMessageID finds a message by provider id
func (a *MessageRepoAdapter) FindByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	return a.postgres.FindMessageByMessageID(ctx, messageID)
}

// Latest returns the newest messages of a conversation
func (a *MessageRepoAdapter) Latest(ctx context.Context, conversationID string, limit int, beforeID int64) ([]model.Message, error) {
	return a.postgres.LatestMessages(ctx, conversationID, limit, beforeID)
}

// Count counts the log rows of a conversation
func (a *MessageRepoAdapter) Count(ctx context.Context, conversationID string) (int64, error) {
	return a.postgres.CountMessages(ctx, conversationID)
}

// BulkUpsert performs a bulk upsert of messages
func (a *MessageRepoAdapter) BulkUpsert(ctx context.Context, messages []model.Message) error {
	return a.postgres.BulkUpsertMessages(ctx, messages)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// LeadRepoAdapter adapts the PostgresRepo to the LeadRepo interface
type LeadRepoAdapter struct {
	postgres *PostgresRepo
}

func (a *LeadRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// NewLeadRepoAdapter creates a new lead repository adapter
func NewLeadRepoAdapter(postgres *PostgresRepo) LeadRepo {
	return &LeadRepoAdapter{postgres: postgres}
}

// Save saves a lead
func (a *LeadRepoAdapter) Save(ctx context.Context, lead model.Lead) error {
	return a.postgres.SaveLead(ctx, lead)
}

// Update updates a lead
func (a *LeadRepoAdapter) Update(ctx context.Context, lead model.Lead) error {
	return a.postgres.UpdateLead(ctx, lead)
}

// FindByID finds a lead by ID
func (a *LeadRepoAdapter) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	return a.postgres.FindLeadByID(ctx, id)
}

// FindByJID finds a lead by normalized jid
func (a *LeadRepoAdapter) FindByJID(ctx context.Context, jid string) (*model.Lead, error) {
	return a.postgres.FindLeadByJID(ctx, jid)
}

// FindByColumnID lists the active leads of a kanban column
func (a *LeadRepoAdapter) FindByColumnID(ctx context.Context, columnID string, limit, offset int) ([]model.Lead, error) {
	return a.postgres.FindLeadsByColumnIDPaginated(ctx, columnID, limit, offset)
}

// BulkUpsert performs a bulk upsert of leads
func (a *LeadRepoAdapter) BulkUpsert(ctx context.Context, leads []model.Lead) error {
	return a.postgres.BulkUpsertLeads(ctx, leads)
}

// ProviderAccountRepoAdapter adapts the PostgresRepo to the ProviderAccountRepo interface
type ProviderAccountRepoAdapter struct {
	postgres *PostgresRepo
}

// NewProviderAccountRepoAdapter creates a new provider account repository adapter
func NewProviderAccountRepoAdapter(postgres *PostgresRepo) ProviderAccountRepo {
	return &ProviderAccountRepoAdapter{postgres: postgres}
}

// Save saves an account
func (a *ProviderAccountRepoAdapter) Save(ctx context.Context, account model.ProviderAccount) error {
	return a.postgres.SaveProviderAccount(ctx, account)
}

// UpdateStatus records a connection transition
func (a *ProviderAccountRepoAdapter) UpdateStatus(ctx context.Context, accountID string, status string) error {
	return a.postgres.UpdateAccountStatus(ctx, accountID, status)
}

// FindByAccountID finds an account by its external identifier
func (a *ProviderAccountRepoAdapter) FindByAccountID(ctx context.Context, accountID string) (*model.ProviderAccount, error) {
	return a.postgres.FindProviderAccountByAccountID(ctx, accountID)
}

// FindByStatus finds accounts by status
func (a *ProviderAccountRepoAdapter) FindByStatus(ctx context.Context, status string) ([]model.ProviderAccount, error) {
	return a.postgres.FindAccountsByStatus(ctx, status)
}

// BulkUpsert performs a bulk upsert of accounts
func (a *ProviderAccountRepoAdapter) BulkUpsert(ctx context.Context, accounts []model.ProviderAccount) error {
	return a.postgres.BulkUpsertProviderAccounts(ctx, accounts)
}

// Close closes the repository
func (a *ProviderAccountRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// --- ExhaustedEventRepo Adapter ---

// ExhaustedEventRepoAdapter adapts the PostgresRepo to the ExhaustedEventRepo interface
type ExhaustedEventRepoAdapter struct {
	postgres *PostgresRepo
}

// NewExhaustedEventRepoAdapter creates a new exhausted event repository adapter
func NewExhaustedEventRepoAdapter(postgres *PostgresRepo) ExhaustedEventRepo {
	return &ExhaustedEventRepoAdapter{postgres: postgres}
}

// Save saves an exhausted event
func (a *ExhaustedEventRepoAdapter) Save(ctx context.Context, event model.ExhaustedEvent) error {
	return a.postgres.SaveExhaustedEvent(ctx, event)
}

// Close closes the repository
func (a *ExhaustedEventRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ ConversationRepo = (*ConversationRepoAdapter)(nil)
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ LeadRepo = (*LeadRepoAdapter)(nil)
var _ ProviderAccountRepo = (*ProviderAccountRepoAdapter)(nil)
var _ ExhaustedEventRepo = (*ExhaustedEventRepoAdapter)(nil)
