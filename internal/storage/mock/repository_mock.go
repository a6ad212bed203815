package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage"
)

// --- Repository Mock (Combined Interface) ---

// RepositoryMock mocks the combined Repository interface
type RepositoryMock struct {
	mock.Mock
	ConversationRepoMock    // Embed ConversationRepoMock
	MessageRepoMock         // Embed MessageRepoMock
	LeadRepoMock            // Embed LeadRepoMock
	ProviderAccountRepoMock // Embed ProviderAccountRepoMock
	ExhaustedEventRepoMock  // Embed ExhaustedEventRepoMock
}

// Close mocks the Close method
func (m *RepositoryMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

// Upsert mocks the Upsert method
func (m *ConversationRepoMock) Upsert(ctx context.Context, conv *model.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ConversationRepoMock) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// FindByJID mocks the FindByJID method
func (m *ConversationRepoMock) FindByJID(ctx context.Context, jid string) (*model.Conversation, error) {
	args := m.Called(ctx, jid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// List mocks the List method
func (m *ConversationRepoMock) List(ctx context.Context, filter storage.ListConversationsFilter) ([]model.Conversation, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// SetAI mocks the SetAI method
func (m *ConversationRepoMock) SetAI(ctx context.Context, id string, enabled bool) error {
	args := m.Called(ctx, id, enabled)
	return args.Error(0)
}

// BulkUpsert mocks the BulkUpsert method
func (m *ConversationRepoMock) BulkUpsert(ctx context.Context, convs []model.Conversation) error {
	args := m.Called(ctx, convs)
	return args.Error(0)
}

func (m *ConversationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// Append mocks the Append method
func (m *MessageRepoMock) Append(ctx context.Context, message model.Message) (*model.Message, bool, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Message), args.Bool(1), args.Error(2)
}

// UpdateStatus mocks the UpdateStatus method
func (m *MessageRepoMock) UpdateStatus(ctx context.Context, messageID, status string, isDeleted bool) error {
	args := m.Called(ctx, messageID, status, isDeleted)
	return args.Error(0)
}

// FindByMessageID mocks the FindByMessageID method
func (m *MessageRepoMock) FindByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// Latest mocks the Latest method
func (m *MessageRepoMock) Latest(ctx context.Context, conversationID string, limit int, beforeID int64) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, limit, beforeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

// Count mocks the Count method
func (m *MessageRepoMock) Count(ctx context.Context, conversationID string) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// BulkUpsert mocks the BulkUpsert method
func (m *MessageRepoMock) BulkUpsert(ctx context.Context, messages []model.Message) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface
type LeadRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *LeadRepoMock) Save(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// Update mocks the Update method
func (m *LeadRepoMock) Update(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *LeadRepoMock) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// FindByJID mocks the FindByJID method
func (m *LeadRepoMock) FindByJID(ctx context.Context, jid string) (*model.Lead, error) {
	args := m.Called(ctx, jid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// FindByColumnID mocks the FindByColumnID method
func (m *LeadRepoMock) FindByColumnID(ctx context.Context, columnID string, limit, offset int) ([]model.Lead, error) {
	args := m.Called(ctx, columnID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

// BulkUpsert mocks the BulkUpsert method
func (m *LeadRepoMock) BulkUpsert(ctx context.Context, leads []model.Lead) error {
	args := m.Called(ctx, leads)
	return args.Error(0)
}

func (m *LeadRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ProviderAccountRepo Mock ---

// ProviderAccountRepoMock mocks the ProviderAccountRepo interface
type ProviderAccountRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *ProviderAccountRepoMock) Save(ctx context.Context, account model.ProviderAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// UpdateStatus mocks the UpdateStatus method
func (m *ProviderAccountRepoMock) UpdateStatus(ctx context.Context, accountID string, status string) error {
	args := m.Called(ctx, accountID, status)
	return args.Error(0)
}

// FindByAccountID mocks the FindByAccountID method
func (m *ProviderAccountRepoMock) FindByAccountID(ctx context.Context, accountID string) (*model.ProviderAccount, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderAccount), args.Error(1)
}

// FindByStatus mocks the FindByStatus method
func (m *ProviderAccountRepoMock) FindByStatus(ctx context.Context, status string) ([]model.ProviderAccount, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProviderAccount), args.Error(1)
}

// BulkUpsert mocks the BulkUpsert method
func (m *ProviderAccountRepoMock) BulkUpsert(ctx context.Context, accounts []model.ProviderAccount) error {
	args := m.Called(ctx, accounts)
	return args.Error(0)
}

func (m *ProviderAccountRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ExhaustedEventRepo Mock ---

// ExhaustedEventRepoMock mocks the ExhaustedEventRepo interface
type ExhaustedEventRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *ExhaustedEventRepoMock) Save(ctx context.Context, event model.ExhaustedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *ExhaustedEventRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Ensure mocks implement the interfaces
var _ storage.ConversationRepo = (*ConversationRepoMock)(nil)
var _ storage.MessageRepo = (*MessageRepoMock)(nil)
var _ storage.LeadRepo = (*LeadRepoMock)(nil)
var _ storage.ProviderAccountRepo = (*ProviderAccountRepoMock)(nil)
var _ storage.ExhaustedEventRepo = (*ExhaustedEventRepoMock)(nil)
