package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/config"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/genai"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/provider"
	storagemock "gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage/mock"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
)

const testCompanyID = "tenant_test123"

// gatewayMock mocks the OutboundGateway interface.
type gatewayMock struct {
	mock.Mock
}

func (m *gatewayMock) Send(ctx context.Context, companyID string, req provider.SendRequest) (string, error) {
	args := m.Called(ctx, companyID, req)
	return args.String(0), args.Error(1)
}

func (m *gatewayMock) Connected(companyID string) bool {
	args := m.Called(companyID)
	return args.Bool(0)
}

// generatorMock mocks the genai.Generator interface.
type generatorMock struct {
	mock.Mock
}

func (m *generatorMock) Generate(ctx context.Context, req genai.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// serviceMocks bundles every mocked dependency of an EventService under test.
type serviceMocks struct {
	convRepo      *storagemock.ConversationRepoMock
	msgRepo       *storagemock.MessageRepoMock
	leadRepo      *storagemock.LeadRepoMock
	accountRepo   *storagemock.ProviderAccountRepoMock
	exhaustedRepo *storagemock.ExhaustedEventRepoMock
	gateway       *gatewayMock
	generator     *generatorMock
}

// testConfig returns a config with the responder on and no send pacing, the
// common baseline for service tests.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Identity.DefaultCountry = "62"
	cfg.Responder.Enabled = true
	cfg.Responder.HistoryLimit = 5
	cfg.Responder.SystemPrompt = "You are a helpful assistant."
	cfg.Bulk.FallbackText = "Hello {{name}}"
	return cfg
}

// newTestService builds an EventService over fresh mocks plus a tenant
// context carrying a test logger.
func newTestService(t *testing.T, cfg *config.Config) (*EventService, *serviceMocks, context.Context) {
	t.Helper()

	originalLogger := logger.Log
	logger.Log = zaptest.NewLogger(t)
	t.Cleanup(func() { logger.Log = originalLogger })

	m := &serviceMocks{
		convRepo:      new(storagemock.ConversationRepoMock),
		msgRepo:       new(storagemock.MessageRepoMock),
		leadRepo:      new(storagemock.LeadRepoMock),
		accountRepo:   new(storagemock.ProviderAccountRepoMock),
		exhaustedRepo: new(storagemock.ExhaustedEventRepoMock),
		gateway:       new(gatewayMock),
		generator:     new(generatorMock),
	}
	replayCache := cache.NewReplayCache(testCompanyID, 1000, 0.01)
	svc := NewEventService(m.convRepo, m.msgRepo, m.leadRepo, m.accountRepo, m.exhaustedRepo,
		m.gateway, m.generator, nil, replayCache, cfg)

	ctx := tenant.WithCompanyID(context.Background(), testCompanyID)
	ctx = logger.WithLogger(ctx, logger.Log)
	return svc, m, ctx
}

// expectNewConversation arms the conversation mocks for the
// not-found-then-create path and returns a pointer that captures the
// upserted row.
func expectNewConversation(m *serviceMocks, jid string) **model.Conversation {
	var captured *model.Conversation
	m.convRepo.On("FindByJID", mock.Anything, jid).Return(nil, apperrors.ErrNotFound)
	m.convRepo.On("Upsert", mock.Anything, mock.AnythingOfType("*model.Conversation")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*model.Conversation)
		}).Return(nil)
	return &captured
}

func TestValidateCompanyTenant(t *testing.T) {
	ctx := tenant.WithCompanyID(context.Background(), testCompanyID)

	assert.NoError(t, validateCompanyTenant(ctx, testCompanyID))
	assert.NoError(t, validateCompanyTenant(ctx, ""), "empty payload company defers to context")
	assert.Error(t, validateCompanyTenant(ctx, "tenant_other"))
	assert.Error(t, validateCompanyTenant(context.Background(), testCompanyID), "no tenant in context")
}

func TestHandleRepositoryError_Mapping(t *testing.T) {
	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	testCases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"not found is fatal", apperrors.ErrNotFound, false},
		{"duplicate is fatal", apperrors.ErrDuplicate, false},
		{"bad request is fatal", apperrors.ErrBadRequest, false},
		{"unauthorized is fatal", apperrors.ErrUnauthorized, false},
		{"conflict is fatal", apperrors.ErrConflict, false},
		{"database is retryable", apperrors.ErrDatabase, true},
		{"timeout is retryable", apperrors.ErrTimeout, true},
		{"nats is retryable", apperrors.ErrNATS, true},
		{"unknown is fatal", errors.New("boom"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := handleRepositoryError(ctx, tc.err, "TestOp", "entity-1")
			assert.Error(t, mapped)
			if tc.retryable {
				assert.True(t, apperrors.IsRetryable(mapped), "expected retryable, got %v", mapped)
			} else {
				assert.True(t, apperrors.IsFatal(mapped), "expected fatal, got %v", mapped)
			}
		})
	}

	assert.NoError(t, handleRepositoryError(ctx, nil, "TestOp", ""))
}

func TestResolveConversation_CreatesWhenMissing(t *testing.T) {
	svc, m, ctx := newTestService(t, testConfig())
	jid := "628123456789@s.whatsapp.net"
	captured := expectNewConversation(m, jid)

	seed := model.Conversation{ID: "conv-new", JID: jid, CompanyID: testCompanyID, AIEnabled: true}
	conv, err := svc.resolveConversation(ctx, jid, seed)

	assert.NoError(t, err)
	assert.Equal(t, "conv-new", conv.ID)
	assert.False(t, conv.LastActivityAt.IsZero(), "missing activity timestamp is defaulted")
	assert.Equal(t, "conv-new", (*captured).ID)
	m.convRepo.AssertExpectations(t)
}

func TestResolveConversation_KeepsStoredIdentityAndAIFlag(t *testing.T) {
	svc, m, ctx := newTestService(t, testConfig())
	jid := "628123456789@s.whatsapp.net"

	existing := &model.Conversation{ID: "conv-old", JID: jid, AIEnabled: false, CompanyID: testCompanyID}
	m.convRepo.On("FindByJID", mock.Anything, jid).Return(existing, nil)
	var captured *model.Conversation
	m.convRepo.On("Upsert", mock.Anything, mock.AnythingOfType("*model.Conversation")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*model.Conversation) }).Return(nil)

	seed := model.Conversation{ID: "conv-fresh", JID: jid, AIEnabled: true, DisplayName: "New Name", CompanyID: testCompanyID}
	conv, err := svc.resolveConversation(ctx, jid, seed)

	assert.NoError(t, err)
	assert.Equal(t, "conv-old", conv.ID, "stored id wins over the seed id")
	assert.False(t, conv.AIEnabled, "stored AI flag survives profile refresh")
	assert.Equal(t, "New Name", captured.DisplayName, "profile fields refresh from the seed")
	m.convRepo.AssertExpectations(t)
}

func TestResolveConversation_LookupErrorIsMapped(t *testing.T) {
	svc, m, ctx := newTestService(t, testConfig())
	jid := "628123456789@s.whatsapp.net"
	m.convRepo.On("FindByJID", mock.Anything, jid).Return(nil, apperrors.ErrDatabase)

	_, err := svc.resolveConversation(ctx, jid, model.Conversation{JID: jid})

	assert.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	m.convRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}
