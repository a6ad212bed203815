// Package httpapi exposes the dispatch service's REST surface: manual
// sends, bulk fan-out, conversation browsing and snapshot reconciliation.
// Authentication happens upstream at the gateway; the tenant arrives in the
// X-Company-ID header.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/usecase"
)

// Service is the slice of the event service the HTTP layer drives.
type Service interface {
	SendManual(ctx context.Context, recipientRaw, text, countryHint string) (*model.Message, error)
	BulkSend(ctx context.Context, req usecase.BulkRequest) (*usecase.BulkResult, error)
	BulkPreview(ctx context.Context, columnID string) ([]usecase.BulkRecipient, error)
	ListConversations(ctx context.Context, filter storage.ListConversationsFilter) ([]model.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string, limit int, beforeID int64) ([]model.Message, int64, error)
	ProcessThreadSnapshot(ctx context.Context, payload model.ThreadSnapshotPayload, metadata *model.LastMetadata) error
	SetConversationAI(ctx context.Context, conversationID string, enabled bool) error
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	service    Service
	companyID  string
	logger     *zap.Logger
}

// NewServer builds the router. companyID is the tenant this deployment
// serves; requests for another tenant are rejected.
func NewServer(service Service, port int, companyID string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:    engine,
		service:   service,
		companyID: companyID,
		logger:    logger.Named("httpapi"),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // bulk runs are paced and can be slow
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1", s.tenantMiddleware())

	v1.POST("/messages/send", s.handleSendMessage)

	v1.POST("/bulk/send", s.handleBulkSend)
	v1.GET("/bulk/preview/:columnId", s.handleBulkPreview)

	v1.GET("/conversations", s.handleListConversations)
	v1.GET("/conversations/:id/messages", s.handleConversationMessages)
	v1.POST("/conversations/sync", s.handleConversationSync)
	v1.PATCH("/conversations/:id/ai", s.handleSetConversationAI)
}

// Handler returns the underlying http handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP API server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP API server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API server")
	return s.httpServer.Shutdown(ctx)
}
