package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/usecase"
)

type sendMessageRequest struct {
	RecipientRaw       string `json:"recipient_raw" binding:"required"`
	Text               string `json:"text" binding:"required"`
	DefaultCountryHint string `json:"default_country_hint"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_raw and text are required"})
		return
	}

	stored, err := s.service.SendManual(c.Request.Context(), req.RecipientRaw, req.Text, req.DefaultCountryHint)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": stored.ConversationID,
		"message_id":      stored.MessageID,
		"status":          stored.Status,
	})
}

func (s *Server) handleBulkSend(c *gin.Context) {
	var req usecase.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed bulk request"})
		return
	}

	// Per-recipient failures live inside the result; only run-level
	// rejections (bad column, bad mode) surface as errors.
	result, err := s.service.BulkSend(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBulkPreview(c *gin.Context) {
	recipients, err := s.service.BulkPreview(c.Request.Context(), c.Param("columnId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipients": recipients, "total": len(recipients)})
}

func (s *Server) handleListConversations(c *gin.Context) {
	filter := storage.ListConversationsFilter{
		Limit:            queryInt(c, "limit"),
		Offset:           queryInt(c, "offset"),
		ExcludeGroups:    queryBool(c, "exclude_groups"),
		ExcludeBroadcast: queryBool(c, "exclude_broadcast"),
	}

	conversations, err := s.service.ListConversations(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations, "count": len(conversations)})
}

func (s *Server) handleConversationMessages(c *gin.Context) {
	beforeID, _ := strconv.ParseInt(c.Query("before_id"), 10, 64)

	messages, total, err := s.service.ConversationMessages(c.Request.Context(), c.Param("id"), queryInt(c, "limit"), beforeID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "total": total})
}

func (s *Server) handleConversationSync(c *gin.Context) {
	var payload model.ThreadSnapshotPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed snapshot payload"})
		return
	}

	if err := s.service.ProcessThreadSnapshot(c.Request.Context(), payload, nil); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "threads": len(payload.Threads)})
}

type setAIRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) handleSetConversationAI(c *gin.Context) {
	var req setAIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}

	if err := s.service.SetConversationAI(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": c.Param("id"), "ai_enabled": *req.Enabled})
}

// writeError maps service errors onto HTTP statuses. Dispatch failures keep
// their kind in the body so callers can distinguish a dead session from a
// provider rejection.
func (s *Server) writeError(c *gin.Context, err error) {
	if dispatchErr, ok := apperrors.AsDispatchError(err); ok {
		status := http.StatusBadGateway
		switch dispatchErr.Kind {
		case apperrors.DispatchNotConnected:
			status = http.StatusConflict
		case apperrors.DispatchInvalidRecipient:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": dispatchErr.Error(), "kind": string(dispatchErr.Kind)})
		return
	}

	switch {
	case apperrors.IsInvalidIdentityError(err), apperrors.IsBadRequestError(err), apperrors.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsUnauthorizedError(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case apperrors.IsConflictError(err), apperrors.IsDuplicateError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperrors.IsRateLimitedError(err):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
