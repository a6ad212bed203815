package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

// ListConversationsFilter narrows and pages conversation listings.
type ListConversationsFilter struct {
	Limit            int
	Offset           int
	ExcludeGroups    bool
	ExcludeBroadcast bool
}

// conversationUpsertAssignments builds the ON CONFLICT assignment set.
// Textual fields keep the stored value when the incoming one is empty, and
// last_activity_at never moves backwards. ai_enabled is deliberately absent.
func conversationUpsertAssignments() clause.Set {
	assignments := clause.Assignments(map[string]interface{}{
		"unread_count":  gorm.Expr("excluded.unread_count"),
		"last_metadata": gorm.Expr("COALESCE(excluded.last_metadata, conversations.last_metadata)"),
		"updated_at":    gorm.Expr("excluded.updated_at"),
		"last_activity_at": gorm.Expr(
			"GREATEST(conversations.last_activity_at, excluded.last_activity_at)"),
		"last_message_text": gorm.Expr(
			"CASE WHEN excluded.last_message_text <> '' THEN excluded.last_message_text ELSE conversations.last_message_text END"),
		"chat_type": gorm.Expr(
			"CASE WHEN excluded.chat_type <> '' THEN excluded.chat_type ELSE conversations.chat_type END"),
	})
	for _, col := range model.ConversationTextualFields() {
		assignments = append(assignments, clause.Assignment{
			Column: clause.Column{Name: col},
			Value: gorm.Expr(fmt.Sprintf(
				"CASE WHEN excluded.%s <> '' THEN excluded.%s ELSE conversations.%s END", col, col, col)),
		})
	}
	return assignments
}

// UpsertConversation stores a conversation, creating it when the JID is new
// and merging metadata when it already exists. The returned row reflects the
// stored state, so callers get the existing ID on conflict.
func (r *PostgresRepo) UpsertConversation(ctx context.Context, conv *model.Conversation) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	if conv.CompanyID == "" {
		conv.CompanyID = companyID
	}
	if companyID != conv.CompanyID {
		return fmt.Errorf("%w: conversation CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, conv.CompanyID, companyID)
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.UpdatedAt = utils.Now() // Ensure UpdatedAt is set for potential update

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "jid"}},
			DoUpdates: conversationUpsertAssignments(),
		}, clause.Returning{}).Create(conv)

		if result.Error != nil {
			return checkConstraintViolation(result.Error) // Wrap potential errors
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertConversation Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "conversation", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert conversation after retries", zap.String("jid", conv.JID), zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}

// FindConversationByID finds a conversation by its ID.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var conv model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND company_id = ?", id, companyID).First(&conv)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByID", operation)
	observer.ObserveDbOperationDuration("find", "conversation", companyID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find conversation by id after retries",
			zap.String("id", id),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &conv, nil
}

// FindConversationByJID finds a conversation by recipient JID within the tenant context.
func (r *PostgresRepo) FindConversationByJID(ctx context.Context, jid string) (*model.Conversation, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var conv model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).Where("jid = ? AND company_id = ?", jid, companyID).First(&conv)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByJID", operation)
	observer.ObserveDbOperationDuration("find_by_jid", "conversation", companyID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find conversation by jid after retries",
			zap.String("jid", jid),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &conv, nil
}

// ListConversations returns the tenant's conversations ordered by most
// recent activity first.
func (r *PostgresRepo) ListConversations(ctx context.Context, filter ListConversationsFilter) ([]model.Conversation, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var convs []model.Conversation
	operation := func() error {
		query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
		if filter.ExcludeGroups {
			query = query.Where("chat_type <> ?", model.ChatTypeGroup)
		}
		if filter.ExcludeBroadcast {
			query = query.Where("chat_type NOT IN ?", []string{model.ChatTypeBroadcast, model.ChatTypeChannel})
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
		result := query.Order("last_activity_at DESC").Find(&convs)
		if result.Error != nil {
			// Find multiple doesn't return ErrRecordNotFound
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success, even if no records found
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListConversations", operation)
	observer.ObserveDbOperationDuration("list", "conversation", companyID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to list conversations after retries",
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return convs, nil // Return the potentially empty slice
}

// SetConversationAI flips the per-conversation auto-reply flag.
func (r *PostgresRepo) SetConversationAI(ctx context.Context, id string, enabled bool) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND company_id = ?", id, companyID).
			Updates(map[string]interface{}{"ai_enabled": enabled, "updated_at": utils.Now()})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: conversation not found for AI toggle (ID: %s)", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetConversationAI Commit", operation)
	observer.ObserveDbOperationDuration("update", "conversation", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to toggle conversation AI after retries", zap.String("id", id), zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}

// BulkUpsertConversations performs a bulk upsert for reconciliation syncs.
func (r *PostgresRepo) BulkUpsertConversations(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	validConvs := make([]model.Conversation, 0, len(convs))
	for i := range convs {
		if convs[i].CompanyID == "" {
			convs[i].CompanyID = companyID
		}
		if convs[i].CompanyID != companyID {
			loggerCtx.Warn("Skipping conversation in bulk upsert due to mismatched CompanyID",
				zap.String("jid", convs[i].JID),
				zap.String("conversation_company_id", convs[i].CompanyID),
				zap.String("expected_company_id", companyID))
			continue
		}
		if convs[i].ID == "" {
			convs[i].ID = uuid.NewString()
		}
		convs[i].UpdatedAt = utils.Now() // Ensure UpdatedAt is set
		validConvs = append(validConvs, convs[i])
	}

	if len(validConvs) == 0 {
		loggerCtx.Info("No valid conversations found for bulk upsert after tenant ID filtering")
		return nil
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					loggerCtx.Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "jid"}},
			DoUpdates: conversationUpsertAssignments(),
		}).Create(&validConvs)

		if result.Error != nil {
			txErr = fmt.Errorf("%w: bulk upsert conversations failed: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}
		loggerCtx.Info("Bulk upsert conversations successful", zap.Int("conversations_processed", len(validConvs)), zap.Int64("rows_affected", result.RowsAffected))
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, bulkCommitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BulkUpsertConversations Commit", operation)
	observer.ObserveDbOperationDuration("bulk_upsert", "conversation", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		loggerCtx.Error("Failed to bulk upsert conversations after retries", zap.Error(commitErr))
		return commitErr // Already wrapped
	}
	return nil
}
