package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
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

// AppendMessage appends a message to the log and bumps the owning
// conversation's last-activity and last-message text in the same
// transaction. Replayed provider ids are absorbed: the existing row is
// returned with appended=false and the conversation is left untouched.
func (r *PostgresRepo) AppendMessage(ctx context.Context, message model.Message) (*model.Message, bool, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if companyID != message.CompanyID {
		return nil, false, fmt.Errorf("%w: message CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.CompanyID, companyID)
	}
	if message.ConversationID == "" {
		return nil, false, fmt.Errorf("%w: message has no conversation id", apperrors.ErrBadRequest)
	}

	message.MessageDate = model.CreateTimeFromTimestamp(message.MessageTimestamp) // Populate message_date
	message.UpdatedAt = utils.Now()

	appended := false
	operation := func() error {
		appended = false
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
					logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "message_id"}, {Name: "message_date"}},
			DoNothing: true,
		}).Create(&message)
		if result.Error != nil {
			txErr = checkConstraintViolation(result.Error)
			return txErr
		}

		if result.RowsAffected == 0 {
			// Replay: load the row stored by the first delivery.
			findResult := tx.Where("conversation_id = ? AND message_id = ? AND message_date = ?",
				message.ConversationID, message.MessageID, message.MessageDate).
				First(&message)
			if findResult.Error != nil {
				txErr = checkConstraintViolation(findResult.Error)
				return txErr
			}
			if commitErr := tx.Commit().Error; commitErr != nil {
				txErr = checkConstraintViolation(commitErr)
				return txErr
			}
			return nil
		}

		touch := map[string]interface{}{
			"updated_at": utils.Now(),
			"last_activity_at": gorm.Expr(
				"GREATEST(last_activity_at, ?)", model.CreateTimeFromTimestamp(message.MessageTimestamp)),
		}
		if message.MessageText != "" {
			touch["last_message_text"] = message.MessageText
		}
		touchResult := tx.Model(&model.Conversation{}).
			Where("id = ? AND company_id = ?", message.ConversationID, companyID).
			Updates(touch)
		if touchResult.Error != nil {
			txErr = checkConstraintViolation(touchResult.Error)
			return txErr
		}
		if touchResult.RowsAffected == 0 {
			txErr = backoff.Permanent(fmt.Errorf("%w: conversation %s missing for appended message %s",
				apperrors.ErrNotFound, message.ConversationID, message.MessageID))
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}
		appended = true
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AppendMessage Commit", operation)
	observer.ObserveDbOperationDuration("append", "message", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to append message after retries", zap.String("message_id", message.MessageID), zap.Error(commitErr))
		return nil, false, commitErr // Already wrapped
	}

	return &message, appended, nil
}

// UpdateMessageStatus applies a delivery receipt to an already-logged message.
func (r *PostgresRepo) UpdateMessageStatus(ctx context.Context, messageID, status string, isDeleted bool) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("message_id = ? AND company_id = ?", messageID, companyID).
			Updates(map[string]interface{}{
				"status":     status,
				"is_deleted": isDeleted,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: message not found for status update (MessageID: %s)", apperrors.ErrNotFound, messageID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateMessageStatus Commit", operation)
	observer.ObserveDbOperationDuration("update", "message", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update message status after retries", zap.String("message_id", messageID), zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}

// FindMessageByMessageID finds a message by provider id
func (r *PostgresRepo) FindMessageByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).Where("message_id = ? AND company_id = ?", messageID, companyID).First(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByMessageID", operation)
	observer.ObserveDbOperationDuration("find", "message", companyID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find message by message_id after retries",
			zap.String("message_id", messageID),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &message, nil
}

// LatestMessages returns the newest messages of a conversation, newest
// first. beforeID is a cursor: when non-zero, only rows older than that
// internal id are returned, which keeps pages stable under concurrent
// appends.
func (r *PostgresRepo) LatestMessages(ctx context.Context, conversationID string, limit int, beforeID int64) ([]model.Message, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var messages []model.Message
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("conversation_id = ? AND company_id = ?", conversationID, companyID)
		if beforeID > 0 {
			query = query.Where("id < ?", beforeID)
		}
		if limit > 0 {
			query = query.Limit(limit)
		}
		result := query.Order("message_timestamp DESC, id DESC").Find(&messages)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "LatestMessages", operation)
	observer.ObserveDbOperationDuration("latest", "message", companyID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to load latest messages after retries",
			zap.String("conversation_id", conversationID),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}
	return messages, nil
}

// CountMessages counts the log rows of a conversation.
func (r *PostgresRepo) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var count int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("conversation_id = ? AND company_id = ?", conversationID, companyID).
			Count(&count)
		if result.Error != nil {
			return fmt.Errorf("%w: count failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	countErr := retryableOperation(ctx, readPolicy, "CountMessages", operation)
	observer.ObserveDbOperationDuration("count", "message", companyID, time.Since(startTime), countErr)

	if countErr != nil {
		logger.FromContext(ctx).Error("Failed to count messages after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(countErr))
		return 0, countErr // Already wrapped
	}
	return count, nil
}

// BulkUpsertMessages performs a bulk upsert of messages from snapshot batches.
func (r *PostgresRepo) BulkUpsertMessages(ctx context.Context, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	validMessages := make([]model.Message, 0, len(messages))
	for i := range messages {
		if companyID != messages[i].CompanyID {
			loggerCtx.Warn("Company ID mismatch for message, skipping",
				zap.String("message_id", messages[i].MessageID),
				zap.String("context_company_id", companyID),
				zap.String("message_company_id", messages[i].CompanyID))
			continue
		}
		messages[i].MessageDate = model.CreateTimeFromTimestamp(messages[i].MessageTimestamp) // Populate message_date
		messages[i].UpdatedAt = utils.Now()
		validMessages = append(validMessages, messages[i])
	}

	if len(validMessages) == 0 {
		loggerCtx.Info("No valid messages found for bulk upsert after tenant ID filtering")
		return nil
	}

	// Bulk upsert using ON CONFLICT
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
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "message_id"}, {Name: "message_date"}},
			DoUpdates: clause.AssignmentColumns(model.MessageUpdatableFields()),
		}).Create(&validMessages)

		if result.Error != nil {
			// Wrap potentially masked errors from OnConflict
			txErr = fmt.Errorf("%w: bulk upsert messages failed: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}
		loggerCtx.Info("Bulk upsert messages successful", zap.Int("messages_processed", len(validMessages)), zap.Int64("rows_affected", result.RowsAffected))
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, bulkCommitRetryMaxElapsedTime) // Use potentially longer timeout for bulk
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BulkUpsertMessages Commit", operation)
	observer.ObserveDbOperationDuration("bulk_upsert", "message", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		loggerCtx.Error("Failed to bulk upsert messages after retries", zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}
