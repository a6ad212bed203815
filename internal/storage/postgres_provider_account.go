package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Define retry constant for bulk operations
const (
	bulkCommitRetryMaxElapsedTime = 15 * time.Second // Longer timeout for bulk operations
)

// --- Provider Account Repository Methods ---

// SaveProviderAccount saves or updates a provider session record. It uses
// account_id as the unique identifier for upsert logic.
func (r *PostgresRepo) SaveProviderAccount(ctx context.Context, account model.ProviderAccount) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if companyID != account.CompanyID {
		return fmt.Errorf("%w: account CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, account.CompanyID, companyID)
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var existingAccount model.ProviderAccount
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ? AND company_id = ?", account.AccountID, account.CompanyID).
			First(&existingAccount)
		findErr := result.Error

		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				if createErr := tx.Create(&account).Error; createErr != nil {
					txErr = checkConstraintViolation(createErr)
					return txErr
				}
			} else {
				txErr = fmt.Errorf("%w: failed to lock account row: %w", apperrors.ErrDatabase, findErr)
				return txErr
			}
		} else {
			account.ID = existingAccount.ID               // Update via the existing PK
			account.CreatedAt = existingAccount.CreatedAt // Preserve original creation timestamp
			account.UpdatedAt = utils.Now()

			if updateErr := tx.Model(&existingAccount).Updates(account).Error; updateErr != nil {
				txErr = checkConstraintViolation(updateErr)
				return txErr
			}
		}
		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit save transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveProviderAccount Commit", operation)
	observer.ObserveDbOperationDuration("save", "provider_account", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save provider account after retries", zap.String("account_id", account.AccountID), zap.Error(commitErr))
		return commitErr // Already wrapped by operation or checkConstraintViolation
	}
	return nil
}

// UpdateAccountStatus records a connection transition for an account. When
// the account connects, last_connected_at is stamped as well.
func (r *PostgresRepo) UpdateAccountStatus(ctx context.Context, accountID string, status string) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					loggerCtx.Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		updates := map[string]interface{}{"status": status, "updated_at": utils.Now()}
		if status == model.AccountStatusConnected {
			updates["last_connected_at"] = utils.Now()
		}
		updateResult := tx.Model(&model.ProviderAccount{}).
			Where("account_id = ? AND company_id = ?", accountID, companyID).
			Updates(updates)

		if updateResult.Error != nil {
			txErr = checkConstraintViolation(updateResult.Error)
			return txErr
		}
		if updateResult.RowsAffected == 0 {
			loggerCtx.Warn("UpdateAccountStatus resulted in 0 rows affected, account might not exist",
				zap.String("account_id", accountID),
				zap.String("company_id", companyID))
			txErr = fmt.Errorf("%w: account_id %s not found for status update", apperrors.ErrNotFound, accountID)
			return txErr // Return error immediately, no need to commit
		}
		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit account status update transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateAccountStatus Commit", operation)
	if commitErr != nil {
		loggerCtx.Error("Failed to update account status after retries",
			zap.String("account_id", accountID),
			zap.String("company_id", companyID),
			zap.Error(commitErr))
		return commitErr // Already wrapped
	}
	return nil
}

// FindProviderAccountByAccountID finds an account by its external identifier.
func (r *PostgresRepo) FindProviderAccountByAccountID(ctx context.Context, accountID string) (*model.ProviderAccount, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var account model.ProviderAccount
	operation := func() error {
		result := r.db.WithContext(ctx).Where("account_id = ? AND company_id = ?", accountID, companyID).First(&account)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	findErr := retryableOperation(ctx, readPolicy, "FindProviderAccountByAccountID", operation)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find provider account by AccountID after retries",
			zap.String("account_id", accountID),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &account, nil
}

// FindAccountsByStatus finds all accounts matching a specific status.
func (r *PostgresRepo) FindAccountsByStatus(ctx context.Context, status string) ([]model.ProviderAccount, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var accounts []model.ProviderAccount
	operation := func() error {
		result := r.db.WithContext(ctx).Where("status = ? AND company_id = ?", status, companyID).Find(&accounts)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	findErr := retryableOperation(ctx, readPolicy, "FindAccountsByStatus", operation)

	if findErr != nil {
		loggerCtx.Error("Failed to find accounts by status after retries",
			zap.String("status", status),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr
	}
	return accounts, nil
}

// BulkUpsertProviderAccounts performs a bulk upsert of account records.
// It uses account_id and company_id as the conflict target.
func (r *PostgresRepo) BulkUpsertProviderAccounts(ctx context.Context, accounts []model.ProviderAccount) error {
	if len(accounts) == 0 {
		return nil
	}
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	validAccounts := make([]model.ProviderAccount, 0, len(accounts))
	for i := range accounts {
		if accounts[i].CompanyID != companyID {
			loggerCtx.Warn("Skipping account in bulk upsert due to mismatched CompanyID",
				zap.String("account_id", accounts[i].AccountID),
				zap.String("account_company_id", accounts[i].CompanyID),
				zap.String("expected_company_id", companyID))
			continue
		}
		accounts[i].UpdatedAt = utils.Now()
		validAccounts = append(validAccounts, accounts[i])
	}

	if len(validAccounts) == 0 {
		loggerCtx.Info("No valid accounts found for bulk upsert after tenant ID filtering")
		return nil
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					loggerCtx.Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "company_id"}},
			DoUpdates: clause.AssignmentColumns(model.ProviderAccountUpdateColumns()),
		}).Create(&validAccounts)

		if result.Error != nil {
			// Wrap potentially masked errors from OnConflict
			txErr = fmt.Errorf("%w: bulk upsert accounts failed: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit bulk upsert accounts transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		loggerCtx.Info("Bulk upsert accounts successful", zap.Int("accounts_processed", len(validAccounts)), zap.Int64("rows_affected", result.RowsAffected))
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, bulkCommitRetryMaxElapsedTime) // Use potentially longer timeout for bulk
	commitErr := retryableOperation(ctx, commitPolicy, "BulkUpsertProviderAccounts Commit", operation)
	if commitErr != nil {
		loggerCtx.Error("Failed to bulk upsert accounts after retries", zap.Error(commitErr))
		return commitErr // Already wrapped
	}
	return nil
}
