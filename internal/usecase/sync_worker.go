package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/config"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
)

// SyncTask is one batch of reconciled conversations bound for the store.
// Ctx is derived for the task, not the original request context.
type SyncTask struct {
	Ctx           context.Context
	CompanyID     string
	Conversations []model.Conversation
}

// ISyncWorker defines the interface for the reconciliation worker pool.
type ISyncWorker interface {
	Submit(task SyncTask) error
	Stop()
}

// SyncWorker runs snapshot reconciliation upserts on a bounded ants pool,
// keeping bulk DB writes off the ingestion shards. Upserts are idempotent
// so tasks may run in any order.
type SyncWorker struct {
	pool             *ants.PoolWithFunc
	conversationRepo storage.ConversationRepo
	cfg              config.SyncWorkerPoolConfig
	baseLogger       *zap.Logger
}

var _ ISyncWorker = (*SyncWorker)(nil)

// NewSyncWorker creates and initializes the reconciliation worker pool.
func NewSyncWorker(
	cfg config.SyncWorkerPoolConfig,
	conversationRepo storage.ConversationRepo,
	baseLogger *zap.Logger,
) (*SyncWorker, error) {
	worker := &SyncWorker{
		conversationRepo: conversationRepo,
		cfg:              cfg,
		baseLogger:       baseLogger.Named("sync_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(SyncTask)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processSyncTask(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in sync worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Sync worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// Submit hands one reconciliation batch to the pool. Blocks when the queue
// is full, bounded by the pool's blocking-task cap.
func (w *SyncWorker) Submit(task SyncTask) error {
	start := time.Now()
	observer.IncSyncTasksSubmitted(task.CompanyID)
	observer.SetSyncQueueLength(w.pool.Waiting())

	err := w.pool.Invoke(task)
	duration := time.Since(start)

	if err != nil {
		w.baseLogger.Warn("Failed to submit sync task to pool",
			zap.String("company_id", task.CompanyID),
			zap.Int("batch_size", len(task.Conversations)),
			zap.Duration("submit_duration", duration),
			zap.Error(err),
		)
		observer.IncSyncTasksProcessed(task.CompanyID, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("sync pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke sync task: %w", err)
	}

	w.baseLogger.Debug("Submitted sync task",
		zap.String("company_id", task.CompanyID),
		zap.Int("batch_size", len(task.Conversations)),
		zap.Duration("submit_duration", duration),
	)
	return nil
}

// processSyncTask performs the actual bulk upsert on a worker goroutine.
func (w *SyncWorker) processSyncTask(task SyncTask) {
	log := logger.FromContextOr(task.Ctx, w.baseLogger).With(
		zap.String("task_company_id", task.CompanyID),
		zap.Int("batch_size", len(task.Conversations)),
	)

	start := time.Now()
	status := "success"

	taskCtx := tenant.WithCompanyID(task.Ctx, task.CompanyID)
	if err := w.conversationRepo.BulkUpsert(taskCtx, task.Conversations); err != nil {
		log.Error("Sync batch upsert failed", zap.Error(err))
		status = "failure_upsert"
	}

	duration := time.Since(start)
	observer.ObserveSyncProcessingDuration(task.CompanyID, duration)
	observer.IncSyncTasksProcessed(task.CompanyID, status)

	log.Debug("Finished sync task", zap.Duration("duration", duration), zap.String("final_status", status))
}

// Stop gracefully shuts down the worker pool.
func (w *SyncWorker) Stop() {
	if w.pool != nil {
		w.baseLogger.Info("Releasing sync worker pool")
		start := time.Now()
		w.pool.Release()
		w.baseLogger.Info("Sync worker pool released", zap.Duration("duration", time.Since(start)))
	}
}
