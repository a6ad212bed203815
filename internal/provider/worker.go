package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

type sendOutcome struct {
	messageID string
	err       error
}

type sendTask struct {
	ctx   context.Context
	req   SendRequest
	reply chan sendOutcome // Buffered; the worker never blocks on it
}

// outboundWorker serializes all provider calls of one session through a
// single goroutine. A rate limiter enforces the minimum gap between two
// consecutive sends; the bounded queue provides backpressure to callers.
type outboundWorker struct {
	companyID string
	session   Session
	queue     chan sendTask
	limiter   *rate.Limiter
	timeout   time.Duration

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

func newOutboundWorker(companyID string, session Session, queueSize int, minDelay, timeout time.Duration) *outboundWorker {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &outboundWorker{
		companyID: companyID,
		session:   session,
		queue:     make(chan sendTask, queueSize),
		limiter:   rate.NewLimiter(limit, 1),
		timeout:   timeout,
		done:      make(chan struct{}),
	}
}

func (w *outboundWorker) start() {
	go w.run()
}

func (w *outboundWorker) run() {
	defer utils.RecoverWithLog(context.Background(), "outbound worker "+w.companyID)
	defer close(w.done)

	for task := range w.queue {
		observer.SetOutboundQueueDepth(w.companyID, len(w.queue))
		task.reply <- w.process(task)
	}
	observer.SetOutboundQueueDepth(w.companyID, 0)
}

// process performs exactly one provider call for the task. The call is
// never retried here; classification of the failure is the caller's signal.
func (w *outboundWorker) process(task sendTask) sendOutcome {
	if err := task.ctx.Err(); err != nil {
		// Caller gave up while the task sat in the queue.
		return sendOutcome{err: apperrors.NewDispatchError(apperrors.DispatchTimeout, err)}
	}
	if err := w.limiter.Wait(task.ctx); err != nil {
		return sendOutcome{err: apperrors.NewDispatchError(apperrors.DispatchTimeout, err)}
	}

	callCtx := task.ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(task.ctx, w.timeout)
		defer cancel()
	}

	messageID, err := w.session.Send(callCtx, task.req.RecipientJID, task.req.Text)
	if err != nil {
		return sendOutcome{err: classifySendError(err)}
	}
	return sendOutcome{messageID: messageID}
}

// send blocks until the worker has room for the task, then waits for the
// provider outcome.
func (w *outboundWorker) send(ctx context.Context, req SendRequest) (string, error) {
	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		return "", apperrors.NewDispatchError(apperrors.DispatchNotConnected,
			errors.New("session worker stopped"))
	}
	task := sendTask{ctx: ctx, req: req, reply: make(chan sendOutcome, 1)}
	select {
	case w.queue <- task:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return "", apperrors.NewDispatchError(apperrors.DispatchTimeout, ctx.Err())
	}

	select {
	case outcome := <-task.reply:
		return outcome.messageID, outcome.err
	case <-ctx.Done():
		return "", apperrors.NewDispatchError(apperrors.DispatchTimeout, ctx.Err())
	}
}

func (w *outboundWorker) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	logger.Log.Debug("Outbound worker stopped", zap.String("company_id", w.companyID))
}

// classifySendError maps a session failure onto a DispatchError. Sessions
// that already classify their failures pass through untouched.
func classifySendError(err error) error {
	if _, ok := apperrors.AsDispatchError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewDispatchError(apperrors.DispatchTimeout, err)
	}
	return apperrors.NewDispatchError(apperrors.DispatchProviderRejected, err)
}
