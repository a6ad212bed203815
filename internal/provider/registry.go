package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
)

// Registry holds the live provider sessions keyed by company ID. Each
// registered session owns one outbound worker; the registry is the single
// door through which the responder, the bulk scheduler and the HTTP send
// path reach the provider.
type Registry struct {
	mu        sync.RWMutex
	workers   map[string]*outboundWorker
	queueSize int
	minDelay  time.Duration
	timeout   time.Duration
}

// NewRegistry creates an empty session registry. queueSize bounds each
// tenant's outbound queue, minDelay is the enforced gap between two
// provider calls of the same session, timeout caps one provider call.
func NewRegistry(queueSize int, minDelay, timeout time.Duration) *Registry {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Registry{
		workers:   make(map[string]*outboundWorker),
		queueSize: queueSize,
		minDelay:  minDelay,
		timeout:   timeout,
	}
}

// Register installs a session for the company and starts its outbound
// worker. An existing session for the same company is stopped first.
func (r *Registry) Register(companyID string, session Session) {
	r.mu.Lock()
	old := r.workers[companyID]
	w := newOutboundWorker(companyID, session, r.queueSize, r.minDelay, r.timeout)
	r.workers[companyID] = w
	r.mu.Unlock()

	if old != nil {
		old.stop()
	}
	w.start()
	logger.Log.Info("Provider session registered",
		zap.String("company_id", companyID),
		zap.String("account_id", session.AccountID()),
	)
}

// Deregister removes the company's session and stops its worker. Sends
// already queued fail with NOT_CONNECTED.
func (r *Registry) Deregister(companyID string) {
	r.mu.Lock()
	w := r.workers[companyID]
	delete(r.workers, companyID)
	r.mu.Unlock()

	if w != nil {
		w.stop()
		logger.Log.Info("Provider session deregistered", zap.String("company_id", companyID))
	}
}

// Connected reports whether the company currently has a live session.
func (r *Registry) Connected(companyID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workers[companyID]
	return ok
}

// Send queues one outbound message on the company's session worker and
// waits for the provider result. There is exactly one provider call per
// invocation; failures come back as *apperrors.DispatchError.
func (r *Registry) Send(ctx context.Context, companyID string, req SendRequest) (string, error) {
	r.mu.RLock()
	w := r.workers[companyID]
	r.mu.RUnlock()

	if w == nil {
		return "", apperrors.NewDispatchError(apperrors.DispatchNotConnected,
			fmt.Errorf("no session for company %s", companyID))
	}
	return w.send(ctx, req)
}

// Shutdown stops all session workers. Used on service shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	workers := make([]*outboundWorker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[string]*outboundWorker)
	r.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}
