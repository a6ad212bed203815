package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for standard event metrics
	eventProcessingLabels = []string{"event_type", "company_id", "consumer_type"}
	// Labels for tracking specific processing actions
	eventActionLabels = []string{"event_type", "company_id", "consumer_type", "action", "error_type"}

	// Standard Event Counters (now with consumer_type)
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_events_received_total",
			Help: "Total number of events received from NATS, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_events_processed_total",
			Help: "Total number of events successfully processed and acknowledged, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_events_failed_total",
			Help: "Total number of events that failed processing (resulting in Nack or error), labeled by consumer type.",
		},
		eventProcessingLabels,
	)

	// Histogram for Processing Duration
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_dispatch_service_event_processing_duration_seconds",
			Help:    "Histogram of event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)

	// Histogram for Routing Duration
	EventRoutingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_dispatch_service_event_routing_duration_seconds",
			Help:    "Histogram of event routing specific durations (time spent in router.Route).",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s, potentially shorter than total processing
		},
		eventProcessingLabels,
	)

	// Counter for Specific Actions
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_event_processing_actions_total",
			Help: "Total count of specific actions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)

	// Global metrics instance
	Metrics *metricsStore
)

// Metrics related to outbound dispatch and bulk fan-out
var (
	dispatchLabels       = []string{"company_id", "result"}
	bulkRecipientLabels  = []string{"company_id", "status"}
	tenantOnlyLabels     = []string{"company_id"}
	cacheCheckLabelNames = []string{"company_id", "cache", "result"}

	dispatchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_dispatch_results_total",
			Help: "Total number of outbound dispatch attempts, labeled by result (sent or DispatchError kind).",
		},
		dispatchLabels,
	)
	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_dispatch_service_dispatch_duration_seconds",
			Help:    "Histogram of provider send durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		tenantOnlyLabels,
	)
	outboundQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wa_dispatch_service_outbound_queue_depth",
			Help: "Current number of sends waiting in a tenant's outbound worker queue.",
		},
		tenantOnlyLabels,
	)
	bulkRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_bulk_runs_total",
			Help: "Total number of bulk fan-out runs.",
		},
		tenantOnlyLabels,
	)
	bulkRecipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_bulk_recipients_total",
			Help: "Total number of bulk recipients handled, labeled by outcome.",
		},
		bulkRecipientLabels,
	)
	responderRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_responder_replies_total",
			Help: "Total number of responder evaluations, labeled by outcome (replied, skipped, failed).",
		},
		bulkRecipientLabels, // company_id, status
	)
	cacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_service_cache_checks_total",
			Help: "Total number of replay cache checks, labeled by cache and result.",
		},
		cacheCheckLabelNames,
	)
	ingestShardQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wa_dispatch_service_ingest_shard_queue_depth",
			Help: "Current number of events waiting in an ingest dispatcher shard.",
		},
		[]string{"shard"},
	)
)

// Metrics related to DLQ processing
var (
	dlqFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlq_fetch_requests_total",
		Help: "Total number of fetch requests made to the DLQ stream.",
	})
	dlqFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlq_fetch_errors_total",
		Help: "Total number of errors encountered during DLQ fetch requests.",
	})
	dlqQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlq_queue_length",
		Help: "Current number of messages waiting in the internal DLQ worker channel.",
	})
	dlqWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlq_workers_active",
		Help: "Current number of active worker goroutines in the DLQ pool.",
	})

	// Labels for tenant-specific DLQ metrics
	dlqTenantLabels = []string{"company_id"}

	dlqTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_tasks_submitted_total",
			Help: "Total number of tasks submitted to the DLQ worker pool.",
		},
		dlqTenantLabels,
	)
	dlqProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlq_processing_duration_seconds",
			Help:    "Histogram of processing durations for DLQ messages.",
			Buckets: prometheus.DefBuckets, // Default buckets: .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		dlqTenantLabels,
	)
	// Note: Using NumDelivered directly as retry count might be slightly off if initial delivery fails before DLQ.
	// Using a label for retry count might be excessive cardinality. We'll count total retries for simplicity.
	dlqTaskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_task_retries_total",
			Help: "Total number of retry attempts (NAKs with delay) for DLQ messages.",
		},
		dlqTenantLabels,
	)
	dlqAcksSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_acks_success_total",
			Help: "Total number of successful acknowledgements (ACKs) for DLQ messages.",
		},
		dlqTenantLabels,
	)
	dlqAcksFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_acks_failure_total",
			Help: "Total number of failed acknowledgements (NAKs, Term) for DLQ messages (excluding retries).",
		},
		dlqTenantLabels,
	)
	dlqTasksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_tasks_dropped_total",
			Help: "Total number of DLQ messages dropped after exceeding max retries.",
		},
		dlqTenantLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "company_id", "status"} // Added status

	// Histogram for Database Operation Duration
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_dispatch_service_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- Reconciliation Sync Worker Pool Metrics ---
var (
	syncLabels       = []string{"company_id"}
	syncStatusLabels = []string{"company_id", "status"}

	syncTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_tasks_submitted_total",
			Help: "Total number of reconciliation tasks submitted to the worker pool.",
		},
		syncLabels,
	)
	syncTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_tasks_processed_total",
			Help: "Total number of reconciliation tasks processed by the worker pool, labeled by final status.",
		},
		syncStatusLabels,
	)
	syncProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_processing_duration_seconds",
			Help:    "Histogram of processing durations for reconciliation tasks.",
			Buckets: prometheus.DefBuckets,
		},
		syncLabels,
	)
	syncQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_queue_length",
		Help: "Approximate number of tasks waiting in the reconciliation worker pool queue.",
	})
)

// metricsStore holds references to all Prometheus metrics.
type metricsStore struct{}

// InitMetrics initializes and registers the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		return
	}

	metricsEnabled = true

	// Metrics are already auto-registered via promauto, so no explicit
	// registration needed here. The store exists for the enabled check.
	Metrics = &metricsStore{}
}

// IncEventsReceived increments the events received counter.
func IncEventsReceived(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

// IncEventsProcessed increments the events processed counter.
func IncEventsProcessed(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

// IncEventsFailed increments the events failed counter.
func IncEventsFailed(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

// sanitizeTenant ensures the tenant label is valid or returns a default value.
func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	// Add more sanitization if needed (e.g., length limits, allowed characters)
	return tenant
}

// --- Dispatch / Bulk / Responder Metric Helpers ---

// IncDispatchResult increments the dispatch outcome counter. result is "sent"
// or a DispatchError kind in lower case.
func IncDispatchResult(companyID, result string) {
	if !metricsEnabled {
		return
	}
	dispatchResultsTotal.WithLabelValues(sanitizeTenant(companyID), result).Inc()
}

// ObserveDispatchDuration records the provider send time for one dispatch.
func ObserveDispatchDuration(companyID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	dispatchDurationSeconds.WithLabelValues(sanitizeTenant(companyID)).Observe(duration.Seconds())
}

// SetOutboundQueueDepth sets the current outbound worker queue depth for a tenant.
func SetOutboundQueueDepth(companyID string, depth int) {
	if !metricsEnabled {
		return
	}
	outboundQueueDepth.WithLabelValues(sanitizeTenant(companyID)).Set(float64(depth))
}

// IncBulkRun increments the bulk run counter for a tenant.
func IncBulkRun(companyID string) {
	if !metricsEnabled {
		return
	}
	bulkRunsTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
}

// IncBulkRecipient increments the per-recipient bulk outcome counter.
// status is "sent" or "failed".
func IncBulkRecipient(companyID, status string) {
	if !metricsEnabled {
		return
	}
	bulkRecipientsTotal.WithLabelValues(sanitizeTenant(companyID), status).Inc()
}

// IncResponderOutcome increments the responder evaluation counter.
// status is "replied", "skipped" or "failed".
func IncResponderOutcome(companyID, status string) {
	if !metricsEnabled {
		return
	}
	responderRepliesTotal.WithLabelValues(sanitizeTenant(companyID), status).Inc()
}

// IncCacheCheck increments the replay cache check counter.
func IncCacheCheck(companyID, cacheName, result string) {
	if !metricsEnabled {
		return
	}
	cacheChecksTotal.WithLabelValues(sanitizeTenant(companyID), cacheName, result).Inc()
}

// SetIngestShardQueueDepth sets the queue depth for one ingest dispatcher shard.
func SetIngestShardQueueDepth(shard string, depth int) {
	if !metricsEnabled {
		return
	}
	ingestShardQueueDepth.WithLabelValues(shard).Set(float64(depth))
}

// --- DLQ Metric Helpers ---

// IncDlqFetchRequest increments the DLQ fetch request counter.
func IncDlqFetchRequest() {
	if Metrics != nil { // Check if metrics are initialized/enabled
		dlqFetchRequestsTotal.Inc()
	}
}

// IncDlqFetchError increments the DLQ fetch error counter.
func IncDlqFetchError() {
	if Metrics != nil {
		dlqFetchErrorsTotal.Inc()
	}
}

// SetDlqQueueLength sets the current DLQ internal queue length.
func SetDlqQueueLength(length int) {
	if Metrics != nil {
		dlqQueueLength.Set(float64(length))
	}
}

// IncDlqTasksSubmitted increments the counter for tasks submitted to the pool.
func IncDlqTasksSubmitted(companyID string) {
	if Metrics != nil {
		dlqTasksSubmittedTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
	}
}

// SetDlqWorkersActive sets the current number of active DLQ workers.
func SetDlqWorkersActive(count int) {
	if Metrics != nil {
		dlqWorkersActive.Set(float64(count))
	}
}

// ObserveDlqProcessingDuration records the processing time for a DLQ message.
func ObserveDlqProcessingDuration(companyID string, duration time.Duration) {
	if Metrics != nil {
		dlqProcessingDurationSeconds.WithLabelValues(sanitizeTenant(companyID)).Observe(duration.Seconds())
	}
}

// IncDlqTaskRetry increments the counter for DLQ message retry attempts.
func IncDlqTaskRetry(companyID string) {
	if Metrics != nil {
		dlqTaskRetriesTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
	}
}

// IncDlqAckSuccess increments the counter for successful DLQ message ACKs.
func IncDlqAckSuccess(companyID string) {
	if Metrics != nil {
		dlqAcksSuccessTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
	}
}

// IncDlqAckFailure increments the counter for failed DLQ message ACKs/TERMs (non-retry).
func IncDlqAckFailure(companyID string) {
	if Metrics != nil {
		dlqAcksFailureTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
	}
}

// IncDlqTasksDropped increments the counter for DLQ messages dropped after max retries.
func IncDlqTasksDropped(companyID string) {
	if Metrics != nil {
		dlqTasksDroppedTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
	}
}

// --- Event Metric Helpers ---

// ObserveEventProcessingDuration records the processing time for a specific event.
func ObserveEventProcessingDuration(eventType, tenant, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Observe(duration.Seconds())
}

// ObserveEventRoutingDuration records the routing time for a specific event.
func ObserveEventRoutingDuration(eventType, tenant, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventRoutingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, companyID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(companyID), status).Observe(duration.Seconds())
}

// IncEventProcessingAction increments the counter for a specific processing outcome.
func IncEventProcessingAction(eventType, tenant, consumerType, action, errorType string) {
	if !metricsEnabled {
		return
	}
	// Sanitize errorType if needed, ensure it's not overly granular
	sanitizedErrorType := SanitizeErrorType(errorType)
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType, action, sanitizedErrorType).Inc()
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	// If no error (e.g., for success actions), return "none"
	if errStr == "" || errStr == "none" {
		return "none"
	}

	// Simple categorization based on common patterns or known error types
	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

// --- Reconciliation Sync Metric Helpers ---

// IncSyncTasksSubmitted increments the counter for submitted reconciliation tasks.
func IncSyncTasksSubmitted(companyID string) {
	if Metrics != nil { // Use global Metrics check
		syncTasksSubmittedTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
	}
}

// IncSyncTasksProcessed increments the counter for processed reconciliation tasks by status.
func IncSyncTasksProcessed(companyID, status string) {
	if Metrics != nil {
		syncTasksProcessedTotal.WithLabelValues(sanitizeTenant(companyID), status).Inc()
	}
}

// ObserveSyncProcessingDuration records the processing time for a reconciliation task.
func ObserveSyncProcessingDuration(companyID string, duration time.Duration) {
	if Metrics != nil {
		syncProcessingDurationSeconds.WithLabelValues(sanitizeTenant(companyID)).Observe(duration.Seconds())
	}
}

// SetSyncQueueLength sets the current reconciliation queue length.
func SetSyncQueueLength(length int) {
	if Metrics != nil {
		syncQueueLength.Set(float64(length))
	}
}
