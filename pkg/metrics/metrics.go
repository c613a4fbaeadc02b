package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total number of webhook requests by terminal stage and HTTP status (count)",
		},
		[]string{"stage", "status"},
	)

	WebhookAckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_ack_duration_ms",
			Help:    "Time from request receipt to acknowledgment in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 3000},
		},
		[]string{"stage"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_checks_total",
			Help: "Total number of deduplication checks (count)",
		},
		[]string{"result"},
	)

	DedupCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_check_duration_ms",
			Help:    "Duration of deduplication store calls in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"result"},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_cache_size",
			Help: "Approximate number of live deduplication records (count)",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_queue_depth",
			Help: "Current number of events waiting in the processing queue (count)",
		},
	)

	QueueWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_queue_wait_duration_ms",
			Help:    "Time events wait in the queue before a worker picks them up in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)

	QueueRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_queue_rejected_total",
			Help: "Total number of events rejected at enqueue (count)",
		},
		[]string{"reason"},
	)

	EventOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_outcomes_total",
			Help: "Total number of processing outcomes by event type and status (count)",
		},
		[]string{"event_type", "status"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_handler_duration_ms",
			Help:    "Event handler execution time in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"event_type"},
	)

	OAuthOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_operations_total",
			Help: "Total number of OAuth lifecycle operations (count)",
		},
		[]string{"operation", "status"},
	)

	CredentialDecryptFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credential_decrypt_failures_total",
			Help: "Total number of stored credentials that failed to decrypt (count)",
		},
	)

	OutcomesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outcomes_published_total",
			Help: "Total number of processing outcomes published to a broker (count)",
		},
		[]string{"broker", "status"},
	)

	PlannerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_requests_total",
			Help: "Total number of requests sent to the planning backend (count)",
		},
		[]string{"status"},
	)

	PlannerRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planner_request_duration_ms",
			Help:    "Planning backend request duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			WebhookRequestsTotal,
			WebhookAckDuration,
			DedupChecksTotal,
			DedupCheckDuration,
			DedupCacheSize,
			QueueDepth,
			QueueWaitDuration,
			QueueRejectedTotal,
			EventOutcomesTotal,
			HandlerDuration,
			OAuthOperationsTotal,
			CredentialDecryptFailuresTotal,
			OutcomesPublishedTotal,
			PlannerRequestsTotal,
			PlannerRequestDuration,
			RetryAttemptsTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
			FallbackUsageTotal,
		)
	})
}

func ObserveWebhook(stage string, status int, duration time.Duration) {
	WebhookRequestsTotal.WithLabelValues(stage, statusLabel(status)).Inc()
	WebhookAckDuration.WithLabelValues(stage).Observe(float64(duration.Milliseconds()))
}

func ObserveDedup(result string, duration time.Duration) {
	DedupChecksTotal.WithLabelValues(result).Inc()
	DedupCheckDuration.WithLabelValues(result).Observe(float64(duration.Milliseconds()))
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

func ObserveQueueWait(duration time.Duration) {
	QueueWaitDuration.Observe(float64(duration.Milliseconds()))
}

func IncQueueRejected(reason string) {
	QueueRejectedTotal.WithLabelValues(reason).Inc()
}

func ObserveOutcome(eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	EventOutcomesTotal.WithLabelValues(eventType, status).Inc()
	HandlerDuration.WithLabelValues(eventType).Observe(float64(duration.Milliseconds()))
}

func IncDroppedEvent(eventType, reason string) {
	EventOutcomesTotal.WithLabelValues(eventType, reason).Inc()
}

func IncOAuthOperation(operation, status string) {
	OAuthOperationsTotal.WithLabelValues(operation, status).Inc()
}

func IncOutcomePublished(broker string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OutcomesPublishedTotal.WithLabelValues(broker, status).Inc()
}

func ObservePlannerRequest(status string, duration time.Duration) {
	PlannerRequestsTotal.WithLabelValues(status).Inc()
	PlannerRequestDuration.Observe(float64(duration.Milliseconds()))
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
