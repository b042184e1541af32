// Package metrics provides Prometheus metrics for the herdwatch service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion
	fixesReceived  prometheus.Counter
	fixesDuplicate prometheus.Counter
	fixesStale     prometheus.Counter
	fixesRejected  *prometheus.CounterVec

	// Evaluation
	evaluations       *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	evaluationLatency prometheus.Histogram
	passes            *prometheus.CounterVec
	passDuration      prometheus.Histogram
	entitiesByStatus  *prometheus.GaugeVec
	fenceVertices     prometheus.Gauge
	fenceReplacements prometheus.Counter
	storeErrors       *prometheus.CounterVec

	// Alerting
	alertsEmitted        prometheus.Counter
	alertsDropped        prometheus.Counter
	alertsDelivered      prometheus.Counter
	alertsFailed         prometheus.Counter
	alertDeliveryLatency prometheus.Histogram

	// Queues and workers
	queueSize          *prometheus.GaugeVec
	queueCapacity      *prometheus.GaugeVec
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        *prometheus.GaugeVec
	workerLatency      *prometheus.HistogramVec
	workerErrors       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var knownStatuses = []string{"UNKNOWN", "INSIDE", "OUTSIDE"}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level recorders

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out of /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "herdwatch",
		subsystem:        "geofence",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	m.fixesReceived = m.counter("fixes_received_total", "Position fixes accepted for evaluation")
	m.fixesDuplicate = m.counter("fixes_duplicate_total", "Position fixes ignored because their fix id was already seen")
	m.fixesStale = m.counter("fixes_stale_total", "Position fixes older than the entity's last fix")
	m.fixesRejected = m.counterVec("fixes_rejected_total", "Position fixes rejected before evaluation", "reason")

	m.evaluations = m.counterVec("evaluations_total", "Containment evaluations by result", "result")
	m.transitions = m.counterVec("transitions_total", "Status transitions by previous and new status", "from", "to")
	m.evaluationLatency = m.histogram("evaluation_latency_milliseconds", "Latency of a single entity evaluation including the store write")
	m.passes = m.counterVec("passes_total", "Full evaluation passes by outcome", "outcome")
	m.passDuration = m.histogram("pass_duration_milliseconds", "Duration of a full evaluation pass")
	m.entitiesByStatus = m.gaugeVec("entities", "Tracked entities by containment status", "status")
	m.fenceVertices = m.gauge("fence_vertices", "Vertex count of the active geofence (0 means no fence)")
	m.fenceReplacements = m.counter("fence_replacements_total", "Geofence replacements accepted")
	m.storeErrors = m.counterVec("store_errors_total", "Store operations that failed", "operation")

	m.alertsEmitted = m.counter("alerts_emitted_total", "Exit alerts handed to the dispatcher")
	m.alertsDropped = m.counter("alerts_dropped_total", "Exit alerts dropped because the dispatch queue was full")
	m.alertsDelivered = m.counter("alerts_delivered_total", "Exit alerts delivered by every configured channel")
	m.alertsFailed = m.counter("alerts_failed_total", "Exit alerts whose delivery failed (not retried)")
	m.alertDeliveryLatency = m.histogram("alert_delivery_latency_milliseconds", "Latency of alert delivery")

	m.queueSize = m.gaugeVec("queue_size", "Items waiting in a queue", "queue")
	m.queueCapacity = m.gaugeVec("queue_capacity", "Configured queue capacity", "queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Enqueue attempts that failed", "queue", "reason")
	m.workerCount = m.gaugeVec("workers", "Workers running per pool", "pool")
	m.workerLatency = m.histogramVec("worker_processing_latency_milliseconds", "Per-item processing latency", "pool")
	m.workerErrors = m.counterVec("worker_errors_total", "Items whose processing returned an error", "pool")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause")
}

// Manager methods.

func (m *Manager) RecordFixReceived()                { m.fixesReceived.Inc() }
func (m *Manager) RecordFixDuplicate()               { m.fixesDuplicate.Inc() }
func (m *Manager) RecordFixStale()                   { m.fixesStale.Inc() }
func (m *Manager) RecordFixRejected(reason string)   { m.fixesRejected.WithLabelValues(reason).Inc() }
func (m *Manager) RecordEvaluation(result string)    { m.evaluations.WithLabelValues(result).Inc() }
func (m *Manager) RecordTransition(from, to string)  { m.transitions.WithLabelValues(from, to).Inc() }
func (m *Manager) RecordEvaluationLatency(ms float64) { m.evaluationLatency.Observe(ms) }
func (m *Manager) RecordStoreError(operation string) { m.storeErrors.WithLabelValues(operation).Inc() }
func (m *Manager) UpdateFenceVertices(n int)         { m.fenceVertices.Set(float64(n)) }
func (m *Manager) RecordFenceReplacement()           { m.fenceReplacements.Inc() }

func (m *Manager) RecordPass(outcome string, durationMs float64) {
	m.passes.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(durationMs)
}

// UpdateEntityStatusCounts replaces the per-status entity gauges.
// Statuses missing from counts are reset to zero.
func (m *Manager) UpdateEntityStatusCounts(counts map[string]int) error {
	for status := range counts {
		if !isKnownStatus(status) {
			return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
		}
	}
	for _, status := range knownStatuses {
		m.entitiesByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
	return nil
}

func isKnownStatus(s string) bool {
	for _, k := range knownStatuses {
		if k == s {
			return true
		}
	}
	return false
}

func (m *Manager) RecordAlertEmitted()   { m.alertsEmitted.Inc() }
func (m *Manager) RecordAlertDropped()   { m.alertsDropped.Inc() }
func (m *Manager) RecordAlertDelivered() { m.alertsDelivered.Inc() }
func (m *Manager) RecordAlertFailed()    { m.alertsFailed.Inc() }

func (m *Manager) RecordAlertDeliveryLatency(ms float64) { m.alertDeliveryLatency.Observe(ms) }

func (m *Manager) UpdateQueueSize(queue string, size int) {
	m.queueSize.WithLabelValues(queue).Set(float64(size))
}

func (m *Manager) UpdateQueueCapacity(queue string, capacity int) {
	m.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

func (m *Manager) RecordQueueEnqueueError(queue, reason string) {
	m.queueEnqueueErrors.WithLabelValues(queue, reason).Inc()
}

func (m *Manager) UpdateWorkerCount(pool string, n int) {
	m.workerCount.WithLabelValues(pool).Set(float64(n))
}

func (m *Manager) RecordWorkerLatency(pool string, ms float64) {
	m.workerLatency.WithLabelValues(pool).Observe(ms)
}

func (m *Manager) RecordWorkerError(pool string) { m.workerErrors.WithLabelValues(pool).Inc() }

func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func (m *Manager) RecordErrorByComponent(component, errorType string) {
	m.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

func (m *Manager) UpdateSystem(memBytes uint64, goroutines int) {
	m.systemMemoryUsage.Set(float64(memBytes))
	m.systemGoroutineCount.Set(float64(goroutines))
}

func (m *Manager) RecordSystemGCPauseTime(ms float64) { m.systemGCPauseTime.Observe(ms) }

// Package-level recorders backed by the global manager.

func RecordFixReceived()                 { globalManager.RecordFixReceived() }
func RecordFixDuplicate()                { globalManager.RecordFixDuplicate() }
func RecordFixStale()                    { globalManager.RecordFixStale() }
func RecordFixRejected(reason string)    { globalManager.RecordFixRejected(reason) }
func RecordEvaluation(result string)     { globalManager.RecordEvaluation(result) }
func RecordTransition(from, to string)   { globalManager.RecordTransition(from, to) }
func RecordEvaluationLatency(ms float64) { globalManager.RecordEvaluationLatency(ms) }
func RecordStoreError(operation string)  { globalManager.RecordStoreError(operation) }
func UpdateFenceVertices(n int)          { globalManager.UpdateFenceVertices(n) }
func RecordFenceReplacement()            { globalManager.RecordFenceReplacement() }

func RecordPass(outcome string, durationMs float64) { globalManager.RecordPass(outcome, durationMs) }

func UpdateEntityStatusCounts(counts map[string]int) error {
	return globalManager.UpdateEntityStatusCounts(counts)
}

func RecordAlertEmitted()                    { globalManager.RecordAlertEmitted() }
func RecordAlertDropped()                    { globalManager.RecordAlertDropped() }
func RecordAlertDelivered()                  { globalManager.RecordAlertDelivered() }
func RecordAlertFailed()                     { globalManager.RecordAlertFailed() }
func RecordAlertDeliveryLatency(ms float64)  { globalManager.RecordAlertDeliveryLatency(ms) }
func UpdateQueueSize(queue string, size int) { globalManager.UpdateQueueSize(queue, size) }

func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.UpdateQueueCapacity(queue, capacity)
}

func RecordQueueEnqueueError(queue, reason string) {
	globalManager.RecordQueueEnqueueError(queue, reason)
}

func UpdateWorkerCount(pool string, n int)        { globalManager.UpdateWorkerCount(pool, n) }
func RecordWorkerLatency(pool string, ms float64) { globalManager.RecordWorkerLatency(pool, ms) }
func RecordWorkerError(pool string)               { globalManager.RecordWorkerError(pool) }

func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

func UpdateSystem(memBytes uint64, goroutines int) { globalManager.UpdateSystem(memBytes, goroutines) }
func RecordSystemGCPauseTime(ms float64)           { globalManager.RecordSystemGCPauseTime(ms) }

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
