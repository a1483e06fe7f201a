package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ICC computations.
const (
	OutcomeComputed     = "computed"
	OutcomeInsufficient = "insufficient"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion
	eventsAccepted  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsRejected  *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeRecordsTotal prometheus.Gauge
	storeScopesTotal  prometheus.Gauge
	storeWriteLatency prometheus.Histogram
	storeQueryLatency prometheus.Histogram

	// Reliability
	computations       *prometheus.CounterVec
	computationLatency prometheus.Histogram
	lastICC            prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

var globalManager = NewManager(WithPrometheusRegistry(customRegistry)) //nolint:gochecknoglobals // singleton metrics manager

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "concord",
		subsystem:        "reliability",
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

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.eventsAccepted = m.counter("events_accepted_total", "Evaluations accepted for processing")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Evaluations dropped as duplicates")
	m.eventsRejected = m.counterVec("events_rejected_total", "Evaluations rejected before queueing", "reason")

	m.queueSize = m.gauge("queue_size", "Current number of queued evaluations")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Evaluations enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Evaluations dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts refused by a full or closed queue")

	m.workerCount = m.gauge("worker_count", "Number of running workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to persist one evaluation")
	m.workerErrors = m.counter("worker_errors_total", "Evaluations a worker failed to persist")

	m.storeRecordsTotal = m.gauge("store_records_total", "Evaluations held by the store")
	m.storeScopesTotal = m.gauge("store_scopes_total", "Assessments held by the store")
	m.storeWriteLatency = m.histogram("store_write_latency_milliseconds", "Store append latency")
	m.storeQueryLatency = m.histogram("store_query_latency_milliseconds", "Store read latency")

	m.computations = m.counterVec("icc_computations_total", "ICC computations by outcome", "outcome")
	m.computationLatency = m.histogram("icc_computation_latency_milliseconds", "Time to build a reliability report")
	m.lastICC = m.gauge("icc_last_value", "Most recently computed ICC")
	m.cacheHits = m.counter("report_cache_hits_total", "Reliability reports served from cache")
	m.cacheMisses = m.counter("report_cache_misses_total", "Reliability reports computed on demand")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration in milliseconds", ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordEventAccepted increments the accepted evaluations counter.
func RecordEventAccepted() { globalManager.eventsAccepted.Inc() }

// RecordEventDuplicate increments the duplicate evaluations counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventRejected counts an evaluation rejected for reason.
func RecordEventRejected(reason string) { globalManager.eventsRejected.WithLabelValues(reason).Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// UpdateStoreRecordsTotal sets the number of stored evaluations.
func UpdateStoreRecordsTotal(count int) { globalManager.storeRecordsTotal.Set(float64(count)) }

// UpdateStoreScopesTotal sets the number of stored assessments.
func UpdateStoreScopesTotal(count int) { globalManager.storeScopesTotal.Set(float64(count)) }

// RecordStoreWriteLatency records store append latency.
func RecordStoreWriteLatency(latencyMs float64) { globalManager.storeWriteLatency.Observe(latencyMs) }

// RecordStoreQueryLatency records store read latency.
func RecordStoreQueryLatency(latencyMs float64) { globalManager.storeQueryLatency.Observe(latencyMs) }

// RecordComputation counts an ICC computation with the given outcome.
func RecordComputation(outcome string) { globalManager.computations.WithLabelValues(outcome).Inc() }

// RecordComputationLatency records report computation latency.
func RecordComputationLatency(latencyMs float64) { globalManager.computationLatency.Observe(latencyMs) }

// UpdateLastICC sets the most recently computed ICC.
func UpdateLastICC(icc float64) { globalManager.lastICC.Set(icc) }

// RecordCacheHit increments the report cache hit counter.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss increments the report cache miss counter.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// Count returns the number of metric families currently gathered.
func Count() (int, error) {
	mfs, err := customRegistry.Gather()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrGatherFailed, err)
	}
	return len(mfs), nil
}
