// Package metrics provides Prometheus metrics for the event aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the aggregator.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion outcomes. These mirror the stats counters.
	eventsReceived    prometheus.Counter
	eventsAccepted    prometheus.Counter
	eventsDuplicate   prometheus.Counter
	eventsProcessed   prometheus.Counter
	payloadRejected   prometheus.Counter
	storeFailures     prometheus.Counter
	processingFailure prometheus.Counter

	// Store
	storeLatency     *prometheus.HistogramVec
	storeRecords     prometheus.Gauge
	filterShortCircs prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Consumer
	consumerLatency prometheus.Histogram
	consumerRetries prometheus.Counter
	consumerPanics  prometheus.Counter

	// Edges
	kafkaMessages  *prometheus.CounterVec
	sinkDeliveries *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "aggregator",
		subsystem:        "",
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.eventsReceived = m.counter("events_received_total", "Events that reached the ingestion gateway")
	m.eventsAccepted = m.counter("events_accepted_total", "Events that won the atomic store insert")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Events rejected as duplicates (includes payload rejections)")
	m.eventsProcessed = m.counter("events_processed_total", "Events drained and finished by the consumer")
	m.payloadRejected = m.counter("payload_rejected_total", "Events whose payload could not be serialized")
	m.storeFailures = m.counter("store_failures_total", "Inserts that failed for a reason other than uniqueness")
	m.processingFailure = m.counter("processing_failures_total", "Events whose post-acceptance processing failed after retries")

	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds",
		"Store operation latency in milliseconds", "backend", "operation")
	m.storeRecords = m.gauge("store_records", "Number of dedup records currently stored")
	m.filterShortCircs = m.counter("filter_short_circuits_total",
		"Exists lookups answered negatively by the bloom filter without touching the store")

	m.queueSize = m.gauge("queue_size", "Current number of events waiting for the consumer")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total number of events pushed")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total number of events popped")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Pushes rejected because the queue was closed")

	m.consumerLatency = m.histogram("consumer_processing_latency_milliseconds",
		"Per-event consumer processing latency in milliseconds")
	m.consumerRetries = m.counter("consumer_retries_total", "Processing attempts retried by the consumer")
	m.consumerPanics = m.counter("consumer_panics_total", "Panics recovered while processing an event")

	m.kafkaMessages = m.counterVec("kafka_messages_total", "Kafka messages consumed by outcome", "outcome")
	m.sinkDeliveries = m.counterVec("sink_deliveries_total", "Sink delivery attempts by sink and outcome", "sink", "outcome")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// RecordEventReceived increments the received counter.
func RecordEventReceived() { globalManager.eventsReceived.Inc() }

// RecordEventAccepted increments the accepted counter.
func RecordEventAccepted() { globalManager.eventsAccepted.Inc() }

// RecordEventDuplicate increments the duplicate counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventProcessed increments the processed counter.
func RecordEventProcessed() { globalManager.eventsProcessed.Inc() }

// RecordPayloadRejected increments the payload rejection counter.
func RecordPayloadRejected() { globalManager.payloadRejected.Inc() }

// RecordStoreFailure increments the store failure counter.
func RecordStoreFailure() { globalManager.storeFailures.Inc() }

// RecordProcessingFailure increments the processing failure counter.
func RecordProcessingFailure() { globalManager.processingFailure.Inc() }

// RecordStoreLatency records the latency of one store operation.
func RecordStoreLatency(backend, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// UpdateStoreRecords sets the stored record gauge.
func UpdateStoreRecords(count int) { globalManager.storeRecords.Set(float64(count)) }

// RecordFilterShortCircuit counts an Exists answered by the bloom filter alone.
func RecordFilterShortCircuit() { globalManager.filterShortCircs.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordConsumerLatency records per-event processing latency.
func RecordConsumerLatency(latencyMs float64) { globalManager.consumerLatency.Observe(latencyMs) }

// RecordConsumerRetry increments the retry counter.
func RecordConsumerRetry() { globalManager.consumerRetries.Inc() }

// RecordConsumerPanic increments the recovered panic counter.
func RecordConsumerPanic() { globalManager.consumerPanics.Inc() }

// RecordKafkaMessage counts a consumed Kafka message by outcome.
func RecordKafkaMessage(outcome string) {
	globalManager.kafkaMessages.WithLabelValues(outcome).Inc()
}

// RecordSinkDelivery counts a sink delivery attempt by outcome.
func RecordSinkDelivery(sink, outcome string) {
	globalManager.sinkDeliveries.WithLabelValues(sink, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
