package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all tracking-service metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec
	KafkaConsumeLag      *prometheus.GaugeVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec
	MongoDBConnectionsOpen   prometheus.Gauge

	// Outbox metrics
	OutboxEventsPending   prometheus.Gauge
	OutboxEventsPublished *prometheus.CounterVec
	OutboxRetries         *prometheus.CounterVec

	// Business metrics
	FilesInitialized    *prometheus.CounterVec
	StageTransitions    *prometheus.CounterVec
	StageCompletions    *prometheus.CounterVec
	SLABreaches         *prometheus.CounterVec
	PenaltyPoints       *prometheus.CounterVec
	EscalationsRaised   *prometheus.CounterVec
	DegradedReads       *prometheus.CounterVec
	PipelineFallbacks   *prometheus.CounterVec
	StageVisitDuration  *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
	Subsystem   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "tracking",
		Subsystem:   serviceName,
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	// HTTP metrics
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	// Kafka metrics
	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "kafka_events_published_total",
			Help:      "Total number of Kafka events published",
		},
		[]string{"service", "topic", "event_type", "status"},
	)

	m.KafkaEventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "kafka_events_consumed_total",
			Help:      "Total number of Kafka events consumed",
		},
		[]string{"service", "topic", "event_type", "status"},
	)

	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.KafkaConsumeLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "kafka_consumer_lag",
			Help:      "Kafka consumer lag (messages behind)",
		},
		[]string{"service", "topic", "partition"},
	)

	// MongoDB metrics
	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "mongodb_operations_total",
			Help:      "Total number of MongoDB operations",
		},
		[]string{"service", "collection", "operation", "status"},
	)

	m.MongoDBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "collection", "operation"},
	)

	m.MongoDBConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "mongodb_connections_open",
			Help:        "Number of open MongoDB connections",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	// Outbox metrics
	m.OutboxEventsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "outbox_events_pending",
			Help:        "Number of outbox events waiting to be published",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.OutboxEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "outbox_events_published_total",
			Help:      "Total number of outbox events published",
		},
		[]string{"service", "event_type", "status"},
	)

	m.OutboxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "outbox_retries_total",
			Help:      "Total number of outbox publish retries",
		},
		[]string{"service", "event_type"},
	)

	// Business metrics
	m.FilesInitialized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "files_initialized_total",
			Help:      "Total number of files entered into the pipeline",
		},
		[]string{"service", "start_stage"},
	)

	m.StageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stage_transitions_total",
			Help:      "Total number of stage transitions",
		},
		[]string{"service", "from_stage", "to_stage", "forced"},
	)

	m.StageCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stage_completions_total",
			Help:      "Total number of completed stage visits",
		},
		[]string{"service", "stage", "sla_status"},
	)

	m.SLABreaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "sla_breaches_total",
			Help:      "Total number of SLA breaches detected",
		},
		[]string{"service", "stage"},
	)

	m.PenaltyPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "penalty_points_total",
			Help:      "Total penalty points accumulated",
		},
		[]string{"service", "stage"},
	)

	m.EscalationsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "escalations_raised_total",
			Help:      "Total number of SLA escalations raised",
		},
		[]string{"service", "stage"},
	)

	m.DegradedReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "degraded_reads_total",
			Help:      "Total number of records reconstructed by the legacy-safe decoder",
		},
		[]string{"service", "reason"},
	)

	m.PipelineFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "pipeline_fallbacks_total",
			Help:      "Total number of pipeline view reads served from the authoritative store",
		},
		[]string{"service", "reason"},
	)

	m.StageVisitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "stage_visit_duration_minutes",
			Help:      "Completed stage visit duration in minutes",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 480, 960, 1920},
		},
		[]string{"service", "stage"},
	)

	// Circuit breaker metrics
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service", "name"},
	)

	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"service", "name"},
	)

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaEventsConsumed,
		m.KafkaPublishDuration,
		m.KafkaConsumeLag,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.MongoDBConnectionsOpen,
		m.OutboxEventsPending,
		m.OutboxEventsPublished,
		m.OutboxRetries,
		m.FilesInitialized,
		m.StageTransitions,
		m.StageCompletions,
		m.SLABreaches,
		m.PenaltyPoints,
		m.EscalationsRaised,
		m.DegradedReads,
		m.PipelineFallbacks,
		m.StageVisitDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a Kafka consume event
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, status).Inc()
}

// SetKafkaConsumerLag sets the Kafka consumer lag
func (m *Metrics) SetKafkaConsumerLag(topic string, partition int, lag int64) {
	m.KafkaConsumeLag.WithLabelValues(m.serviceName, topic, strconv.Itoa(partition)).Set(float64(lag))
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// SetMongoDBConnections sets the number of open MongoDB connections
func (m *Metrics) SetMongoDBConnections(count int) {
	m.MongoDBConnectionsOpen.Set(float64(count))
}

// SetOutboxPending sets the number of pending outbox events
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxEventsPending.Set(float64(count))
}

// RecordOutboxPublish records an outbox publish attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.OutboxEventsPublished.WithLabelValues(m.serviceName, eventType, status).Inc()
}

// RecordOutboxRetry records an outbox publish retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordFileInitialized records a file entering the pipeline
func (m *Metrics) RecordFileInitialized(startStage string) {
	m.FilesInitialized.WithLabelValues(m.serviceName, startStage).Inc()
}

// RecordStageTransition records a stage transition
func (m *Metrics) RecordStageTransition(fromStage, toStage string, forced bool) {
	m.StageTransitions.WithLabelValues(m.serviceName, fromStage, toStage, strconv.FormatBool(forced)).Inc()
}

// RecordStageCompletion records a completed stage visit
func (m *Metrics) RecordStageCompletion(stage, slaStatus string, durationMinutes float64) {
	m.StageCompletions.WithLabelValues(m.serviceName, stage, slaStatus).Inc()
	m.StageVisitDuration.WithLabelValues(m.serviceName, stage).Observe(durationMinutes)
}

// RecordSLABreach records a detected SLA breach
func (m *Metrics) RecordSLABreach(stage string) {
	m.SLABreaches.WithLabelValues(m.serviceName, stage).Inc()
}

// RecordPenaltyPoints adds accumulated penalty points
func (m *Metrics) RecordPenaltyPoints(stage string, points float64) {
	if points > 0 {
		m.PenaltyPoints.WithLabelValues(m.serviceName, stage).Add(points)
	}
}

// RecordEscalationRaised records an SLA escalation
func (m *Metrics) RecordEscalationRaised(stage string) {
	m.EscalationsRaised.WithLabelValues(m.serviceName, stage).Inc()
}

// RecordDegradedRead records a record reconstructed by the legacy-safe decoder
func (m *Metrics) RecordDegradedRead(reason string) {
	m.DegradedReads.WithLabelValues(m.serviceName, reason).Inc()
}

// RecordPipelineFallback records a pipeline view served from the authoritative store
func (m *Metrics) RecordPipelineFallback(reason string) {
	m.PipelineFallbacks.WithLabelValues(m.serviceName, reason).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
