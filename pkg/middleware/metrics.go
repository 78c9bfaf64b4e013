package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fileflow-platform/tracking-service/pkg/metrics"
)

// MetricsMiddleware creates middleware that records HTTP metrics
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip metrics endpoint to avoid recursion
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		// Track in-flight requests
		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		// Record start time
		start := time.Now()

		// Process request
		c.Next()

		// Record metrics after request completes
		duration := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath() // Use route pattern, not actual path

		// If no route matched, use the raw path
		if path == "" {
			path = c.Request.URL.Path
		}

		// Record HTTP request metrics
		m.RecordHTTPRequest(method, path, status, duration)
	}
}

// MetricsEndpoint returns a handler for the /metrics endpoint
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	handler := m.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// TrackingMetrics provides helpers for recording pipeline-specific metrics
type TrackingMetrics struct {
	metrics *metrics.Metrics
}

// NewTrackingMetrics creates a new TrackingMetrics helper
func NewTrackingMetrics(m *metrics.Metrics) *TrackingMetrics {
	return &TrackingMetrics{metrics: m}
}

// RecordFileInitialized records a file entering the pipeline
func (t *TrackingMetrics) RecordFileInitialized(startStage string) {
	t.metrics.RecordFileInitialized(startStage)
}

// RecordStageTransition records a stage transition
func (t *TrackingMetrics) RecordStageTransition(fromStage, toStage string, forced bool) {
	t.metrics.RecordStageTransition(fromStage, toStage, forced)
}

// RecordStageCompletion records a completed stage visit
func (t *TrackingMetrics) RecordStageCompletion(stage, slaStatus string, durationMinutes float64) {
	t.metrics.RecordStageCompletion(stage, slaStatus, durationMinutes)
}

// RecordSLABreach records an SLA breach detection
func (t *TrackingMetrics) RecordSLABreach(stage string) {
	t.metrics.RecordSLABreach(stage)
}

// RecordEscalationRaised records an escalation notification
func (t *TrackingMetrics) RecordEscalationRaised(stage string) {
	t.metrics.RecordEscalationRaised(stage)
}

// RecordCircuitBreakerState records circuit breaker state
func (t *TrackingMetrics) RecordCircuitBreakerState(name string, state int) {
	t.metrics.SetCircuitBreakerState(name, state)
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (t *TrackingMetrics) RecordCircuitBreakerTrip(name string) {
	t.metrics.RecordCircuitBreakerTrip(name)
}

// RequestMetrics extracts metrics from a gin context for custom recording
type RequestMetrics struct {
	Method     string
	Path       string
	Status     int
	Duration   time.Duration
	ClientIP   string
	UserAgent  string
	RequestID  string
	StatusText string
}

// ExtractRequestMetrics extracts metrics from the current request
func ExtractRequestMetrics(c *gin.Context, duration time.Duration) *RequestMetrics {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}

	requestID, _ := c.Get(ContextKeyRequestID)
	reqID, _ := requestID.(string)

	return &RequestMetrics{
		Method:     c.Request.Method,
		Path:       path,
		Status:     c.Writer.Status(),
		Duration:   duration,
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		RequestID:  reqID,
		StatusText: statusText(c.Writer.Status()),
	}
}

func statusText(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	case status >= 300:
		return "redirect"
	case status >= 200:
		return "success"
	default:
		return "informational"
	}
}

// MetricsConfig holds configuration for metrics middleware
type MetricsConfig struct {
	// ServiceName is the name of the service
	ServiceName string

	// Namespace is the Prometheus namespace
	Namespace string

	// HistogramBuckets defines custom histogram buckets for request duration
	HistogramBuckets []float64

	// ExcludePaths lists paths to exclude from metrics
	ExcludePaths []string
}

// DefaultMetricsConfig returns a default metrics configuration
func DefaultMetricsConfig(serviceName string) *MetricsConfig {
	return &MetricsConfig{
		ServiceName:      serviceName,
		Namespace:        "tracking",
		HistogramBuckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		ExcludePaths:     []string{"/metrics", "/health", "/ready"},
	}
}

// MetricsMiddlewareWithConfig creates metrics middleware with custom configuration
func MetricsMiddlewareWithConfig(m *metrics.Metrics, config *MetricsConfig) gin.HandlerFunc {
	excludeMap := make(map[string]bool)
	for _, path := range config.ExcludePaths {
		excludeMap[path] = true
	}

	return func(c *gin.Context) {
		// Skip excluded paths
		if excludeMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		// Track in-flight requests
		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		// Record start time
		start := time.Now()

		// Process request
		c.Next()

		// Record metrics after request completes
		duration := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath()

		if path == "" {
			path = c.Request.URL.Path
		}

		m.RecordHTTPRequest(method, path, status, duration)
	}
}

// FormatDuration formats a duration for logging
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return strconv.FormatFloat(float64(d.Nanoseconds())/1000, 'f', 2, 64) + "µs"
	}
	if d < time.Second {
		return strconv.FormatFloat(float64(d.Nanoseconds())/1000000, 'f', 2, 64) + "ms"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
}
