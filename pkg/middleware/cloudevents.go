package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fileflow-platform/tracking-service/pkg/logging"
)

// CloudEvents tracking extension context keys
const (
	ContextKeyTrackingCorrelationID = "trackingCorrelationId"
	ContextKeyTrackingFileID        = "trackingFileId"
)

// CloudEvents tracking extension HTTP header names
const (
	HeaderTrackingCorrelationID = "X-Tracking-Correlation-ID"
	HeaderTrackingFileID        = "X-Tracking-File-ID"
)

// CloudEvents middleware extracts tracking CloudEvents extensions from HTTP
// headers and adds them to the request context for downstream logging and
// propagation. These extensions follow the CloudEvents specification and are
// used for correlating requests with pipeline events across services.
func CloudEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract tracking CloudEvents extensions from headers
		correlationID := c.GetHeader(HeaderTrackingCorrelationID)
		fileID := c.GetHeader(HeaderTrackingFileID)

		// Set in Gin context
		if correlationID != "" {
			c.Set(ContextKeyTrackingCorrelationID, correlationID)
		}
		if fileID != "" {
			c.Set(ContextKeyTrackingFileID, fileID)
		}

		// Set in Go context for logging package
		ctx := c.Request.Context()
		if correlationID != "" {
			ctx = logging.ContextWithCorrelationID(ctx, correlationID)
		}
		if fileID != "" {
			ctx = logging.ContextWithFileID(ctx, fileID)
		}
		c.Request = c.Request.WithContext(ctx)

		// Propagate headers in response (for tracing)
		if correlationID != "" {
			c.Header(HeaderTrackingCorrelationID, correlationID)
		}
		if fileID != "" {
			c.Header(HeaderTrackingFileID, fileID)
		}

		c.Next()
	}
}

// GetTrackingCorrelationID extracts tracking correlation ID from Gin context
func GetTrackingCorrelationID(c *gin.Context) string {
	if val, exists := c.Get(ContextKeyTrackingCorrelationID); exists {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

// GetTrackingFileID extracts tracking file ID from Gin context
func GetTrackingFileID(c *gin.Context) string {
	if val, exists := c.Get(ContextKeyTrackingFileID); exists {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

// PropagationCloudEventHeaders returns tracking CloudEvents headers for
// propagation to downstream services
func PropagationCloudEventHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string)

	if id := GetTrackingCorrelationID(c); id != "" {
		headers[HeaderTrackingCorrelationID] = id
	}
	if id := GetTrackingFileID(c); id != "" {
		headers[HeaderTrackingFileID] = id
	}

	return headers
}

// CloudEventsLogger middleware stores a logger enriched with CloudEvents
// extensions in the Gin context
func CloudEventsLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		enriched := logger
		if id := GetTrackingCorrelationID(c); id != "" {
			enriched = enriched.WithCorrelationID(id)
		}
		if id := GetTrackingFileID(c); id != "" {
			enriched = enriched.WithFileID(id)
		}

		c.Set("logger", enriched)

		c.Next()
	}
}

// GetEnrichedLogger retrieves the CloudEvents-enriched logger from Gin context
func GetEnrichedLogger(c *gin.Context, fallbackLogger *logging.Logger) *logging.Logger {
	if logger, exists := c.Get("logger"); exists {
		if l, ok := logger.(*logging.Logger); ok {
			return l
		}
	}
	return fallbackLogger
}
