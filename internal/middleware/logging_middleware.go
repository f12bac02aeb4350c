package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meetsmatch/matchengine/internal/telemetry"
)

// CorrelationIDHeader carries the request correlation id in both directions.
const CorrelationIDHeader = "X-Correlation-ID"

// LoggingConfig holds the configuration for logging middleware
type LoggingConfig struct {
	SkipPaths     []string
	LogHeaders    bool
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the default logging middleware configuration
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths: []string{
			"/health",
			"/live",
			"/metrics",
		},
		LogHeaders:    false,
		SlowThreshold: 2 * time.Second,
	}
}

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"X-Api-Key":     true,
}

// LoggingMiddleware assigns every request a correlation id, stores it on the
// request context and logs the completed request. Skipped paths still get a
// correlation id.
func LoggingMiddleware(logger *telemetry.Logger, config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	if logger == nil {
		logger = telemetry.GetGlobalLogger()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}
		c.Header(CorrelationIDHeader, correlationID)
		ctx := telemetry.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if skip[c.Request.URL.Path] {
			return
		}

		duration := time.Since(start)
		fields := map[string]interface{}{
			"operation":   "http_request",
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(duration.Nanoseconds()) / 1e6,
			"size":        c.Writer.Size(),
			"remote_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if actorID, ok := ActorID(c.Request.Context()); ok {
			fields["actor_id"] = actorID
		}
		if config.LogHeaders {
			headers := make(map[string]string, len(c.Request.Header))
			for name, values := range c.Request.Header {
				switch {
				case redactedHeaders[name]:
					headers[name] = "[REDACTED]"
				case len(values) > 0:
					headers[name] = values[0]
				}
			}
			fields["headers"] = headers
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		entry := logger.WithContext(c.Request.Context()).WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("HTTP request completed with server error")
		case c.Writer.Status() >= 400:
			entry.Warn("HTTP request completed with client error")
		case duration > config.SlowThreshold:
			entry.Warn("HTTP request completed (slow)")
		default:
			entry.Info("HTTP request completed")
		}
	}
}
