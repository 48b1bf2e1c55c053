package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/monitoring"
)

// LoggingMiddleware emits a structured log line per request and feeds
// the HTTP metrics collectors.
type LoggingMiddleware struct {
	logger       *logrus.Logger
	excludePaths []string
	slowRequest  time.Duration
}

func NewLoggingMiddleware(logger *logrus.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger:       logger,
		excludePaths: []string{"/health", "/metrics"},
		slowRequest:  2 * time.Second,
	}
}

// RequestLogger logs each completed request with timing, status and
// user context, and records it in the Prometheus counters.
func (l *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.shouldExclude(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		monitoring.RecordHTTPRequest(c.Request.Method, endpoint, status, duration)

		entry := l.logger.WithFields(logrus.Fields{
			"request_id":    requestid.Get(c),
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status_code":   status,
			"latency_ms":    duration.Milliseconds(),
			"client_ip":     c.ClientIP(),
			"response_size": c.Writer.Size(),
		})

		if userID, exists := c.Get("user_id"); exists {
			entry = entry.WithField("user_id", userID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		if duration > l.slowRequest {
			entry = entry.WithField("slow_request", true)
		}

		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}

func (l *LoggingMiddleware) shouldExclude(path string) bool {
	for _, p := range l.excludePaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
