package mw

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"session-escrow-backend/internal/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestLogging tags every request with an id and logs its outcome.
func RequestLogging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		c.Next()

		args := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if caller := Caller(c); caller != "" {
			args = append(args, "caller", caller)
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("HTTP request failed", args...)
		case status >= 400:
			log.Warn("HTTP request rejected", args...)
		default:
			log.Info("HTTP request completed", args...)
		}
	}
}
