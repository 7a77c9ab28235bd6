package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkorchagin/authgate/internal/observability"
)

// Logging returns a middleware that logs every request. Status 5xx logs
// at error level, 4xx at warn, everything else at info.
func Logging(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []observability.Field{
			observability.String("requestID", GetRequestID(c)),
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.Int("status", status),
			observability.Duration("latency", time.Since(start)),
			observability.String("clientIP", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, observability.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
