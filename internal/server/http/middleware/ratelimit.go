package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mkorchagin/authgate/internal/observability"
	"github.com/mkorchagin/authgate/internal/ratelimit"
)

// RateLimit returns a middleware that applies per-client token bucket
// limiting. A limiter error fails open: shedding legitimate traffic
// because the bucket store is down is worse than briefly not limiting.
func RateLimit(limiter ratelimit.Limiter, keyFunc ratelimit.KeyFunc, logger observability.Logger) gin.HandlerFunc {
	if limiter == nil {
		limiter = ratelimit.NewNoopLimiter()
	}
	if keyFunc == nil {
		keyFunc = ratelimit.IPKeyFunc
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		key := keyFunc(c.Request)

		result, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limit check failed, allowing request",
				observability.String("key", key),
				observability.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
