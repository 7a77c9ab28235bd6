package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// GlobalRateLimit returns a middleware that caps the server-wide request
// rate, independent of the per-client buckets. It protects the process
// itself rather than enforcing fairness.
func GlobalRateLimit(rps, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "server overloaded",
			})
			return
		}
		c.Next()
	}
}
