package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mkorchagin/authgate/internal/observability"
)

const (
	// AuthUserHeader carries the authorized user id to the upstream.
	AuthUserHeader = "X-Auth-User"

	// AuthUserKey is the gin context key for the authorized user id.
	AuthUserKey = "authUserID"

	bearerPrefix = "Bearer "
)

// Authorizer validates an access token and returns the user id it
// belongs to.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string) (string, error)
}

// Auth returns a middleware that requires a valid bearer token on every
// path not listed in publicPaths. The authorized user id is stored in the
// context and stamped onto the request for upstream forwarding.
func Auth(authorizer Authorizer, publicPaths []string, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}

	return func(c *gin.Context) {
		// Never trust an inbound identity header.
		c.Request.Header.Del(AuthUserHeader)

		if public[c.Request.URL.Path] {
			c.Next()
			return
		}

		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization",
			})
			return
		}

		userID, err := authorizer.Authorize(c.Request.Context(), token)
		if err != nil {
			logger.Warn("request rejected",
				observability.String("path", c.Request.URL.Path),
				observability.String("requestID", GetRequestID(c)),
				observability.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Set(AuthUserKey, userID)
		c.Request.Header.Set(AuthUserHeader, userID)
		c.Next()
	}
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, bearerPrefix)
}

// GetAuthUser returns the user id set by Auth.
func GetAuthUser(c *gin.Context) string {
	if id, ok := c.Get(AuthUserKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
