// Package middleware provides the gin middleware chain for the auth
// gateway's HTTP surface.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header carrying the request id.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin context key for the request id.
	RequestIDKey = "requestID"
)

// RequestID returns a middleware that assigns each request a unique id,
// reusing the inbound header when the client already set one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Request.Header.Set(RequestIDHeader, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
