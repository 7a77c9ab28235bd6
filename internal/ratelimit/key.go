package ratelimit

import (
	"net/http"
	"strings"
)

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// ClientKeyFunc returns a KeyFunc that identifies the caller by the user id
// stored in the request header by the auth middleware, falling back to the
// client IP and finally to the request id for anonymous traffic.
func ClientKeyFunc(userIDHeader, requestIDHeader string) KeyFunc {
	return func(r *http.Request) string {
		if id := r.Header.Get(userIDHeader); id != "" {
			return "user:" + id
		}
		if ip := ClientIP(r); ip != "" {
			return "ip:" + ip
		}
		return "req:" + r.Header.Get(requestIDHeader)
	}
}

// IPKeyFunc uses the client IP as the rate limit key.
func IPKeyFunc(r *http.Request) string {
	return ClientIP(r)
}

// ClientIP extracts the client IP from the request, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")

	return ip
}
