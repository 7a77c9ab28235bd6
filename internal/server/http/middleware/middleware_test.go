package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/authgate/internal/ratelimit"
	"github.com/mkorchagin/authgate/internal/ratelimit/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticAuthorizer struct {
	userID string
	err    error

	mu     sync.Mutex
	tokens []string
}

func (a *staticAuthorizer) Authorize(_ context.Context, token string) (string, error) {
	a.mu.Lock()
	a.tokens = append(a.tokens, token)
	a.mu.Unlock()
	return a.userID, a.err
}

func newAuthRouter(authorizer Authorizer, publicPaths []string) *gin.Engine {
	r := gin.New()
	r.Use(Auth(authorizer, publicPaths, nil))
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":   GetAuthUser(c),
			"header": c.Request.Header.Get(AuthUserHeader),
		})
	}
	r.GET("/public", handler)
	r.GET("/private", handler)
	return r
}

func TestAuthPublicPathSkipsCheck(t *testing.T) {
	auth := &staticAuthorizer{err: errors.New("must not be called")}
	r := newAuthRouter(auth, []string{"/public"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, auth.tokens)
}

func TestAuthMissingBearer(t *testing.T) {
	r := newAuthRouter(&staticAuthorizer{userID: "u-1"}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization")
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	r := newAuthRouter(&staticAuthorizer{err: errors.New("bad token")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestAuthSetsIdentity(t *testing.T) {
	auth := &staticAuthorizer{userID: "u-1"}
	r := newAuthRouter(auth, nil)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer access")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user":"u-1"`)
	assert.Contains(t, rec.Body.String(), `"header":"u-1"`)
	assert.Equal(t, []string{"access"}, auth.tokens)
}

func TestAuthStripsInboundIdentityHeader(t *testing.T) {
	r := newAuthRouter(&staticAuthorizer{userID: "u-1"}, []string{"/public"})

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set(AuthUserHeader, "spoofed")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"header":""`)
}

func TestRequestIDGeneratedAndReused(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-7", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-7", rec.Body.String())
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(nil))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestRateLimitDeniesWithHeaders(t *testing.T) {
	limiter := ratelimit.NewTokenBucketLimiter(store.NewMemoryStore(time.Minute), 60, 2, time.Minute)
	defer limiter.Close()

	r := gin.New()
	r.Use(RateLimit(limiter, ratelimit.IPKeyFunc, nil))
	r.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	var last *httptest.ResponseRecorder
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		last = httptest.NewRecorder()
		r.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return nil, errors.New("store down")
}
func (failingLimiter) Reset(context.Context, string) error { return nil }
func (failingLimiter) Close() error                        { return nil }

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(failingLimiter{}, nil, nil))
	r.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGlobalRateLimitSheds(t *testing.T) {
	r := gin.New()
	r.Use(GlobalRateLimit(1, 1))
	r.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
