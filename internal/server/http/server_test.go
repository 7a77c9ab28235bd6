package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/authgate/internal/config"
	"github.com/mkorchagin/authgate/internal/gateway"
	"github.com/mkorchagin/authgate/internal/ratelimit"
	"github.com/mkorchagin/authgate/internal/ratelimit/store"
	"github.com/mkorchagin/authgate/internal/server/http/middleware"
)

func TestProxyPathRequiresAuth(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "hit")
		w.WriteHeader(http.StatusOK)
	})
	svc := &fakeAuthService{userID: "u-1"}
	srv := newTestServer(t, svc, Options{Proxy: upstream})

	rec := doJSON(t, srv, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/orders", "",
		map[string]string{"Authorization": "Bearer access"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Upstream"))
}

func TestProxyPathRejectsBadToken(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be reached")
	})
	svc := &fakeAuthService{err: gateway.ErrInvalidToken}
	srv := newTestServer(t, svc, Options{Proxy: upstream})

	rec := doJSON(t, srv, http.MethodGet, "/api/orders", "",
		map[string]string{"Authorization": "Bearer garbage"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProxyForwardsIdentityHeader(t *testing.T) {
	var gotUser string
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(middleware.AuthUserHeader)
	})
	svc := &fakeAuthService{userID: "u-42"}
	srv := newTestServer(t, svc, Options{Proxy: upstream})

	rec := doJSON(t, srv, http.MethodGet, "/api/orders", "",
		map[string]string{
			"Authorization":           "Bearer access",
			middleware.AuthUserHeader: "spoofed",
		})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-42", gotUser)
}

func TestNoProxyReturnsNotFound(t *testing.T) {
	svc := &fakeAuthService{userID: "u-1"}
	srv := newTestServer(t, svc, Options{})

	rec := doJSON(t, srv, http.MethodGet, "/api/orders", "",
		map[string]string{"Authorization": "Bearer access"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, &fakeAuthService{}, Options{})

	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = doJSON(t, srv, http.MethodGet, "/health", "",
		map[string]string{middleware.RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
}

func TestPerClientRateLimitOnAuthEndpoints(t *testing.T) {
	limiter := ratelimit.NewTokenBucketLimiter(store.NewMemoryStore(time.Minute), 60, 2, time.Minute)
	defer limiter.Close()

	svc := &fakeAuthService{err: gateway.ErrInvalidCredentials}
	srv := newTestServer(t, svc, Options{Limiter: limiter})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"user@example.com","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.9:40000"
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{
		http.StatusUnauthorized,
		http.StatusUnauthorized,
		http.StatusTooManyRequests,
	}, codes)
}

func TestPerUserRateLimitOnProxiedRequests(t *testing.T) {
	limiter := ratelimit.NewTokenBucketLimiter(store.NewMemoryStore(time.Minute), 60, 2, time.Minute)
	defer limiter.Close()

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	svc := &fakeAuthService{userID: "u-1"}
	srv := newTestServer(t, svc, Options{Limiter: limiter, Proxy: upstream})

	codes := make([]int, 0, 3)
	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer access")
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	// The third request is denied even though each came from a different
	// address: the bucket key is the authenticated user.
	assert.Equal(t, []int{
		http.StatusOK,
		http.StatusOK,
		http.StatusTooManyRequests,
	}, codes)
}

func TestGlobalRateLimit(t *testing.T) {
	cfg := config.Default().Server
	cfg.GlobalRateEnabled = true
	cfg.GlobalRPS = 1
	cfg.GlobalBurst = 2

	handlers := NewHandlers(&fakeAuthService{}, nil, nil)
	srv := NewServer(cfg, handlers, Options{Authorizer: &fakeAuthService{}})

	statuses := make(map[int]int)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		statuses[rec.Code]++
	}

	assert.Equal(t, 2, statuses[http.StatusOK])
	assert.Equal(t, 3, statuses[http.StatusTooManyRequests])
}
