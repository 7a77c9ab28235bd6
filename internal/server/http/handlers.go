package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkorchagin/authgate/internal/gateway"
	"github.com/mkorchagin/authgate/internal/health"
	"github.com/mkorchagin/authgate/internal/observability"
	"github.com/mkorchagin/authgate/internal/password"
	"github.com/mkorchagin/authgate/internal/server/http/middleware"
)

// AuthService is the session lifecycle consumed by the handlers.
type AuthService interface {
	Register(ctx context.Context, email, pass string) (*gateway.SessionBundle, error)
	Login(ctx context.Context, email, pass string) (*gateway.SessionBundle, error)
	Refresh(ctx context.Context, refreshToken string) (*gateway.AccessGrant, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	LogoutAll(ctx context.Context, accessToken string) (int64, error)
}

// Handlers serves the gateway's own endpoints.
type Handlers struct {
	auth    AuthService
	checker *health.Checker
	logger  observability.Logger
}

// NewHandlers creates the endpoint handlers. A nil checker degrades the
// health endpoints to a static response.
func NewHandlers(auth AuthService, checker *health.Checker, logger observability.Logger) *Handlers {
	if checker == nil {
		checker = health.NewChecker("")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{auth: auth, checker: checker, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Register creates a user and opens the first session.
func (h *Handlers) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	bundle, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bundle)
}

// Login verifies credentials and opens a session.
func (h *Handlers) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	bundle, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// Refresh exchanges a valid refresh token for a new access token.
func (h *Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	grant, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// Logout revokes the session named by the refresh token and blacklists the
// bearer access token.
func (h *Handlers) Logout(c *gin.Context) {
	tok := middleware.BearerToken(c)
	if tok == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), tok, req.RefreshToken); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// LogoutAll revokes every session of the authenticated user.
func (h *Handlers) LogoutAll(c *gin.Context) {
	tok := middleware.BearerToken(c)
	if tok == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	count, err := h.auth.LogoutAll(c.Request.Context(), tok)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "Logged out successfully",
		"sessions_revoked": count,
	})
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Health())
}

// Ready reports readiness of the backing stores.
func (h *Handlers) Ready(c *gin.Context) {
	resp := h.checker.Readiness(c.Request.Context())
	status := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// writeError maps service errors to HTTP statuses. Authentication failures
// share one generic body so callers cannot probe which part was wrong.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrEmailInvalid),
		errors.Is(err, password.ErrTooShort),
		errors.Is(err, password.ErrNoUppercase),
		errors.Is(err, password.ErrNoLowercase),
		errors.Is(err, password.ErrNoDigit),
		errors.Is(err, gateway.ErrEmailExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gateway.ErrUserNotFound),
		errors.Is(err, gateway.ErrInvalidCredentials),
		errors.Is(err, gateway.ErrInvalidToken),
		errors.Is(err, gateway.ErrWrongTokenKind),
		errors.Is(err, gateway.ErrTokenRevoked),
		errors.Is(err, gateway.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials or token"})
	case errors.Is(err, gateway.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, gateway.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		h.logger.Error("unhandled service error",
			observability.String("requestID", middleware.GetRequestID(c)),
			observability.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
