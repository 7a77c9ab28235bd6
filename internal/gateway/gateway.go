package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mkorchagin/authgate/internal/observability"
	"github.com/mkorchagin/authgate/internal/password"
	"github.com/mkorchagin/authgate/internal/store"
	"github.com/mkorchagin/authgate/internal/token"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// UserStore is the durable account storage the gateway depends on.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*store.User, error)
	FindByEmail(ctx context.Context, email string) (*store.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SessionStore is the durable refresh-token storage.
type SessionStore interface {
	Save(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*store.RefreshToken, error)
	Verify(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RevokeByIndex(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// Revocations is the ephemeral access-token blacklist. It is best effort:
// the gateway fails open when it is unavailable.
type Revocations interface {
	Add(ctx context.Context, tok string, ttl time.Duration) error
	Contains(ctx context.Context, tok string) (bool, error)
}

// SessionBundle is returned by Register and Login.
type SessionBundle struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AccessGrant is returned by Refresh.
type AccessGrant struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Gateway orchestrates the authentication flows. It holds no per-request
// state; all session state lives in the stores.
type Gateway struct {
	users        UserStore
	sessions     SessionStore
	revocations  Revocations
	issuer       *token.Issuer
	logger       observability.Logger
	storeTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithStoreTimeout bounds every durable store call. Zero disables the
// per-call deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.storeTimeout = d
	}
}

// New creates a Gateway.
func New(users UserStore, sessions SessionStore, revocations Revocations, issuer *token.Issuer, opts ...Option) *Gateway {
	g := &Gateway{
		users:        users,
		sessions:     sessions,
		revocations:  revocations,
		issuer:       issuer,
		logger:       observability.NopLogger(),
		storeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register creates an account and opens a session for it.
func (g *Gateway) Register(ctx context.Context, email, pass string) (*SessionBundle, error) {
	if !emailPattern.MatchString(email) {
		return nil, ErrEmailInvalid
	}

	hash, err := password.Hash(pass)
	if err != nil {
		// Policy violations carry their specific sentinel.
		return nil, err
	}

	storeCtx, cancel := g.storeContext(ctx)
	defer cancel()

	user, err := g.users.Create(storeCtx, email, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, g.storeFailure("creating account", err)
	}

	return g.openSession(ctx, user)
}

// Login verifies credentials and opens a session. A stored hash at an
// outdated cost is transparently upgraded on success.
func (g *Gateway) Login(ctx context.Context, email, pass string) (*SessionBundle, error) {
	storeCtx, cancel := g.storeContext(ctx)
	defer cancel()

	user, err := g.users.FindByEmail(storeCtx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, g.storeFailure("looking up account", err)
	}

	ok, err := password.Verify(pass, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if password.NeedsRehash(user.PasswordHash, password.DefaultCost) {
		g.rehash(ctx, user.ID, pass)
	}

	return g.openSession(ctx, user)
}

// Refresh validates a refresh token against its durable session record and
// mints a new access token. The refresh token itself is not rotated.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	claims, err := g.issuer.Validate(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Kind != token.KindRefresh {
		return nil, ErrWrongTokenKind
	}

	revoked, err := g.revocations.Contains(ctx, refreshToken)
	if err != nil {
		// Blacklist is defense in depth; the durable session record
		// below is the binding check.
		g.logger.Warn("blacklist check failed, continuing",
			observability.Error(err),
		)
	} else if revoked {
		return nil, ErrTokenRevoked
	}

	storeCtx, cancel := g.storeContext(ctx)
	defer cancel()

	record, err := g.sessions.Verify(storeCtx, token.LookupIndex(refreshToken))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, store.ErrExpired):
			return nil, ErrSessionExpired
		default:
			return nil, g.storeFailure("verifying session", err)
		}
	}

	if record.UserID != claims.UserID() {
		return nil, ErrInvalidToken
	}

	access, err := g.issuer.IssueAccess(record.UserID)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	return &AccessGrant{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(g.issuer.AccessTTL().Seconds()),
	}, nil
}

// Logout blacklists the access token for its remaining lifetime and
// deletes the matching session record. Logging out twice with the same
// tokens succeeds both times.
func (g *Gateway) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := g.issuer.Validate(accessToken)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.Kind != token.KindAccess {
		return ErrWrongTokenKind
	}

	g.blacklist(ctx, accessToken)

	storeCtx, cancel := g.storeContext(ctx)
	defer cancel()

	// A missing session means it was already revoked; logging out twice
	// succeeds both times.
	err = g.sessions.RevokeByIndex(storeCtx, token.LookupIndex(refreshToken))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return g.storeFailure("revoking session", err)
	}

	g.logger.Info("user logged out",
		observability.String("userID", claims.UserID()),
	)
	return nil
}

// LogoutAll blacklists the access token and revokes every session for its
// user, returning the number of sessions removed.
func (g *Gateway) LogoutAll(ctx context.Context, accessToken string) (int64, error) {
	claims, err := g.issuer.Validate(accessToken)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if claims.Kind != token.KindAccess {
		return 0, ErrWrongTokenKind
	}

	g.blacklist(ctx, accessToken)

	storeCtx, cancel := g.storeContext(ctx)
	defer cancel()

	count, err := g.sessions.RevokeAllForUser(storeCtx, claims.UserID())
	if err != nil {
		return 0, g.storeFailure("revoking user sessions", err)
	}

	g.logger.Info("user logged out everywhere",
		observability.String("userID", claims.UserID()),
		observability.Int64("sessions", count),
	)
	return count, nil
}

// Authorize is the per-request gate. It returns the user id for a valid,
// unrevoked access token.
func (g *Gateway) Authorize(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrInvalidToken
	}

	claims, err := g.issuer.Validate(accessToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	// The kind check is mandatory on every decode: a refresh token also
	// carries a valid signature but must never authorize a request.
	if claims.Kind != token.KindAccess {
		return "", ErrWrongTokenKind
	}

	revoked, err := g.revocations.Contains(ctx, accessToken)
	if err != nil {
		g.logger.Warn("blacklist check failed, continuing",
			observability.Error(err),
		)
	} else if revoked {
		return "", ErrTokenRevoked
	}

	return claims.UserID(), nil
}

func (g *Gateway) openSession(ctx context.Context, user *store.User) (*SessionBundle, error) {
	access, err := g.issuer.IssueAccess(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	refresh, index, err := g.issuer.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	expiresAt, ok := g.issuer.Expiration(refresh)
	if !ok {
		return nil, errors.New("freshly issued refresh token has no expiry")
	}

	storeCtx, cancel := g.storeContext(ctx)
	defer cancel()

	if _, err := g.sessions.Save(storeCtx, user.ID, index, expiresAt); err != nil {
		return nil, g.storeFailure("saving session", err)
	}

	return &SessionBundle{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(g.issuer.AccessTTL().Seconds()),
	}, nil
}

// blacklist records the token for its remaining validity. Failures are
// logged and swallowed: revocation is best effort for already-issued
// tokens, which expire on their own.
func (g *Gateway) blacklist(ctx context.Context, tok string) {
	expiresAt, ok := g.issuer.Expiration(tok)
	if !ok {
		return
	}
	if err := g.revocations.Add(ctx, tok, time.Until(expiresAt)); err != nil {
		g.logger.Warn("failed to blacklist token",
			observability.Error(err),
		)
	}
}

// rehash upgrades a stored hash after a successful login. Best effort.
func (g *Gateway) rehash(ctx context.Context, userID, pass string) {
	hash, err := password.Hash(pass)
	if err != nil {
		return
	}

	storeCtx, cancel := g.storeContext(ctx)
	defer cancel()

	if err := g.users.UpdatePassword(storeCtx, userID, hash); err != nil {
		g.logger.Warn("failed to upgrade password hash",
			observability.String("userID", userID),
			observability.Error(err),
		)
		return
	}
	g.logger.Info("password hash upgraded",
		observability.String("userID", userID),
	)
}

func (g *Gateway) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.storeTimeout)
}

// storeFailure wraps durable store errors, including timeouts, as
// retryable. They must never read as an authentication denial.
func (g *Gateway) storeFailure(op string, err error) error {
	g.logger.Error("store operation failed",
		observability.String("operation", op),
		observability.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
