// Package token mints and validates the signed access and refresh tokens
// used by the auth gateway. Tokens are HS256 JWTs bound to a single shared
// signing secret; the token kind is carried inside the signed payload so a
// refresh token can never be replayed as an access token.
package token

import (
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind is the role a token was minted for. The kind check is mandatory at
// every decode site: a valid signature alone does not imply the correct role.
type Kind string

const (
	// KindAccess marks a short-lived token authorizing a single request.
	KindAccess Kind = "access"

	// KindRefresh marks a longer-lived token used to mint new access tokens.
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Token errors.
var (
	// ErrInvalidToken indicates a token that failed to decode: bad format,
	// bad signature, or already expired.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the signed payload of both token kinds. Immutable once minted.
type Claims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"token_type"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Issuer mints and validates signed tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption is a functional option for the Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an Issuer with the given signing secret and lifetimes.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssueAccess mints an access token for the user.
func (i *Issuer) IssueAccess(userID string) (string, error) {
	tok, err := i.issue(userID, KindAccess, i.accessTTL)
	if err != nil {
		return "", err
	}
	tokensIssuedTotal.WithLabelValues(string(KindAccess)).Inc()
	return tok, nil
}

// IssueRefresh mints a refresh token for the user and returns it together
// with its lookup index, a fast non-cryptographic digest of the token string
// stored in place of the raw token. The digest is an index, not a security
// boundary; the signature is.
func (i *Issuer) IssueRefresh(userID string) (string, string, error) {
	tok, err := i.issue(userID, KindRefresh, i.refreshTTL)
	if err != nil {
		return "", "", err
	}
	tokensIssuedTotal.WithLabelValues(string(KindRefresh)).Inc()
	return tok, LookupIndex(tok), nil
}

// issue signs a claims set for the given kind and lifetime.
func (i *Issuer) issue(userID string, kind Kind, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode parses and verifies a token. Signature, format and expiry failures
// all map to ErrInvalidToken.
func (i *Issuer) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		tokenValidationsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		tokenValidationsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Validate decodes the token and additionally confirms the expiry is
// strictly in the future. The decode step already enforces expiry; the
// explicit check is defense in depth.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims, err := i.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(i.now()) {
		tokenValidationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	}
	tokenValidationsTotal.WithLabelValues("valid").Inc()
	return claims, nil
}

// IsKind reports whether the token decodes successfully and carries the
// expected kind. Decode failures report false rather than an error; callers
// use this for routing decisions, not correctness-critical checks.
func (i *Issuer) IsKind(tokenString string, expected Kind) bool {
	claims, err := i.Decode(tokenString)
	if err != nil {
		return false
	}
	return claims.Kind == expected
}

// ExtractUserID returns the subject of a decodable token. Useful for logging
// and other non-critical paths.
func (i *Issuer) ExtractUserID(tokenString string) (string, bool) {
	claims, err := i.Decode(tokenString)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// Expiration returns the expiry instant of a decodable token.
func (i *Issuer) Expiration(tokenString string) (time.Time, bool) {
	claims, err := i.Decode(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// LookupIndex derives the storage index for a refresh token: the FNV-1a
// 64-bit digest of the token string, hex encoded.
func LookupIndex(tokenString string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tokenString))
	return fmt.Sprintf("%x", h.Sum64())
}
