// Package gateway implements the authentication flows: registration,
// login, token refresh, logout and request authorization. It orchestrates
// the password, token, store and cache layers and owns the error taxonomy
// the HTTP layer maps to status codes.
package gateway

import "errors"

// Sentinel errors for authentication operations.
var (
	// ErrEmailInvalid indicates the email failed format validation.
	ErrEmailInvalid = errors.New("invalid email address")

	// ErrEmailExists indicates the email is already registered.
	ErrEmailExists = errors.New("email already registered")

	// ErrUserNotFound indicates no account matches the identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials indicates the email/password pair does not
	// match. Deliberately indistinguishable from an unknown email.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken indicates the token failed signature or claims
	// validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongTokenKind indicates a token of the wrong kind was supplied,
	// such as an access token on the refresh endpoint.
	ErrWrongTokenKind = errors.New("wrong token kind")

	// ErrTokenRevoked indicates the token has been blacklisted.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrSessionNotFound indicates no stored session matches the
	// refresh token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the stored session has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrStoreUnavailable indicates the durable store failed. The request
	// may be retried; it never means the credentials were wrong.
	ErrStoreUnavailable = errors.New("store unavailable")
)
