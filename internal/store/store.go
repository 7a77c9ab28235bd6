// Package store provides the durable PostgreSQL-backed persistence layer
// for user accounts and refresh-token sessions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Sentinel errors returned by the store.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrExpired indicates the refresh token exists but its expiry has passed.
	ErrExpired = errors.New("store: token expired")

	// ErrEmailExists indicates an account with the given email already exists.
	ErrEmailExists = errors.New("store: email already registered")
)

// User is an account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is a durable session row. TokenHash is the lookup index
// derived from the refresh token, never the token itself.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// DBTX is the subset of database/sql used by the repositories. It is
// satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
