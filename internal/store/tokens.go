package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenStore implements refresh-token session persistence over a DBTX.
//
// Rows are keyed by a lookup index derived from the token rather than the
// token itself, so a database leak does not expose usable credentials.
type TokenStore struct {
	db  DBTX
	now func() time.Time
}

// NewTokenStore constructs a TokenStore bound to the given DBTX.
func NewTokenStore(db DBTX) *TokenStore {
	return &TokenStore{db: db, now: time.Now}
}

// WithClock overrides the store's notion of now. Intended for tests.
func (s *TokenStore) WithClock(now func() time.Time) *TokenStore {
	s.now = now
	return s
}

// Save records a refresh-token session for the user.
func (s *TokenStore) Save(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, token_hash, expires_at, created_at
	`
	rt := &RefreshToken{}
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), userID, tokenHash, expiresAt).
		Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("saving refresh token: %w", err)
	}
	return rt, nil
}

// FindByIndex returns the session row for the given lookup index, or
// ErrNotFound. Expiry is not checked; use Verify for that.
func (s *TokenStore) FindByIndex(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	rt := &RefreshToken{}
	err := s.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}
	return rt, nil
}

// Verify returns the session row for the given lookup index if it exists
// and has not expired. An expired row is deleted opportunistically and
// reported as ErrExpired, which callers must distinguish from ErrNotFound.
func (s *TokenStore) Verify(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	rt, err := s.FindByIndex(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if !rt.ExpiresAt.After(s.now()) {
		// Best effort cleanup; the sweeper catches anything missed here.
		_ = s.RevokeByIndex(ctx, tokenHash)
		return nil, ErrExpired
	}
	return rt, nil
}

// Revoke deletes the session with the given record id, or reports
// ErrNotFound when no such session exists.
func (s *TokenStore) Revoke(ctx context.Context, id string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE id = $1
	`
	return s.revoke(ctx, query, id)
}

// RevokeByIndex deletes the session with the given lookup index, or
// reports ErrNotFound when no such session exists. Callers that want
// idempotent revocation tolerate ErrNotFound themselves.
func (s *TokenStore) RevokeByIndex(ctx context.Context, tokenHash string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
	`
	return s.revoke(ctx, query, tokenHash)
}

func (s *TokenStore) revoke(ctx context.Context, query, key string) error {
	res, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForUser deletes every session belonging to the user and
// returns the number of sessions removed.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE user_id = $1
	`
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoking user sessions: %w", err)
	}
	return n, nil
}

// ListActiveForUser returns the user's unexpired sessions, newest first.
func (s *TokenStore) ListActiveForUser(ctx context.Context, userID string) ([]*RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("listing user sessions: %w", err)
	}
	defer rows.Close()

	var tokens []*RefreshToken
	for rows.Next() {
		rt := &RefreshToken{}
		if err := rows.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		tokens = append(tokens, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing user sessions: %w", err)
	}
	return tokens, nil
}

// CountActiveForUser returns the number of unexpired sessions for the user.
func (s *TokenStore) CountActiveForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT count(*)
		FROM refresh_tokens
		WHERE user_id = $1 AND expires_at > $2
	`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, userID, s.now()).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting user sessions: %w", err)
	}
	return count, nil
}

// SweepExpired deletes all expired sessions and returns the number removed.
func (s *TokenStore) SweepExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`
	res, err := s.db.ExecContext(ctx, query, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sessions: %w", err)
	}
	return n, nil
}
