package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// UserStore implements account persistence over a DBTX.
type UserStore struct {
	db DBTX
}

// NewUserStore constructs a UserStore bound to the given DBTX.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new account and returns the stored row. A duplicate
// email returns ErrEmailExists.
func (s *UserStore) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	query := `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, created_at, updated_at
	`
	u := &User{}
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), email, passwordHash).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// FindByEmail returns the account with the given email, or ErrNotFound.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// FindByID returns the account with the given id, or ErrNotFound.
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// EmailExists reports whether an account with the given email exists.
func (s *UserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return exists, nil
}

// UpdatePassword replaces the stored password hash for the given account.
func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the account. Refresh tokens cascade in the schema.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM users
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns accounts ordered by creation time, newest first.
func (s *UserStore) List(ctx context.Context, limit, offset int64) ([]*User, error) {
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Count returns the total number of accounts.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (s *UserStore) scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return u, nil
}
