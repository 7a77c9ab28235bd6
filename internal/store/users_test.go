package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserStoreWithMock(t *testing.T) (*UserStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewUserStore(db), mock, db
}

func userRow(id, email, hash string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
		AddRow(id, email, hash, now, now)
}

func TestUserStoreCreate(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+users\b.*RETURNING\b`

	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "a@example.com", "hash").
		WillReturnRows(userRow("u1", "a@example.com", "hash"))

	u, err := s.Create(context.Background(), "a@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "a@example.com", u.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStoreCreateDuplicateEmail(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+users\b`).
		WithArgs(sqlmock.AnyArg(), "a@example.com", "hash").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := s.Create(context.Background(), "a@example.com", "hash")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserStoreCreateDBError(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+users\b`).
		WithArgs(sqlmock.AnyArg(), "a@example.com", "hash").
		WillReturnError(errors.New("db down"))

	_, err := s.Create(context.Background(), "a@example.com", "hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmailExists)
}

func TestUserStoreFindByEmail(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,\s*email,\s*password_hash.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1`

	mock.ExpectQuery(q).
		WithArgs("a@example.com").
		WillReturnRows(userRow("u1", "a@example.com", "hash"))

	u, err := s.FindByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestUserStoreFindByEmailNotFound(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+email`).
		WithArgs("missing@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := s.FindByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserStoreFindByID(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnRows(userRow("u1", "a@example.com", "hash"))

	u, err := s.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)
}

func TestUserStoreEmailExists(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+EXISTS`).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.EmailExists(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserStoreUpdatePassword(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+users\s+SET\s+password_hash`

	mock.ExpectExec(q).
		WithArgs("u1", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdatePassword(context.Background(), "u1", "newhash"))

	mock.ExpectExec(q).
		WithArgs("missing", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.UpdatePassword(context.Background(), "missing", "newhash"), ErrNotFound)
}

func TestUserStoreDelete(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`

	mock.ExpectExec(q).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(context.Background(), "u1"))

	mock.ExpectExec(q).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Delete(context.Background(), "missing"), ErrNotFound)
}

func TestUserStoreList(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,\s*email,\s*password_hash.*FROM\s+users\s+ORDER\s+BY\s+created_at\s+DESC`

	rows := userRow("u2", "b@example.com", "hash2")
	rows.AddRow("u1", "a@example.com", "hash1", time.Now(), time.Now())
	mock.ExpectQuery(q).
		WithArgs(int64(10), int64(0)).
		WillReturnRows(rows)

	users, err := s.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u2", users[0].ID)
	assert.Equal(t, "u1", users[1].ID)
}

func TestUserStoreCount(t *testing.T) {
	s, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+count\(\*\)\s+FROM\s+users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
