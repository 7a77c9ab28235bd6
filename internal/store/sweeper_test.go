package store

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingDB struct {
	execs atomic.Int64
}

type staticResult int64

func (r staticResult) LastInsertId() (int64, error) { return 0, nil }
func (r staticResult) RowsAffected() (int64, error) { return int64(r), nil }

func (c *countingDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	c.execs.Add(1)
	return staticResult(1), nil
}

func (c *countingDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, sql.ErrNoRows
}

func (c *countingDB) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func TestSweeperSweeps(t *testing.T) {
	db := &countingDB{}
	sw := NewSweeper(NewTokenStore(db), 5*time.Millisecond)

	sw.Start(context.Background())
	defer sw.Stop()

	assert.Eventually(t, func() bool {
		return db.execs.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweeperStartStop(t *testing.T) {
	sw := NewSweeper(NewTokenStore(&countingDB{}), time.Hour)
	sw.Start(context.Background())

	done := make(chan struct{})
	go func() {
		sw.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}

	// Idempotent.
	sw.Stop()
}
