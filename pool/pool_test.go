package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryproxy/queryproxy/dberrors"
)

func newTestPool(t *testing.T, cfg Config) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := New(sqlx.NewDb(db, "sqlmock"), cfg)
	t.Cleanup(func() { _ = p.Close() })
	return p, mock
}

func TestAcquireRelease(t *testing.T) {
	p, _ := newTestPool(t, Config{MinSize: 1, MaxSize: 2, AcquireTimeout: time.Second})

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	p.Release(conn)
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	p, _ := newTestPool(t, Config{MinSize: 1, MaxSize: 1, AcquireTimeout: 50 * time.Millisecond})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dberrors.ErrPoolExhausted)
	assert.Less(t, time.Since(start), 5*time.Second, "exhausted acquire must not hang")
}

func TestAcquireUnblocksOnRelease(t *testing.T) {
	p, _ := newTestPool(t, Config{MinSize: 1, MaxSize: 1, AcquireTimeout: 2 * time.Second})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Release(held)
		close(released)
	}()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	<-released
	p.Release(conn)
}

func TestAcquirePropagatesCallerCancellation(t *testing.T) {
	p, _ := newTestPool(t, Config{MinSize: 1, MaxSize: 1, AcquireTimeout: 5 * time.Second})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, dberrors.ErrPoolExhausted))
}

func TestWithConnReleasesOnError(t *testing.T) {
	p, _ := newTestPool(t, Config{MinSize: 1, MaxSize: 1, AcquireTimeout: 100 * time.Millisecond})

	boom := errors.New("boom")
	err := p.WithConn(context.Background(), func(conn *sqlx.Conn) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The slot must be free again even though fn failed.
	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)
}

func TestWithConnRunsFn(t *testing.T) {
	p, _ := newTestPool(t, Config{MinSize: 1, MaxSize: 1, AcquireTimeout: time.Second})

	called := false
	err := p.WithConn(context.Background(), func(conn *sqlx.Conn) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
