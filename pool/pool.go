// Package pool bounds concurrent database connections and enforces an
// acquisition timeout. It layers on the database/sql pool through sqlx:
// acquisition is a dedicated *sqlx.Conn, so one connection serves
// exactly one in-flight operation at a time.
package pool

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/queryproxy/queryproxy/dberrors"
)

// Config sizes the pool. Values come from the application configuration;
// the pool itself never reads ambient process state.
type Config struct {
	MinSize        int
	MaxSize        int
	AcquireTimeout time.Duration
}

// Pool hands out at most MaxSize concurrently checked-out connections.
// Callers over capacity block until a release or until AcquireTimeout,
// whichever comes first.
type Pool struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
}

// New configures db as a bounded pool. MinSize maps to the number of
// idle connections kept warm; MaxSize caps open connections.
func New(db *sqlx.DB, cfg Config) *Pool {
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}
	if cfg.MinSize > cfg.MaxSize {
		cfg.MinSize = cfg.MaxSize
	}
	db.SetMaxOpenConns(cfg.MaxSize)
	db.SetMaxIdleConns(cfg.MinSize)
	return &Pool{db: db, acquireTimeout: cfg.AcquireTimeout}
}

// Acquire checks out a connection, blocking cooperatively until one is
// free. When the pool stays fully checked out past the acquisition
// timeout it returns dberrors.ErrPoolExhausted; cancellation of the
// caller's context is propagated as-is.
func (p *Pool) Acquire(ctx context.Context) (*sqlx.Conn, error) {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if p.acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.db.Connx(acquireCtx)
	if err != nil {
		if acquireCtx.Err() != nil && ctx.Err() == nil {
			return nil, dberrors.ErrPoolExhausted
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// Release returns a healthy connection to the idle set.
func (p *Pool) Release(conn *sqlx.Conn) {
	_ = conn.Close()
}

// Discard drops a connection that errored during use. The underlying
// session is closed rather than reused; a replacement is opened lazily
// on the next acquire, up to MaxSize.
func (p *Pool) Discard(conn *sqlx.Conn) {
	_ = conn.Raw(func(driverConn any) error {
		return driver.ErrBadConn
	})
	_ = conn.Close()
}

// WithConn runs fn with an acquired connection and guarantees release on
// every exit path. When fn fails the connection is discarded instead of
// returned to the idle set.
func (p *Pool) WithConn(ctx context.Context, fn func(conn *sqlx.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := fn(conn); err != nil {
		p.Discard(conn)
		return err
	}
	p.Release(conn)
	return nil
}

// Ping verifies database reachability through the pool.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close shuts the pool down, closing all idle connections and waiting
// for checked-out ones to be released.
func (p *Pool) Close() error {
	return p.db.Close()
}
