// Package executor runs validated queries on pooled connections with a
// statement timeout and converts results into the JSON-safe tabular
// representation served to callers.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"

	"github.com/queryproxy/queryproxy/dberrors"
	"github.com/queryproxy/queryproxy/pool"
	"github.com/queryproxy/queryproxy/types"
)

// Executor submits queries through the connection pool. The caller is
// responsible for validating the SQL first; the executor enforces only
// the statement timeout and result marshalling.
type Executor struct {
	pool    *pool.Pool
	timeout time.Duration
}

// New creates an Executor. timeout bounds each statement; zero disables
// the client-side deadline.
func New(p *pool.Pool, timeout time.Duration) *Executor {
	return &Executor{pool: p, timeout: timeout}
}

// Execute runs validatedSQL and fetches the full result set. On timeout
// the in-flight statement is cancelled, the connection is discarded, and
// dberrors.ErrQueryTimeout is returned; no partial rows ever surface.
// Database-reported failures come back as *dberrors.ExecutionError with
// a sanitized message.
func (e *Executor) Execute(ctx context.Context, validatedSQL string) (*types.QueryResult, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	healthy := false
	defer func() {
		if healthy {
			e.pool.Release(conn)
		} else {
			e.pool.Discard(conn)
		}
	}()

	queryCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		queryCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := conn.QueryxContext(queryCtx, validatedSQL)
	if err != nil {
		return nil, e.classify(queryCtx, ctx, err)
	}
	defer rows.Close()

	result, err := MarshalRows(rows)
	if err != nil {
		return nil, e.classify(queryCtx, ctx, err)
	}

	healthy = true
	return result, nil
}

// classify maps a driver error to the proxy's error taxonomy. Timeouts
// and cancellation win over whatever the driver reported, since the
// driver error for a cancelled statement is an internal artifact.
func (e *Executor) classify(queryCtx, ctx context.Context, err error) error {
	if errors.Is(queryCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return dberrors.ErrQueryTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &dberrors.ExecutionError{Message: sanitizeMessage(err), Err: err}
}

// sanitizeMessage reduces a driver error to the database's own message,
// keeping connection strings and driver internals out of responses.
func sanitizeMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Message
	}
	return err.Error()
}
