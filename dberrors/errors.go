// Package dberrors defines the error taxonomy of the query proxy.
// Every failure in the core surfaces as one of these; nothing is
// swallowed or retried here.
package dberrors

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted is returned when a connection could not be acquired
// within the configured acquisition timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ErrQueryTimeout is returned when a statement exceeded its timeout and
// was cancelled.
var ErrQueryTimeout = errors.New("query timed out")

// TableNotFoundError reports a schema lookup against a table that does
// not exist in the catalog.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("Table '%s' not found", e.Table)
}

// ExecutionError wraps a database-reported failure with a sanitized
// message. The underlying driver error is kept for logging but must not
// be shown to callers.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Query execution failed: %s", e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
