package executor

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryproxy/queryproxy/dberrors"
	"github.com/queryproxy/queryproxy/pool"
)

func newTestExecutor(t *testing.T, timeout time.Duration) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	p := pool.New(sqlx.NewDb(db, "sqlmock"), pool.Config{MinSize: 1, MaxSize: 2, AcquireTimeout: time.Second})
	t.Cleanup(func() { _ = p.Close() })
	return New(p, timeout), mock
}

func TestExecuteReturnsColumnsAndRows(t *testing.T) {
	exec, mock := newTestExecutor(t, time.Second)

	query := "SELECT code, name FROM dict_currencies WHERE is_active = true"
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"code", "name"}).
			AddRow("USD", "US Dollar").
			AddRow("EUR", "Euro").
			AddRow("GBP", "Pound Sterling").
			AddRow("JPY", "Yen").
			AddRow("CHF", "Swiss Franc"),
	)

	result, err := exec.Execute(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "name"}, result.Columns)
	assert.Equal(t, 5, result.RowCount)
	assert.Len(t, result.Rows, 5)
	assert.Equal(t, []any{"USD", "US Dollar"}, result.Rows[0])
}

func TestExecuteEmptyResult(t *testing.T) {
	exec, mock := newTestExecutor(t, time.Second)

	query := "SELECT id FROM t WHERE false"
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	result, err := exec.Execute(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, result.Columns)
	assert.Equal(t, 0, result.RowCount)
	assert.Empty(t, result.Rows)
}

func TestExecuteMarshalsDriverValues(t *testing.T) {
	exec, mock := newTestExecutor(t, time.Second)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	query := "SELECT * FROM samples"
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"n", "f", "b", "s", "at", "dec", "raw", "missing"}).
			AddRow(int64(42), 1.5, true, "text", ts, []byte("12345.6789"), []byte{0xff, 0xfe}, nil),
	)

	result, err := exec.Execute(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Equal(t, int64(42), row[0])
	assert.Equal(t, 1.5, row[1])
	assert.Equal(t, true, row[2])
	assert.Equal(t, "text", row[3])
	assert.Equal(t, "2024-03-01T12:30:00Z", row[4])
	assert.Equal(t, "12345.6789", row[5], "decimals stay strings")
	assert.Equal(t, "//4=", row[6], "non-UTF-8 binary is base64")
	assert.Nil(t, row[7])
}

func TestExecuteSanitizesDatabaseError(t *testing.T) {
	exec, mock := newTestExecutor(t, time.Second)

	query := "SELECT nope FROM missing_table"
	mock.ExpectQuery(query).WillReturnError(assert.AnError)

	_, err := exec.Execute(context.Background(), query)
	require.Error(t, err)

	var execErr *dberrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "Query execution failed")
}

func TestExecuteTimeout(t *testing.T) {
	exec, mock := newTestExecutor(t, 30*time.Millisecond)

	query := "SELECT pg_heavy()"
	mock.ExpectQuery(query).WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))

	result, err := exec.Execute(context.Background(), query)
	assert.Nil(t, result, "partial results must never surface")
	assert.ErrorIs(t, err, dberrors.ErrQueryTimeout)
}

func TestExecutePropagatesCallerCancellation(t *testing.T) {
	exec, mock := newTestExecutor(t, time.Second)

	query := "SELECT 1"
	mock.ExpectQuery(query).WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, query)
	assert.ErrorIs(t, err, context.Canceled)
}
