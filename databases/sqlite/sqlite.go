// Package sqlite introspects SQLite through sqlite_master and the
// pragma table-valued functions, and runs read queries through the
// shared pool. SQLite keeps no table comments or per-table size stats,
// so those fields come back empty.
package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/queryproxy/queryproxy/dberrors"
	"github.com/queryproxy/queryproxy/executor"
	"github.com/queryproxy/queryproxy/pool"
	"github.com/queryproxy/queryproxy/types"
)

type Connector struct {
	pool *pool.Pool
	exec *executor.Executor
}

func New(p *pool.Pool, exec *executor.Executor) *Connector {
	return &Connector{pool: p, exec: exec}
}

func (c *Connector) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Connector) Close() error {
	return c.pool.Close()
}

func (c *Connector) Execute(ctx context.Context, validatedSQL string) (*types.QueryResult, error) {
	return c.exec.Execute(ctx, validatedSQL)
}

const countTablesQuery = `
	SELECT COUNT(*)
	FROM sqlite_master
	WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
`

const listTablesQuery = `
	SELECT name, type
	FROM sqlite_master
	WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	ORDER BY name
	LIMIT ? OFFSET ?
`

func (c *Connector) ListTables(ctx context.Context, page, pageSize int) ([]types.TableMetadata, types.PaginationInfo, error) {
	var tables []types.TableMetadata
	var totalCount int

	err := c.pool.WithConn(ctx, func(conn *sqlx.Conn) error {
		if err := conn.GetContext(ctx, &totalCount, countTablesQuery); err != nil {
			return fmt.Errorf("failed to count tables: %w", err)
		}

		offset := (page - 1) * pageSize
		rows, err := conn.QueryxContext(ctx, listTablesQuery, pageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to query tables: %w", err)
		}

		type listed struct {
			name string
			kind string
		}
		var names []listed
		for rows.Next() {
			var l listed
			if err := rows.Scan(&l.name, &l.kind); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan table: %w", err)
			}
			names = append(names, l)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, l := range names {
			var columnCount int
			if err := conn.GetContext(ctx, &columnCount, `SELECT COUNT(*) FROM pragma_table_info(?)`, l.name); err != nil {
				return fmt.Errorf("failed to count columns for %s: %w", l.name, err)
			}

			tableType := "BASE TABLE"
			if l.kind == "view" {
				tableType = "VIEW"
			}
			tables = append(tables, types.TableMetadata{
				Name:        l.name,
				Type:        tableType,
				ColumnCount: columnCount,
			})
		}
		return nil
	})
	if err != nil {
		return nil, types.PaginationInfo{}, err
	}

	return tables, types.NewPaginationInfo(page, pageSize, totalCount), nil
}

const tableExistsQuery = `
	SELECT COUNT(*)
	FROM sqlite_master
	WHERE type IN ('table', 'view') AND name = ?
`

const columnsQuery = `
	SELECT name, type, "notnull", pk
	FROM pragma_table_info(?)
	ORDER BY cid
`

const foreignKeyColumnsQuery = `
	SELECT "from"
	FROM pragma_foreign_key_list(?)
`

const indexListQuery = `
	SELECT name, "unique", origin
	FROM pragma_index_list(?)
	ORDER BY name
`

const indexColumnsQuery = `
	SELECT name
	FROM pragma_index_info(?)
	ORDER BY seqno
`

func (c *Connector) GetTableSchema(ctx context.Context, tableName string) (*types.TableSchema, error) {
	var (
		schema   *types.TableSchema
		notFound bool
	)

	err := c.pool.WithConn(ctx, func(conn *sqlx.Conn) error {
		var count int
		if err := conn.GetContext(ctx, &count, tableExistsQuery, tableName); err != nil {
			return fmt.Errorf("failed to check table existence: %w", err)
		}
		if count == 0 {
			notFound = true
			return nil
		}

		fkColumns, err := c.loadForeignKeyColumns(ctx, conn, tableName)
		if err != nil {
			return err
		}
		columns, err := c.loadColumns(ctx, conn, tableName, fkColumns)
		if err != nil {
			return err
		}
		indexes, err := c.loadIndexes(ctx, conn, tableName)
		if err != nil {
			return err
		}

		schema = &types.TableSchema{
			TableName:   tableName,
			ColumnCount: len(columns),
			Columns:     columns,
			Indexes:     indexes,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, &dberrors.TableNotFoundError{Table: tableName}
	}
	return schema, nil
}

func (c *Connector) loadForeignKeyColumns(ctx context.Context, conn *sqlx.Conn, tableName string) (map[string]bool, error) {
	rows, err := conn.QueryxContext(ctx, foreignKeyColumnsQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	fk := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fk[name] = true
	}
	return fk, rows.Err()
}

func (c *Connector) loadColumns(ctx context.Context, conn *sqlx.Conn, tableName string, fkColumns map[string]bool) ([]types.ColumnMetadata, error) {
	rows, err := conn.QueryxContext(ctx, columnsQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.ColumnMetadata
	for rows.Next() {
		var (
			name, dataType string
			notNull, pk    int
		)
		if err := rows.Scan(&name, &dataType, &notNull, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, types.ColumnMetadata{
			Name:         name,
			DataType:     dataType,
			Nullable:     notNull == 0,
			IsPrimaryKey: pk > 0,
			IsForeignKey: fkColumns[name],
		})
	}
	return columns, rows.Err()
}

func (c *Connector) loadIndexes(ctx context.Context, conn *sqlx.Conn, tableName string) ([]types.IndexMetadata, error) {
	rows, err := conn.QueryxContext(ctx, indexListQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}

	type indexEntry struct {
		name   string
		unique int
		origin string
	}
	var entries []indexEntry
	for rows.Next() {
		var e indexEntry
		if err := rows.Scan(&e.name, &e.unique, &e.origin); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var indexes []types.IndexMetadata
	for _, e := range entries {
		colRows, err := conn.QueryxContext(ctx, indexColumnsQuery, e.name)
		if err != nil {
			return nil, fmt.Errorf("failed to query index columns: %w", err)
		}

		var cols []string
		for colRows.Next() {
			var col string
			if err := colRows.Scan(&col); err != nil {
				colRows.Close()
				return nil, fmt.Errorf("failed to scan index column: %w", err)
			}
			cols = append(cols, col)
		}
		if err := colRows.Err(); err != nil {
			colRows.Close()
			return nil, err
		}
		colRows.Close()

		indexes = append(indexes, types.IndexMetadata{
			Name:      e.name,
			Columns:   cols,
			IsUnique:  e.unique == 1,
			IsPrimary: e.origin == "pk",
		})
	}
	return indexes, nil
}
