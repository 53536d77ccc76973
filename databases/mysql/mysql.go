// Package mysql introspects MySQL's information_schema and runs read
// queries through the shared pool. The catalog is scoped to the
// database named in the DSN via DATABASE().
package mysql

import (
	"context"
	"database/sql"
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
	FROM information_schema.tables
	WHERE table_schema = DATABASE()
	  AND table_type IN ('BASE TABLE', 'VIEW')
`

const listTablesQuery = `
	SELECT
	    t.table_name,
	    t.table_type,
	    COALESCE(t.data_length + t.index_length, 0) AS size_bytes,
	    (
	        SELECT COUNT(*) FROM information_schema.columns c
	        WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name
	    ) AS column_count,
	    NULLIF(t.table_comment, '') AS table_comment
	FROM information_schema.tables t
	WHERE t.table_schema = DATABASE()
	  AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY t.table_name
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
		defer rows.Close()

		for rows.Next() {
			var (
				t       types.TableMetadata
				comment sql.NullString
			)
			if err := rows.Scan(&t.Name, &t.Type, &t.SizeBytes, &t.ColumnCount, &comment); err != nil {
				return fmt.Errorf("failed to scan table: %w", err)
			}
			if comment.Valid {
				t.Comment = &comment.String
			}
			tables = append(tables, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, types.PaginationInfo{}, err
	}

	return tables, types.NewPaginationInfo(page, pageSize, totalCount), nil
}

const tableExistsQuery = `
	SELECT COUNT(*)
	FROM information_schema.tables
	WHERE table_schema = DATABASE() AND table_name = ?
`

const tableCommentQuery = `
	SELECT NULLIF(table_comment, '')
	FROM information_schema.tables
	WHERE table_schema = DATABASE() AND table_name = ?
`

const columnsQuery = `
	SELECT column_name, column_type, is_nullable, column_key, NULLIF(column_comment, '')
	FROM information_schema.columns
	WHERE table_schema = DATABASE() AND table_name = ?
	ORDER BY ordinal_position
`

const foreignKeyColumnsQuery = `
	SELECT column_name
	FROM information_schema.key_column_usage
	WHERE table_schema = DATABASE()
	  AND table_name = ?
	  AND referenced_table_name IS NOT NULL
`

const indexColumnsQuery = `
	SELECT index_name, column_name, non_unique
	FROM information_schema.statistics
	WHERE table_schema = DATABASE() AND table_name = ?
	ORDER BY index_name, seq_in_index
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

		var tableComment sql.NullString
		if err := conn.GetContext(ctx, &tableComment, tableCommentQuery, tableName); err != nil {
			return fmt.Errorf("failed to query table comment: %w", err)
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
		if tableComment.Valid {
			schema.TableComment = &tableComment.String
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
			name, columnType, isNullable, columnKey string
			comment                                 sql.NullString
		)
		if err := rows.Scan(&name, &columnType, &isNullable, &columnKey, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := types.ColumnMetadata{
			Name:         name,
			DataType:     columnType,
			Nullable:     isNullable == "YES",
			IsPrimaryKey: columnKey == "PRI",
			IsForeignKey: fkColumns[name],
		}
		if comment.Valid {
			col.Comment = &comment.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (c *Connector) loadIndexes(ctx context.Context, conn *sqlx.Conn, tableName string) ([]types.IndexMetadata, error) {
	rows, err := conn.QueryxContext(ctx, indexColumnsQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	// Rows arrive ordered by (index_name, seq_in_index); fold them into
	// one entry per index with key order preserved.
	var indexes []types.IndexMetadata
	byName := make(map[string]int)
	for rows.Next() {
		var (
			indexName, columnName string
			nonUnique             int
		)
		if err := rows.Scan(&indexName, &columnName, &nonUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		pos, ok := byName[indexName]
		if !ok {
			indexes = append(indexes, types.IndexMetadata{
				Name:      indexName,
				IsUnique:  nonUnique == 0,
				IsPrimary: indexName == "PRIMARY",
			})
			pos = len(indexes) - 1
			byName[indexName] = pos
		}
		indexes[pos].Columns = append(indexes[pos].Columns, columnName)
	}
	return indexes, rows.Err()
}
