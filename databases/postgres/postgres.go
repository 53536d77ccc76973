// Package postgres introspects the PostgreSQL system catalogs and runs
// read queries through the shared pool.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/queryproxy/queryproxy/dberrors"
	"github.com/queryproxy/queryproxy/executor"
	"github.com/queryproxy/queryproxy/pool"
	"github.com/queryproxy/queryproxy/types"
)

type Connector struct {
	pool   *pool.Pool
	exec   *executor.Executor
	schema string
}

// New builds a connector scoped to the given schema.
func New(p *pool.Pool, exec *executor.Executor, schema string) *Connector {
	if schema == "" {
		schema = "public"
	}
	return &Connector{pool: p, exec: exec, schema: schema}
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
	SELECT count(*)
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	  AND c.relkind IN ('r', 'v', 'm')
`

const listTablesQuery = `
	SELECT
	    c.relname AS table_name,
	    CASE c.relkind
	        WHEN 'r' THEN 'BASE TABLE'
	        WHEN 'v' THEN 'VIEW'
	        WHEN 'm' THEN 'MATERIALIZED VIEW'
	    END AS table_type,
	    pg_total_relation_size(c.oid) AS size_bytes,
	    (
	        SELECT count(*) FROM pg_attribute
	        WHERE attrelid = c.oid AND attnum > 0 AND NOT attisdropped
	    ) AS column_count,
	    obj_description(c.oid, 'pg_class') AS table_comment
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	  AND c.relkind IN ('r', 'v', 'm')
	ORDER BY c.relname
	LIMIT $2 OFFSET $3
`

// ListTables returns one page of tables ordered by name. Count and page
// are read on the same connection so one call sees one catalog state.
func (c *Connector) ListTables(ctx context.Context, page, pageSize int) ([]types.TableMetadata, types.PaginationInfo, error) {
	var tables []types.TableMetadata
	var totalCount int

	err := c.pool.WithConn(ctx, func(conn *sqlx.Conn) error {
		if err := conn.GetContext(ctx, &totalCount, countTablesQuery, c.schema); err != nil {
			return fmt.Errorf("failed to count tables: %w", err)
		}

		offset := (page - 1) * pageSize
		rows, err := conn.QueryxContext(ctx, listTablesQuery, c.schema, pageSize, offset)
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
	SELECT EXISTS (
	    SELECT 1 FROM pg_class c
	    JOIN pg_namespace n ON n.oid = c.relnamespace
	    WHERE n.nspname = $1 AND c.relname = $2
	)
`

const tableCommentQuery = `
	SELECT obj_description(c.oid, 'pg_class') AS table_comment
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2
`

const columnsQuery = `
	SELECT
	    a.attname AS column_name,
	    pg_catalog.format_type(a.atttypid, a.atttypmod) AS data_type,
	    NOT a.attnotnull AS is_nullable,
	    EXISTS (
	        SELECT 1 FROM pg_constraint con
	        WHERE con.conrelid = a.attrelid
	          AND con.contype = 'p'
	          AND a.attnum = ANY(con.conkey)
	    ) AS is_primary_key,
	    EXISTS (
	        SELECT 1 FROM pg_constraint con
	        WHERE con.conrelid = a.attrelid
	          AND con.contype = 'f'
	          AND a.attnum = ANY(con.conkey)
	    ) AS is_foreign_key,
	    col_description(a.attrelid, a.attnum) AS column_comment
	FROM pg_attribute a
	JOIN pg_class c ON a.attrelid = c.oid
	JOIN pg_namespace n ON c.relnamespace = n.oid
	WHERE n.nspname = $1
	  AND c.relname = $2
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY a.attnum
`

// Index columns are ordered by their position in the index key, not by
// attribute number, so composite index ordering survives.
const indexesQuery = `
	SELECT
	    i.relname AS index_name,
	    ARRAY_AGG(a.attname ORDER BY array_position(ix.indkey::int[], a.attnum)) AS columns,
	    ix.indisunique AS is_unique,
	    ix.indisprimary AS is_primary
	FROM pg_index ix
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_class i ON i.oid = ix.indexrelid
	JOIN pg_namespace n ON t.relnamespace = n.oid
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
	WHERE n.nspname = $1 AND t.relname = $2
	GROUP BY i.relname, ix.indisunique, ix.indisprimary
	ORDER BY i.relname
`

// GetTableSchema returns the full schema of tableName, matched
// case-sensitively against the catalog.
func (c *Connector) GetTableSchema(ctx context.Context, tableName string) (*types.TableSchema, error) {
	var (
		schema   *types.TableSchema
		notFound bool
	)

	err := c.pool.WithConn(ctx, func(conn *sqlx.Conn) error {
		var exists bool
		if err := conn.GetContext(ctx, &exists, tableExistsQuery, c.schema, tableName); err != nil {
			return fmt.Errorf("failed to check table existence: %w", err)
		}
		if !exists {
			notFound = true
			return nil
		}

		var tableComment sql.NullString
		if err := conn.GetContext(ctx, &tableComment, tableCommentQuery, c.schema, tableName); err != nil {
			return fmt.Errorf("failed to query table comment: %w", err)
		}

		columns, err := c.loadColumns(ctx, conn, tableName)
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

func (c *Connector) loadColumns(ctx context.Context, conn *sqlx.Conn, tableName string) ([]types.ColumnMetadata, error) {
	rows, err := conn.QueryxContext(ctx, columnsQuery, c.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.ColumnMetadata
	for rows.Next() {
		var (
			col     types.ColumnMetadata
			comment sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.IsPrimaryKey, &col.IsForeignKey, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if comment.Valid {
			col.Comment = &comment.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (c *Connector) loadIndexes(ctx context.Context, conn *sqlx.Conn, tableName string) ([]types.IndexMetadata, error) {
	rows, err := conn.QueryxContext(ctx, indexesQuery, c.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var indexes []types.IndexMetadata
	for rows.Next() {
		var (
			idx        types.IndexMetadata
			columnsRaw string
		)
		if err := rows.Scan(&idx.Name, &columnsRaw, &idx.IsUnique, &idx.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		idx.Columns = parseTextArray(columnsRaw)
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// parseTextArray decodes a postgres array literal like {id,name}.
func parseTextArray(raw string) []string {
	raw = strings.Trim(raw, "{}")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return parts
}
