// Package databases wires a dialect-specific connector over the shared
// connection pool and query executor. The dialect is a deploy-time
// choice; every connector introspects the catalog through the same
// pooled path used for user queries.
package databases

import (
	"context"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/queryproxy/queryproxy/config"
	"github.com/queryproxy/queryproxy/databases/mysql"
	"github.com/queryproxy/queryproxy/databases/postgres"
	"github.com/queryproxy/queryproxy/databases/sqlite"
	"github.com/queryproxy/queryproxy/executor"
	"github.com/queryproxy/queryproxy/pool"
	"github.com/queryproxy/queryproxy/types"
)

// Connector is the read-only database surface consumed by the
// presentation layers.
type Connector interface {
	Ping(ctx context.Context) error
	ListTables(ctx context.Context, page, pageSize int) ([]types.TableMetadata, types.PaginationInfo, error)
	GetTableSchema(ctx context.Context, tableName string) (*types.TableSchema, error)
	Execute(ctx context.Context, validatedSQL string) (*types.QueryResult, error)
	Close() error
}

// Open builds the connector for the configured dialect, verifying
// connectivity before returning.
func Open(ctx context.Context, cfg *config.Config) (Connector, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	p := pool.New(db, pool.Config{
		MinSize:        cfg.Pool.MinSize,
		MaxSize:        cfg.Pool.MaxSize,
		AcquireTimeout: cfg.Pool.AcquireTimeout.Std(),
	})
	exec := executor.New(p, cfg.Query.Timeout.Std())

	var connector Connector
	switch cfg.Database.Type {
	case "postgres":
		connector = postgres.New(p, exec, cfg.Database.Schema)
	case "mysql":
		connector = mysql.New(p, exec)
	case "sqlite":
		connector = sqlite.New(p, exec)
	}

	if err := connector.Ping(ctx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return connector, nil
}

func openDB(cfg *config.Config) (*sqlx.DB, error) {
	switch cfg.Database.Type {
	case "postgres":
		pgxCfg, err := pgx.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		pgxCfg.PreferSimpleProtocol = true
		return sqlx.NewDb(stdlib.OpenDB(*pgxCfg), "pgx"), nil

	case "mysql":
		if _, err := mysqldriver.ParseDSN(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		db, err := sqlx.Open("mysql", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil

	case "sqlite":
		db, err := sqlx.Open("sqlite", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}
