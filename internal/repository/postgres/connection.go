package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aventura/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations.
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds the dynamically prefixed table names for the persisted
// state layout (spec §6): an append-only entry log, an entries table, and a
// chapters table keyed by (storyId, number).
type TableNames struct {
	Stories      string
	StoryEntries string
	Entries      string
	Chapters     string
}

// NewTableNames creates table names with the given prefix.
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Stories:      fmt.Sprintf("%sstories", prefix),
		StoryEntries: fmt.Sprintf("%sstory_entries", prefix),
		Entries:      fmt.Sprintf("%sentries", prefix),
		Chapters:     fmt.Sprintf("%schapters", prefix),
	}
}

// CreateConnectionPool creates a pgx connection pool, auto-detecting a
// PgBouncer transaction-pooling endpoint (port 6543) and switching off
// prepared statements since PgBouncer's transaction mode doesn't support
// them. Direct connections (the default port) keep prepared statements for
// better throughput.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for pooled connection", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction in ctx if present, otherwise pool.
// This lets repositories participate transparently in an ambient
// transaction started by TransactionManager.ExecTx.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
