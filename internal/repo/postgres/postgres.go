// Package postgres implements the repo interfaces on PostgreSQL using
// pgx connection pools. Schema is managed through golang-migrate; see
// the migrations directory at the repository root.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nightwatchhq/nightwatch-agent/internal/config"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
	"github.com/nightwatchhq/nightwatch-agent/internal/utils"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a connection pool and verifies it with a ping, retrying
// with exponential backoff while the database comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, attempts int, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		if attempt < attempts {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if backoff > 16*time.Second {
				backoff = 16 * time.Second
			}
			logger.Warn("database connection failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
			}
		}
	}
	return nil, &utils.StorageError{Op: "connect", Err: fmt.Errorf("after %d attempts: %w", attempts, lastErr)}
}

// Migrate applies all pending schema migrations from path.
func Migrate(dsn, path string) error {
	migrator, err := migrate.New("file://"+path, dsn)
	if err != nil {
		return &utils.StorageError{Op: "open migrator", Err: err}
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &utils.StorageError{Op: "run migrations", Err: err}
	}
	return nil
}

// NewStore wires every repository over the given pool.
func NewStore(pool *pgxpool.Pool) *repo.Store {
	return &repo.Store{
		Targets:       &targetRepo{db: pool},
		Metrics:       &metricRepo{db: pool},
		Incidents:     &incidentRepo{db: pool},
		AgentActions:  &actionRepo{db: pool},
		ActionHistory: &historyRepo{db: pool},
	}
}
