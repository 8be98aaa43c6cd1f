// Package postgres implements the engine's repositories on top of pgx,
// following the teacher's connection-pooling and tracing conventions.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of *pgxpool.Pool the repositories depend on, so unit
// tests can substitute a fake without a live database.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Role selects the connection-pool sizing profile (spec.md §5: 3 for the
// API, 2 for background workers, against a shared ceiling).
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

// NewPool creates a pgx connection pool sized for the given role, with
// OpenTelemetry tracing attached the way the teacher's NewPool does.
func NewPool(ctx context.Context, dsn string, role Role, apiMaxConns, workerMaxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool.parse: %w", err)
	}

	switch role {
	case RoleWorker:
		cfg.MaxConns = workerMaxConns
	default:
		cfg.MaxConns = apiMaxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	cfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool.connect: %w", err)
	}

	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record pgx stats", slog.Any("error", err))
	}

	return pool, nil
}
