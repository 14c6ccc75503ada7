// Package db talks to the monitored PostgreSQL instance.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	totalConnectionsQuery  = "SELECT COUNT(*) FROM pg_stat_activity"
	activeConnectionsQuery = "SELECT COUNT(*) FROM pg_stat_activity WHERE state = 'active'"
	totalQueriesQuery      = `SELECT COALESCE(SUM(xact_commit + xact_rollback), 0)::bigint
		FROM pg_stat_database
		WHERE datname = current_database()`
)

type Metrics struct {
	TotalConnections  int
	ActiveConnections int
	TotalQueries      int64
}

type conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Target opens a fresh connection per call so a dead server is noticed on
// every check.
type Target struct {
	dsn     string
	timeout time.Duration

	connect func(ctx context.Context, dsn string) (conn, error)
}

func NewTarget(dsn string, timeout time.Duration) *Target {
	return &Target{
		dsn:     dsn,
		timeout: timeout,
		connect: func(ctx context.Context, dsn string) (conn, error) {
			return pgx.Connect(ctx, dsn)
		},
	}
}

func (t *Target) open(ctx context.Context) (conn, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	c, err := t.connect(ctx, t.dsn)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	return c, ctx, cancel, nil
}

// Ping connects and disconnects.
func (t *Target) Ping(ctx context.Context) error {
	c, ctx, cancel, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return c.Close(ctx)
}

func (t *Target) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	c, ctx, cancel, err := t.open(ctx)
	if err != nil {
		return m, err
	}
	defer cancel()
	defer c.Close(context.Background())

	if err := c.QueryRow(ctx, totalConnectionsQuery).Scan(&m.TotalConnections); err != nil {
		return m, fmt.Errorf("total connections: %w", err)
	}
	if err := c.QueryRow(ctx, activeConnectionsQuery).Scan(&m.ActiveConnections); err != nil {
		return m, fmt.Errorf("active connections: %w", err)
	}
	if err := c.QueryRow(ctx, totalQueriesQuery).Scan(&m.TotalQueries); err != nil {
		return m, fmt.Errorf("total queries: %w", err)
	}
	return m, nil
}
