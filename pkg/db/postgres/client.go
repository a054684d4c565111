package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/nimiqx/pkg/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// connectTimeout bounds the whole connect-and-ping retry loop at startup.
const connectTimeout = 5 * time.Minute

// Executor is satisfied by both *pgxpool.Pool and pgx.Tx, so row writers run the same
// code inside and outside a height transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	_ Executor = (*pgxpool.Pool)(nil)
	_ Executor = (pgx.Tx)(nil)
)

// Client owns the connection pool of one component.
type Client struct {
	Logger *zap.Logger
	Pool   *pgxpool.Pool
}

// PoolConfig defines connection pool settings for a specific component
type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// Component shows up in logs and as the Postgres application_name.
	Component string
}

// DefaultPoolConfig sizes the pool for one writer plus the balance fan-out.
func DefaultPoolConfig(component string, concurrency int) PoolConfig {
	return PoolConfig{
		MinConns:        2,
		MaxConns:        max(int32(concurrency)+4, 8),
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		Component:       component,
	}
}

// New connects to url, retrying with backoff until the server answers a ping or ctx ends.
func New(ctx context.Context, logger *zap.Logger, url string, poolConf PoolConfig) (Client, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return Client{}, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	config.MinConns = poolConf.MinConns
	config.MaxConns = poolConf.MaxConns
	config.MaxConnLifetime = poolConf.ConnMaxLifetime
	config.MaxConnIdleTime = poolConf.ConnMaxIdleTime
	if poolConf.Component != "" {
		config.ConnConfig.RuntimeParams["application_name"] = "nimiqx-" + poolConf.Component
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var pool *pgxpool.Pool
	err = retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "postgres_connection", func() error {
		p, err := pgxpool.NewWithConfig(connCtx, config)
		if err != nil {
			// A config the driver rejects will not get better.
			return retry.Permanent(fmt.Errorf("failed to create postgres connection pool: %w", err))
		}
		if err := p.Ping(connCtx); err != nil {
			p.Close()
			return fmt.Errorf("failed to ping postgres: %w", err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return Client{}, err
	}

	logger.Info("PostgreSQL connection pool ready",
		zap.String("host", config.ConnConfig.Host),
		zap.String("database", config.ConnConfig.Database),
		zap.String("component", poolConf.Component),
		zap.Int32("max_conns", poolConf.MaxConns))
	return Client{Logger: logger, Pool: pool}, nil
}

// Exec runs a statement on the pool, discarding the command tag.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.Pool.Exec(ctx, query, args...)
	return err
}

// InTx runs fn in a read-committed transaction. fn returning an error rolls everything back.
func (c *Client) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, c.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (c *Client) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// IsNoRows reports whether a single-row query found nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
