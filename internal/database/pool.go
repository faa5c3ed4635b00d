package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/config"
)

// Schema creates the aggregates table. Safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS aggregates (
	ticker      TEXT             NOT NULL,
	granularity TEXT             NOT NULL,
	seq         BIGINT           NOT NULL,
	average     DOUBLE PRECISION NOT NULL,
	max         DOUBLE PRECISION NOT NULL,
	min         DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ      NOT NULL DEFAULT now(),
	PRIMARY KEY (ticker, granularity, seq)
)`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create aggregates table: %w", err)
	}
	return nil
}
