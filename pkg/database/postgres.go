package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepflow-inc/prepflow-engine/pkg/config"
)

// DB wraps a pgxpool connection pool for the run registry.
type DB struct {
	*pgxpool.Pool
}

// PoolConfig holds registry connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewConnection creates a new registry connection pool and verifies it with
// a ping before returning.
func NewConnection(ctx context.Context, cfg *PoolConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}

	poolConfig.MinConns = cfg.MinConnections

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// NewRegistryConnection builds a pool from the registry section of the
// engine configuration.
func NewRegistryConnection(ctx context.Context, cfg *config.RegistryConfig) (*DB, error) {
	return NewConnection(ctx, &PoolConfig{
		URL:            cfg.ConnectionString(),
		MaxConnections: cfg.MaxConnections,
		MinConnections: cfg.MinConnections,
	})
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
