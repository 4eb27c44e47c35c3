// Package store implements the Postgres-backed user profile and pending
// message persistence, over a pgxpool.Pool connection pool.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxConnections bounds the database connection pool, shared across every
// operation issued by every connection task.
const MaxConnections = 150

// NewPool creates a connection pool against databaseURL, capped at
// MaxConnections.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = MaxConnections

	return pgxpool.NewWithConfig(ctx, cfg)
}
