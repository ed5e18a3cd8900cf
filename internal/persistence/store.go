// Package persistence exposes shared wiring for database-backed
// repositories. Concrete implementations live in subpackages (postgres).
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store coordinates database-backed repositories sharing a single pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store backed by the provided pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pgx pool for repository implementations.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Ping reports whether the underlying pool can currently reach Postgres.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("persistence store: no pool configured")
	}
	return s.pool.Ping(ctx)
}
