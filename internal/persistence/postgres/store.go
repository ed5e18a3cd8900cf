// Package postgres provides pgx/v5-backed repositories for Hadron's
// instrument directory, order intents/executions, and tick archive.
package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadron/hadron/internal/persistence"
)

// Store bundles the PostgreSQL repositories over a shared connection pool.
type Store struct {
	*persistence.Store

	Instruments *InstrumentStore
	Orders      *OrderStore
	Ticks       *TickStore
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Store:       persistence.NewStore(pool),
		Instruments: NewInstrumentStore(pool),
		Orders:      NewOrderStore(pool),
		Ticks:       NewTickStore(pool),
	}
}
