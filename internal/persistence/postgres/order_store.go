package postgres

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadron/hadron/internal/schema"
)

// OrderStore persists order intents and their simulated executions.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore constructs an OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const (
	intentInsertSQL = `
INSERT INTO order_intents (
    id, instrument_id, strategy_id, side, order_type, quantity, limit_price, timestamp, metadata
) VALUES (
    @id, @instrument_id, @strategy_id, @side, @order_type, @quantity, @limit_price, @timestamp, @metadata
)
ON CONFLICT (id) DO NOTHING;
`

	executionInsertSQL = `
INSERT INTO order_executions (
    id, intent_id, instrument_id, venue, venue_order_id, status, fill_price, fill_quantity, executed_at
) VALUES (
    @id, @intent_id, @instrument_id, @venue, @venue_order_id, @status, @fill_price, @fill_quantity, @executed_at
)
ON CONFLICT (id) DO NOTHING;
`
)

// CreateIntent persists an order intent produced by the Coordinator. It is
// idempotent: retrying with the same intent ID is a no-op.
func (s *OrderStore) CreateIntent(ctx context.Context, intent schema.OrderIntent) error {
	var limitPrice any
	if intent.LimitPrice != nil {
		limitPrice = intent.LimitPrice.String()
	}
	metadata, err := json.Marshal(intent.Metadata)
	if err != nil {
		return fmt.Errorf("order store: marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, intentInsertSQL, pgx.NamedArgs{
		"id":            intent.ID,
		"instrument_id": intent.InstrumentID,
		"strategy_id":   intent.StrategyID,
		"side":          string(intent.Side),
		"order_type":    string(intent.Type),
		"quantity":      intent.Quantity.String(),
		"limit_price":   limitPrice,
		"timestamp":     intent.CreatedAt,
		"metadata":      metadata,
	})
	if err != nil {
		return fmt.Errorf("order store: insert intent: %w", err)
	}
	return nil
}

// RecordExecution persists the Gateway's simulated (or live) execution for
// an intent. Idempotent on execution ID.
func (s *OrderStore) RecordExecution(ctx context.Context, exec schema.OrderExecution) error {
	_, err := s.pool.Exec(ctx, executionInsertSQL, pgx.NamedArgs{
		"id":             exec.ID,
		"intent_id":      exec.IntentID,
		"instrument_id":  exec.InstrumentID,
		"venue":          exec.Venue,
		"venue_order_id": exec.VenueOrderID,
		"status":         string(exec.Status),
		"fill_price":     exec.FillPrice.String(),
		"fill_quantity":  exec.FillQuantity.String(),
		"executed_at":    exec.ExecutedAt,
	})
	if err != nil {
		return fmt.Errorf("order store: insert execution: %w", err)
	}
	return nil
}
