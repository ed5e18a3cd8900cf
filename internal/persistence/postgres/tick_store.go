package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadron/hadron/internal/schema"
)

// TickStore archives normalized ticks. InsertBatch writes an entire batch in
// a single transaction rather than one row per statement, so a recorder
// flush either lands completely or not at all.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore constructs a TickStore backed by the given pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

const tickInsertSQL = `
INSERT INTO ticks (instrument_id, event_time, price, size, venue, tick_kind, source, raw_seq)
VALUES (@instrument_id, @event_time, @price, @size, @venue, @tick_kind, @source, @raw_seq);
`

// InsertBatch persists a batch of ticks transactionally. Empty batches are a
// no-op.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []schema.CanonicalTick) error {
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tick store: begin tx: %w", err)
	}

	batch := &pgx.Batch{}
	for _, t := range ticks {
		var size any
		if t.Size != nil {
			size = t.Size.String()
		}
		batch.Queue(tickInsertSQL, pgx.NamedArgs{
			"instrument_id": t.InstrumentID,
			"event_time":    t.Timestamp,
			"price":         t.Price.String(),
			"size":          size,
			"venue":         t.Venue,
			"tick_kind":     string(t.Kind),
			"source":        string(t.Source),
			"raw_seq":       t.RawSeq,
		})
	}

	br := tx.SendBatch(ctx, batch)
	for range ticks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			_ = tx.Rollback(ctx)
			return fmt.Errorf("tick store: batch insert: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("tick store: close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tick store: commit tx: %w", err)
	}
	return nil
}
