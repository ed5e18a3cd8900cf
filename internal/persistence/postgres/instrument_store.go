package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadron/hadron/internal/schema"
)

// InstrumentStore resolves and persists the canonical instrument catalogue.
type InstrumentStore struct {
	pool *pgxpool.Pool
}

// NewInstrumentStore constructs an InstrumentStore backed by the given pool.
func NewInstrumentStore(pool *pgxpool.Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

const (
	lookupInstrumentSQL = `
SELECT id FROM instruments
WHERE ticker = @ticker AND asset_class = @asset_class AND source = @source AND status = 'active'
LIMIT 1;
`

	lookupInstrumentCaseInsensitiveSQL = `
SELECT id FROM instruments
WHERE ticker ILIKE @ticker AND asset_class = @asset_class AND source = @source AND status = 'active'
LIMIT 1;
`

	upsertInstrumentSQL = `
INSERT INTO instruments (ticker, display_name, asset_class, source, status, created_at, updated_at)
VALUES (@ticker, @display_name, @asset_class, @source, 'active', NOW(), NOW())
ON CONFLICT (ticker, asset_class, source) DO UPDATE SET
    status = 'active',
    updated_at = NOW()
RETURNING id;
`
)

// displayName derives the human-readable name recorded alongside a created
// instrument.
func displayName(ticker string, source schema.Source) string {
	if source == schema.SourcePredictionMarket {
		return "Prediction Market: " + ticker
	}
	return ticker
}

// LookupOrCreate resolves an instrument's numeric id by its full identity
// triple, inserting a new active record if none exists yet. The upsert keys
// on the (ticker, asset_class, source) unique constraint, so a concurrent
// create of the same triple converges on one id.
func (s *InstrumentStore) LookupOrCreate(ctx context.Context, ticker string, assetClass schema.AssetClass, source schema.Source) (int64, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return 0, fmt.Errorf("instrument store: ticker required")
	}
	if assetClass == "" {
		assetClass = schema.AssetClassOther
	}

	var id int64
	row := s.pool.QueryRow(ctx, lookupInstrumentSQL, pgx.NamedArgs{
		"ticker":      ticker,
		"asset_class": string(assetClass),
		"source":      string(source),
	})
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}

	row = s.pool.QueryRow(ctx, upsertInstrumentSQL, pgx.NamedArgs{
		"ticker":       ticker,
		"display_name": displayName(ticker, source),
		"asset_class":  string(assetClass),
		"source":       string(source),
	})
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("instrument store: upsert instrument: %w", err)
	}
	return id, nil
}

// Lookup implements the strict equities resolve contract: an exact ticker
// match first, then a case-insensitive match, without creating a missing
// entry. The bool return reports whether an instrument was found; a query
// failure other than "no rows" is returned as an error.
func (s *InstrumentStore) Lookup(ctx context.Context, ticker string, assetClass schema.AssetClass, source schema.Source) (int64, bool, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return 0, false, fmt.Errorf("instrument store: ticker required")
	}

	var id int64
	row := s.pool.QueryRow(ctx, lookupInstrumentSQL, pgx.NamedArgs{
		"ticker":      ticker,
		"asset_class": string(assetClass),
		"source":      string(source),
	})
	if err := row.Scan(&id); err == nil {
		return id, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("instrument store: lookup instrument: %w", err)
	}

	row = s.pool.QueryRow(ctx, lookupInstrumentCaseInsensitiveSQL, pgx.NamedArgs{
		"ticker":      ticker,
		"asset_class": string(assetClass),
		"source":      string(source),
	})
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("instrument store: lookup instrument: %w", err)
	}
	return id, true, nil
}
