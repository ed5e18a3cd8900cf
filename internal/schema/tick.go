// Package schema defines the canonical value types that flow through
// Hadron's ingest-to-execution pipeline.
package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which ingest adapter produced a tick.
type Source string

const (
	// SourceEquities identifies the equities/stocks venue ingestor.
	SourceEquities Source = "equities"
	// SourcePredictionMarket identifies the prediction-market venue ingestor.
	SourcePredictionMarket Source = "prediction_market"
)

// AssetClass classifies the kind of instrument a tick refers to.
type AssetClass string

const (
	// AssetClassEquity marks a listed equity/stock instrument.
	AssetClassEquity AssetClass = "equity"
	// AssetClassOther marks an instrument that does not fit a known class,
	// e.g. a prediction-market contract discovered on the fly.
	AssetClassOther AssetClass = "other"
)

// TickKind enumerates the canonical shapes a normalized tick can take. The
// string forms are the exact values written to the ticks table.
type TickKind string

const (
	// TickKindTrade represents an executed trade print.
	TickKindTrade TickKind = "Trade"
	// TickKindQuote represents a best bid/ask (or ticker) update.
	TickKindQuote TickKind = "Quote"
	// TickKindBookUpdate represents an order book delta or snapshot update.
	TickKindBookUpdate TickKind = "BookUpdate"
	// TickKindOther represents a tick that fits no other kind.
	TickKindOther TickKind = "Other"
)

// Priority classifies a tick's routing urgency inside the Engine.
type Priority string

const (
	// PriorityFast is reserved for trade prints — the highest-urgency lane.
	PriorityFast Priority = "fast"
	// PriorityWarm is used for quote/ticker updates.
	PriorityWarm Priority = "warm"
	// PriorityCold is used for book deltas/snapshots and anything else.
	PriorityCold Priority = "cold"
	// PriorityDrop marks a tick that should never reach the Engine.
	PriorityDrop Priority = "drop"
)

// CanonicalTick is the normalized representation of a single market-data
// update, independent of the venue it originated from.
type CanonicalTick struct {
	InstrumentID int64
	Ticker       string
	AssetClass   AssetClass
	Source       Source
	Venue        string
	Kind         TickKind
	Price        decimal.Decimal
	Size         *decimal.Decimal
	Timestamp    time.Time
	RawSeq       uint64
}

// RawEvent is the unparsed payload handed off by an ingestor to the
// normalizer, still tagged with its venue of origin.
type RawEvent struct {
	Source     Source
	Venue      string
	Payload    []byte
	ReceivedAt time.Time
}
