package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionKind enumerates the actions a Strategy can emit for a tick.
type DecisionKind string

const (
	// DecisionBuy requests a buy order be placed.
	DecisionBuy DecisionKind = "buy"
	// DecisionSell requests a sell order be placed.
	DecisionSell DecisionKind = "sell"
	// DecisionHold indicates the strategy considered the tick but chose to
	// take no action this time.
	DecisionHold DecisionKind = "hold"
	// DecisionNoAction indicates the strategy had insufficient state to
	// produce a meaningful decision (e.g. rolling window not yet full).
	DecisionNoAction DecisionKind = "no_action"
)

// StrategyDecision is the pure output of a Strategy evaluating one tick
// against an instrument's rolling state.
type StrategyDecision struct {
	StrategyID   string
	StrategyName string
	InstrumentID int64
	Kind         DecisionKind
	Quantity     decimal.Decimal
	LimitPrice   *decimal.Decimal
	Confidence   float64
	Metadata     map[string]string
	DecidedAt    time.Time
}
