// Package strategy defines the pure strategy-evaluation contract and the
// reference SMA-5 crossover strategy.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hadron/hadron/internal/engine"
	"github.com/hadron/hadron/internal/schema"
)

// Strategy evaluates a tick against the current instrument state snapshot
// and optionally produces a decision. Implementations must be pure with
// respect to their inputs — no hidden I/O on the hot path.
type Strategy interface {
	ID() string
	Name() string
	Evaluate(tick schema.CanonicalTick, state engine.StateSnapshot) *schema.StrategyDecision
}

var (
	buyThreshold  = decimal.RequireFromString("1.01")
	sellThreshold = decimal.RequireFromString("0.99")
	referenceQty  = decimal.NewFromInt(10)
)

const referenceConfidence = 0.6

// SMA5 is the reference strategy: buy when price exceeds the 5-point mean
// by more than 1%, sell when it falls short by more than 1%, otherwise emit
// no decision.
type SMA5 struct{}

// NewSMA5 constructs the reference SMA-5 crossover strategy.
func NewSMA5() *SMA5 { return &SMA5{} }

// ID returns the strategy's stable identifier.
func (SMA5) ID() string { return "sma5-crossover" }

// Name returns the strategy's human-readable name.
func (SMA5) Name() string { return "SMA-5 Crossover" }

// Evaluate requires a populated 5-point mean; without one it abstains.
func (s SMA5) Evaluate(tick schema.CanonicalTick, state engine.StateSnapshot) *schema.StrategyDecision {
	if !state.MeanReady {
		return nil
	}

	upper := state.Mean.Mul(buyThreshold)
	lower := state.Mean.Mul(sellThreshold)

	var kind schema.DecisionKind
	switch {
	case tick.Price.GreaterThan(upper):
		kind = schema.DecisionBuy
	case tick.Price.LessThan(lower):
		kind = schema.DecisionSell
	default:
		return nil
	}

	confidence := referenceConfidence
	return &schema.StrategyDecision{
		StrategyID:   s.ID(),
		StrategyName: s.Name(),
		InstrumentID: tick.InstrumentID,
		Kind:         kind,
		Quantity:     referenceQty,
		Confidence:   confidence,
		Metadata: map[string]string{
			"price":   tick.Price.String(),
			"mean":    state.Mean.String(),
			"counter": decimal.NewFromInt(int64(state.TickCount)).String(),
		},
		DecidedAt: time.Now().UTC(),
	}
}
