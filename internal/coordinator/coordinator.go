// Package coordinator projects strategy decisions into order intents.
package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/hadron/hadron/internal/schema"
)

// Coordinator converts Buy/Sell decisions into OrderIntents. Hold/NoAction
// decisions produce nothing. Future-phase behavior (multi-strategy merging,
// risk gating) is intentionally not precluded by this shape: Project takes
// one decision at a time and returns at most one intent.
type Coordinator struct{}

// New constructs a Coordinator.
func New() *Coordinator { return &Coordinator{} }

// Project converts a single decision into an OrderIntent. Order type is
// Limit iff the decision carries a limit price, else Market.
func (c *Coordinator) Project(decision schema.StrategyDecision) *schema.OrderIntent {
	var side schema.OrderSide
	switch decision.Kind {
	case schema.DecisionBuy:
		side = schema.OrderSideBuy
	case schema.DecisionSell:
		side = schema.OrderSideSell
	default:
		return nil
	}

	orderType := schema.OrderTypeMarket
	if decision.LimitPrice != nil {
		orderType = schema.OrderTypeLimit
	}

	createdAt := decision.DecidedAt
	if createdAt.IsZero() {
		createdAt = timeNow()
	}

	return &schema.OrderIntent{
		ID:           uuid.NewString(),
		InstrumentID: decision.InstrumentID,
		StrategyID:   decision.StrategyID,
		Side:         side,
		Type:         orderType,
		Quantity:     decision.Quantity,
		LimitPrice:   decision.LimitPrice,
		CreatedAt:    createdAt,
		Metadata:     decision.Metadata,
	}
}

// timeNow exists so tests can observe a stable clock source indirection
// without reaching for a fake time package.
var timeNow = func() time.Time { return time.Now().UTC() }
