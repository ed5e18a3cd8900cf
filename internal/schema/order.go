package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide mirrors a strategy decision's directionality at the order layer.
// The string forms are the exact values written to the order_intents table.
type OrderSide string

const (
	// OrderSideBuy is a buy-side order.
	OrderSideBuy OrderSide = "Buy"
	// OrderSideSell is a sell-side order.
	OrderSideSell OrderSide = "Sell"
)

// OrderType distinguishes how an order is to be priced. Only Market and
// Limit are produced in this phase; Stop and StopLimit are reserved for
// future strategies but persist with these exact forms.
type OrderType string

const (
	// OrderTypeMarket executes at the prevailing market price.
	OrderTypeMarket OrderType = "Market"
	// OrderTypeLimit requires a limit price to be set on the intent.
	OrderTypeLimit OrderType = "Limit"
	// OrderTypeStop triggers a market order once a stop price is touched.
	OrderTypeStop OrderType = "Stop"
	// OrderTypeStopLimit triggers a limit order once a stop price is touched.
	OrderTypeStopLimit OrderType = "StopLimit"
)

// OrderIntent is the Coordinator's projection of a Buy/Sell decision into an
// order the Gateway can attempt to execute.
type OrderIntent struct {
	ID           string
	InstrumentID int64
	StrategyID   string
	Side         OrderSide
	Type         OrderType
	Quantity     decimal.Decimal
	LimitPrice   *decimal.Decimal
	CreatedAt    time.Time
	Metadata     map[string]string
}

// Validate rejects intents that violate the order-shape invariants: a Market
// order must not carry a limit price, a Limit order must, and quantity must
// be strictly positive.
func (i OrderIntent) Validate() error {
	if !i.Quantity.IsPositive() {
		return fmt.Errorf("order intent %s: quantity must be positive, got %s", i.ID, i.Quantity)
	}
	switch i.Type {
	case OrderTypeMarket:
		if i.LimitPrice != nil {
			return fmt.Errorf("order intent %s: market order carries a limit price", i.ID)
		}
	case OrderTypeLimit, OrderTypeStopLimit:
		if i.LimitPrice == nil {
			return fmt.Errorf("order intent %s: %s order missing a limit price", i.ID, i.Type)
		}
	}
	return nil
}

// ExecutionStatus enumerates terminal states for an order execution. The
// string forms are the exact values written to the order_executions table.
type ExecutionStatus string

const (
	// ExecutionFilled marks an order as completely filled.
	ExecutionFilled ExecutionStatus = "Filled"
	// ExecutionPartiallyFilled marks an order filled for part of its quantity.
	ExecutionPartiallyFilled ExecutionStatus = "PartiallyFilled"
	// ExecutionRejected marks an order the Gateway declined to execute.
	ExecutionRejected ExecutionStatus = "Rejected"
	// ExecutionCancelled marks an order cancelled before completion.
	ExecutionCancelled ExecutionStatus = "Cancelled"
)

// OrderExecution is the Gateway's record of what happened to an OrderIntent.
type OrderExecution struct {
	ID           string
	IntentID     string
	InstrumentID int64
	Venue        string
	VenueOrderID string
	Status       ExecutionStatus
	FillPrice    decimal.Decimal
	FillQuantity decimal.Decimal
	ExecutedAt   time.Time
}
