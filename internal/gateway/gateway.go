// Package gateway realizes order intents, either by simulating a fill or
// (in a future phase) routing to a live venue.
package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hadron/hadron/internal/schema"
)

// referencePrice is the placeholder fill price used in Simulation mode when
// an intent carries no limit price.
var referencePrice = decimal.RequireFromString("100.00")

const simulationVenue = "simulation"

// Mode selects how the Gateway realizes an intent.
type Mode string

const (
	// ModeSimulation fills every intent locally against a reference price.
	ModeSimulation Mode = "simulation"
	// ModeLive is a loud no-op in this phase.
	ModeLive Mode = "live"
)

// OrderStore is the subset of persistence the Gateway depends on.
type OrderStore interface {
	CreateIntent(ctx context.Context, intent schema.OrderIntent) error
	RecordExecution(ctx context.Context, exec schema.OrderExecution) error
}

// Gateway realizes OrderIntents produced by the Coordinator.
type Gateway struct {
	mode   Mode
	store  OrderStore
	logger *log.Logger
}

// New constructs a Gateway in the given mode.
func New(mode Mode, store OrderStore, logger *log.Logger) *Gateway {
	return &Gateway{mode: mode, store: store, logger: logger}
}

func (g *Gateway) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

// Execute realizes a single intent. On a storage error it logs and returns
// nil, nil (the Gateway is expected to continue with the next intent); a
// successful execution is returned for downstream emission.
func (g *Gateway) Execute(ctx context.Context, intent schema.OrderIntent) (*schema.OrderExecution, error) {
	if g.mode == ModeLive {
		g.logf("gateway: LIVE MODE NOT IMPLEMENTED, refusing intent %s", intent.ID)
		return nil, nil
	}

	if err := intent.Validate(); err != nil {
		g.logf("gateway: INVARIANT VIOLATION, rejecting intent: %v", err)
		return nil, nil
	}

	if err := g.store.CreateIntent(ctx, intent); err != nil {
		g.logf("gateway: failed to persist intent %s: %v", intent.ID, err)
		return nil, nil
	}

	fillPrice := referencePrice
	if intent.LimitPrice != nil {
		fillPrice = *intent.LimitPrice
	}

	exec := schema.OrderExecution{
		ID:           uuid.NewString(),
		IntentID:     intent.ID,
		InstrumentID: intent.InstrumentID,
		Venue:        simulationVenue,
		VenueOrderID: fmt.Sprintf("SIM-%s", intent.ID),
		Status:       schema.ExecutionFilled,
		FillPrice:    fillPrice,
		FillQuantity: intent.Quantity,
		ExecutedAt:   time.Now().UTC(),
	}

	if err := g.store.RecordExecution(ctx, exec); err != nil {
		g.logf("gateway: failed to persist execution for intent %s: %v", intent.ID, err)
		return nil, nil
	}

	return &exec, nil
}
