package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hadron/hadron/internal/schema"
)

type fakeStore struct {
	createErr  error
	recordErr  error
	intents    []schema.OrderIntent
	executions []schema.OrderExecution
}

func (f *fakeStore) CreateIntent(_ context.Context, intent schema.OrderIntent) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.intents = append(f.intents, intent)
	return nil
}

func (f *fakeStore) RecordExecution(_ context.Context, exec schema.OrderExecution) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.executions = append(f.executions, exec)
	return nil
}

func TestExecuteSimulatesFillAtReferencePrice(t *testing.T) {
	store := &fakeStore{}
	g := New(ModeSimulation, store, nil)

	intent := schema.OrderIntent{ID: "intent-1", InstrumentID: 1, Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Quantity: decimal.NewFromInt(10)}
	exec, err := g.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec == nil {
		t.Fatalf("expected an execution")
	}
	if !exec.FillPrice.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected reference price fill, got %s", exec.FillPrice)
	}
	if exec.VenueOrderID != "SIM-intent-1" {
		t.Fatalf("expected deterministic venue order id, got %s", exec.VenueOrderID)
	}
	if exec.Status != schema.ExecutionFilled {
		t.Fatalf("expected filled status, got %s", exec.Status)
	}
	if len(store.intents) != 1 || len(store.executions) != 1 {
		t.Fatalf("expected exactly one persisted intent and execution")
	}
}

func TestExecuteFillsAtLimitPriceWhenPresent(t *testing.T) {
	store := &fakeStore{}
	g := New(ModeSimulation, store, nil)

	limit := decimal.NewFromInt(55)
	intent := schema.OrderIntent{ID: "intent-2", Side: schema.OrderSideSell, Type: schema.OrderTypeLimit, LimitPrice: &limit, Quantity: decimal.NewFromInt(1)}

	exec, err := g.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exec.FillPrice.Equal(limit) {
		t.Fatalf("expected fill at limit price, got %s", exec.FillPrice)
	}
}

func TestExecuteAbortsOnIntentPersistFailure(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	g := New(ModeSimulation, store, nil)

	intent := schema.OrderIntent{ID: "intent-3", Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Quantity: decimal.NewFromInt(10)}
	exec, err := g.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("expected no error returned, got %v", err)
	}
	if exec != nil {
		t.Fatalf("expected no execution on a storage failure")
	}
	if len(store.executions) != 0 {
		t.Fatalf("expected no execution to be recorded")
	}
}

func TestExecuteRejectsInvariantViolations(t *testing.T) {
	limit := decimal.NewFromInt(100)
	cases := []struct {
		name   string
		intent schema.OrderIntent
	}{
		{"market with limit price", schema.OrderIntent{ID: "bad-1", Type: schema.OrderTypeMarket, LimitPrice: &limit, Quantity: decimal.NewFromInt(1)}},
		{"limit without limit price", schema.OrderIntent{ID: "bad-2", Type: schema.OrderTypeLimit, Quantity: decimal.NewFromInt(1)}},
		{"non-positive quantity", schema.OrderIntent{ID: "bad-3", Type: schema.OrderTypeMarket, Quantity: decimal.Zero}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			g := New(ModeSimulation, store, nil)
			exec, err := g.Execute(context.Background(), tc.intent)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exec != nil {
				t.Fatalf("expected rejected intent to produce no execution")
			}
			if len(store.intents) != 0 {
				t.Fatalf("expected rejected intent to never be persisted")
			}
		})
	}
}

func TestExecuteLiveModeIsNoOp(t *testing.T) {
	store := &fakeStore{}
	g := New(ModeLive, store, nil)

	exec, err := g.Execute(context.Background(), schema.OrderIntent{ID: "intent-4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec != nil {
		t.Fatalf("expected no execution in live mode")
	}
	if len(store.intents) != 0 {
		t.Fatalf("expected live mode to never persist")
	}
}
