package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hadron/hadron/internal/engine"
	"github.com/hadron/hadron/internal/schema"
)

func warmedUpState(prices ...string) engine.StateSnapshot {
	s := engine.NewInstrumentState(1)
	for _, p := range prices {
		s.Observe(decimal.RequireFromString(p), time.Now())
	}
	return *s
}

func TestSMA5AbstainsWithoutFullWindow(t *testing.T) {
	sma := NewSMA5()
	state := warmedUpState("148", "149", "150", "151")
	tick := schema.CanonicalTick{InstrumentID: 1, Price: decimal.RequireFromString("150.25")}

	if d := sma.Evaluate(tick, state); d != nil {
		t.Fatalf("expected no decision without a full window, got %+v", d)
	}
}

func TestSMA5NoDecisionWithinBand(t *testing.T) {
	sma := NewSMA5()
	state := warmedUpState("148", "149", "150", "151", "150.25")
	tick := schema.CanonicalTick{InstrumentID: 1, Price: decimal.RequireFromString("150.25")}

	if d := sma.Evaluate(tick, state); d != nil {
		t.Fatalf("expected no decision inside the 1%% band, got %+v", d)
	}
}

func TestSMA5EmitsBuyAboveUpperBand(t *testing.T) {
	sma := NewSMA5()
	state := warmedUpState("100", "100", "100", "100", "100")
	tick := schema.CanonicalTick{InstrumentID: 1, Price: decimal.RequireFromString("102")}

	d := sma.Evaluate(tick, state)
	if d == nil {
		t.Fatalf("expected a buy decision")
	}
	if d.Kind != schema.DecisionBuy {
		t.Fatalf("expected buy, got %s", d.Kind)
	}
	if !d.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected quantity 10, got %s", d.Quantity)
	}
	if d.Confidence != 0.6 {
		t.Fatalf("expected confidence 0.6, got %f", d.Confidence)
	}
}

func TestSMA5EmitsSellBelowLowerBand(t *testing.T) {
	sma := NewSMA5()
	state := warmedUpState("100", "100", "100", "100", "100")
	tick := schema.CanonicalTick{InstrumentID: 1, Price: decimal.RequireFromString("98")}

	d := sma.Evaluate(tick, state)
	if d == nil {
		t.Fatalf("expected a sell decision")
	}
	if d.Kind != schema.DecisionSell {
		t.Fatalf("expected sell, got %s", d.Kind)
	}
}
