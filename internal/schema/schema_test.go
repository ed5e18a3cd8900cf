package schema

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

func TestCanonicalTickRoundTrip(t *testing.T) {
	size := decimal.RequireFromString("10")
	tick := CanonicalTick{
		InstrumentID: 42,
		Ticker:       "ACME",
		AssetClass:   AssetClassEquity,
		Source:       SourceEquities,
		Kind:         TickKindTrade,
		Price:        decimal.RequireFromString("101.50"),
		Size:         &size,
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		RawSeq:       7,
	}

	data, err := json.Marshal(tick)
	if err != nil {
		t.Fatalf("marshal tick: %v", err)
	}
	var got CanonicalTick
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal tick: %v", err)
	}

	if got.InstrumentID != tick.InstrumentID || got.Ticker != tick.Ticker ||
		got.AssetClass != tick.AssetClass || got.Source != tick.Source ||
		got.Kind != tick.Kind || got.RawSeq != tick.RawSeq {
		t.Fatalf("expected all fields to survive the round trip, got %+v", got)
	}
	if !got.Price.Equal(tick.Price) || got.Price.StringFixed(2) != "101.50" {
		t.Fatalf("expected decimal precision to survive the round trip, got %s", got.Price)
	}
	if got.Size == nil || !got.Size.Equal(size) {
		t.Fatalf("expected size to survive the round trip, got %v", got.Size)
	}
	if !got.Timestamp.Equal(tick.Timestamp) {
		t.Fatalf("expected timestamp to survive the round trip, got %s", got.Timestamp)
	}
}

func TestEnumSerializedForms(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{string(TickKindTrade), "Trade"},
		{string(TickKindQuote), "Quote"},
		{string(TickKindBookUpdate), "BookUpdate"},
		{string(TickKindOther), "Other"},
		{string(OrderSideBuy), "Buy"},
		{string(OrderSideSell), "Sell"},
		{string(OrderTypeMarket), "Market"},
		{string(OrderTypeLimit), "Limit"},
		{string(OrderTypeStop), "Stop"},
		{string(OrderTypeStopLimit), "StopLimit"},
		{string(ExecutionFilled), "Filled"},
		{string(ExecutionPartiallyFilled), "PartiallyFilled"},
		{string(ExecutionRejected), "Rejected"},
		{string(ExecutionCancelled), "Cancelled"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("expected serialized form %q, got %q", c.want, c.got)
		}
	}
}

func TestOrderIntentValidate(t *testing.T) {
	limit := decimal.NewFromInt(5)
	qty := decimal.NewFromInt(10)

	valid := OrderIntent{ID: "a", Type: OrderTypeLimit, LimitPrice: &limit, Quantity: qty}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid intent, got %v", err)
	}

	marketWithLimit := OrderIntent{ID: "b", Type: OrderTypeMarket, LimitPrice: &limit, Quantity: qty}
	if err := marketWithLimit.Validate(); err == nil {
		t.Fatalf("expected market order with limit price to be rejected")
	}

	limitWithout := OrderIntent{ID: "c", Type: OrderTypeLimit, Quantity: qty}
	if err := limitWithout.Validate(); err == nil {
		t.Fatalf("expected limit order without limit price to be rejected")
	}

	negativeQty := OrderIntent{ID: "d", Type: OrderTypeMarket, Quantity: decimal.NewFromInt(-1)}
	if err := negativeQty.Validate(); err == nil {
		t.Fatalf("expected negative quantity to be rejected")
	}
}

func TestOrderIntentDefaultsLimitPriceNil(t *testing.T) {
	intent := OrderIntent{
		ID:           "intent-1",
		InstrumentID: 1,
		Side:         OrderSideBuy,
		Type:         OrderTypeMarket,
		Quantity:     decimal.RequireFromString("10"),
	}
	if intent.LimitPrice != nil {
		t.Fatalf("expected market order to carry no limit price")
	}
	if intent.Type != OrderTypeMarket {
		t.Fatalf("expected market order type")
	}
}
