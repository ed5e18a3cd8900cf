package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hadron/hadron/internal/router"
	"github.com/hadron/hadron/internal/schema"
)

type countingStrategy struct {
	mu    sync.Mutex
	calls int
	kinds []schema.TickKind
}

func (s *countingStrategy) ID() string { return "counting" }

func (s *countingStrategy) Evaluate(tick schema.CanonicalTick, state StateSnapshot) *schema.StrategyDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.kinds = append(s.kinds, tick.Kind)
	return nil
}

func (s *countingStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStrategy) firstKind() schema.TickKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.kinds) == 0 {
		return ""
	}
	return s.kinds[0]
}

func waitForCalls(t *testing.T, strat *countingStrategy, want int) {
	t.Helper()
	deadline := time.After(time.Second)
	for strat.callCount() < want {
		select {
		case <-deadline:
			t.Fatalf("expected %d processed ticks, got %d", want, strat.callCount())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestEngineDrainsFastBeforeColdOnContention(t *testing.T) {
	queues := router.NewShardQueues(10, 10, 10)
	decisions := make(chan schema.StrategyDecision, 10)
	strat := &countingStrategy{}
	e := New(0, queues, strat, decisions, nil)

	// Pre-load cold and warm before any fast arrives.
	queues.Cold <- schema.CanonicalTick{InstrumentID: 1, Kind: schema.TickKindBookUpdate, Price: decimal.NewFromInt(1)}
	queues.Warm <- schema.CanonicalTick{InstrumentID: 1, Kind: schema.TickKindQuote, Price: decimal.NewFromInt(1)}
	for i := 0; i < 5; i++ {
		queues.Fast <- schema.CanonicalTick{InstrumentID: 1, Kind: schema.TickKindTrade, Price: decimal.NewFromInt(int64(i))}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	waitForCalls(t, strat, 7)

	if strat.firstKind() != schema.TickKindTrade {
		t.Fatalf("expected a fast tick to be drained first, got %s", strat.firstKind())
	}
}

func TestEngineDrainsWarmBeforeCold(t *testing.T) {
	queues := router.NewShardQueues(10, 10, 10)
	decisions := make(chan schema.StrategyDecision, 10)
	strat := &countingStrategy{}
	e := New(0, queues, strat, decisions, nil)

	// Both lower lanes queued before the engine starts; Warm must win.
	queues.Cold <- schema.CanonicalTick{InstrumentID: 1, Kind: schema.TickKindBookUpdate, Price: decimal.NewFromInt(1)}
	queues.Warm <- schema.CanonicalTick{InstrumentID: 1, Kind: schema.TickKindQuote, Price: decimal.NewFromInt(1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	waitForCalls(t, strat, 2)

	if strat.firstKind() != schema.TickKindQuote {
		t.Fatalf("expected the warm tick to be drained first, got %s", strat.firstKind())
	}
}

func TestEngineUpdatesInstrumentStateAcrossTicks(t *testing.T) {
	queues := router.NewShardQueues(10, 10, 10)
	decisions := make(chan schema.StrategyDecision, 10)
	strat := &countingStrategy{}
	e := New(0, queues, strat, decisions, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	queues.Fast <- schema.CanonicalTick{InstrumentID: 7, Kind: schema.TickKindTrade, Price: decimal.NewFromInt(5)}

	waitForCalls(t, strat, 1)
	cancel()

	state, ok := e.instruments[7]
	if !ok {
		t.Fatalf("expected instrument state to be created for id 7")
	}
	if !state.LastPrice.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected last price 5, got %s", state.LastPrice)
	}
}
