// Package engine implements the per-shard priority-draining loop that
// maintains InstrumentState and invokes the configured strategy.
package engine

import (
	"context"
	"log"

	"github.com/hadron/hadron/internal/router"
	"github.com/hadron/hadron/internal/schema"
)

// StateSnapshot is the read-only view of InstrumentState handed to a
// Strategy: a value copy, never a pointer into live engine state.
type StateSnapshot = InstrumentState

// Strategy is the minimal evaluation contract the Engine depends on.
type Strategy interface {
	ID() string
	Evaluate(tick schema.CanonicalTick, state StateSnapshot) *schema.StrategyDecision
}

// Engine drains one shard's Fast/Warm/Cold queues with strict priority
// preference: as long as Fast has an item available, Warm and Cold are not
// drained. Ordering within a single priority level is FIFO (guaranteed by
// the underlying channels).
type Engine struct {
	shardID     int
	queues      *router.ShardQueues
	strategy    Strategy
	instruments map[int64]*InstrumentState
	decisions   chan<- schema.StrategyDecision
	logger      *log.Logger
}

// New constructs an Engine for one shard. decisions is the (buffered,
// caller-owned) channel decisions are forwarded to; a full channel is
// logged and the decision dropped rather than blocking the drain loop.
func New(shardID int, queues *router.ShardQueues, strategy Strategy, decisions chan<- schema.StrategyDecision, logger *log.Logger) *Engine {
	return &Engine{
		shardID:     shardID,
		queues:      queues,
		strategy:    strategy,
		instruments: make(map[int64]*InstrumentState),
		decisions:   decisions,
		logger:      logger,
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Run drains the shard's queues until ctx is cancelled. The staged polls
// enforce strict preference: Cold is only reachable once both Fast and Warm
// came up empty in the same pass, and every processed tick restarts the pass
// from Fast.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case tick := <-e.queues.Fast:
			e.process(tick)
			continue
		default:
		}

		select {
		case tick := <-e.queues.Fast:
			e.process(tick)
			continue
		case tick := <-e.queues.Warm:
			e.process(tick)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case tick := <-e.queues.Fast:
			e.process(tick)
		case tick := <-e.queues.Warm:
			e.process(tick)
		case tick := <-e.queues.Cold:
			e.process(tick)
		}
	}
}

func (e *Engine) process(tick schema.CanonicalTick) {
	state, ok := e.instruments[tick.InstrumentID]
	if !ok {
		state = NewInstrumentState(tick.InstrumentID)
		e.instruments[tick.InstrumentID] = state
	}
	state.Observe(tick.Price, tick.Timestamp)

	decision := e.strategy.Evaluate(tick, *state)
	if decision == nil {
		return
	}

	select {
	case e.decisions <- *decision:
	default:
		e.logf("engine: shard %d decision channel full, dropping decision for instrument %d", e.shardID, tick.InstrumentID)
	}
}
