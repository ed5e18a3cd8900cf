// Package router classifies canonical ticks by priority and assigns each to
// a shard via a deterministic hash of its instrument id.
package router

import (
	"context"
	"hash/fnv"
	"log"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hadron/hadron/internal/schema"
	"github.com/hadron/hadron/internal/telemetry"
)

// Classify maps a tick's kind onto a routing priority: Trade ticks are Fast,
// Quote ticks are Warm, everything else (including BookUpdate) is Cold.
func Classify(kind schema.TickKind) schema.Priority {
	switch kind {
	case schema.TickKindTrade:
		return schema.PriorityFast
	case schema.TickKindQuote:
		return schema.PriorityWarm
	default:
		return schema.PriorityCold
	}
}

// ShardFor returns the shard index a given instrument id is pinned to for
// the configured shard count. The mapping is deterministic: the same
// instrument always resolves to the same shard.
func ShardFor(instrumentID int64, shardCount int) int {
	if shardCount <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.FormatInt(instrumentID, 10)))
	return int(h.Sum64() % uint64(shardCount))
}

// ShardQueues holds the three bounded, priority-ordered channels a single
// shard's Engine drains from.
type ShardQueues struct {
	Fast chan schema.CanonicalTick
	Warm chan schema.CanonicalTick
	Cold chan schema.CanonicalTick
}

// Default queue capacities: Fast greatly exceeds Cold so a fast-moving
// trade stream is never starved behind slow-moving book deltas.
const (
	DefaultFastCapacity = 10_000
	DefaultWarmCapacity = 1_000
	DefaultColdCapacity = 100
)

// NewShardQueues allocates a ShardQueues with the given capacities; zero or
// negative values fall back to the defaults.
func NewShardQueues(fastCap, warmCap, coldCap int) *ShardQueues {
	if fastCap <= 0 {
		fastCap = DefaultFastCapacity
	}
	if warmCap <= 0 {
		warmCap = DefaultWarmCapacity
	}
	if coldCap <= 0 {
		coldCap = DefaultColdCapacity
	}
	return &ShardQueues{
		Fast: make(chan schema.CanonicalTick, fastCap),
		Warm: make(chan schema.CanonicalTick, warmCap),
		Cold: make(chan schema.CanonicalTick, coldCap),
	}
}

// Router dispatches ticks from the Fan-out Bus into per-shard priority
// queues, dropping a tick (with a log) rather than ever blocking on a full
// Warm or Cold queue. A full Fast queue is logged loudly, since losing Fast
// ticks degrades correctness.
type Router struct {
	shards []*ShardQueues
	logger *log.Logger

	routedCounter  metric.Int64Counter
	droppedCounter metric.Int64Counter
}

// New constructs a Router over the given per-shard queue set.
func New(shards []*ShardQueues, logger *log.Logger) *Router {
	r := &Router{shards: shards, logger: logger}

	meter := telemetry.Meter("hadron.router")
	r.routedCounter, _ = meter.Int64Counter("hadron_router_ticks_routed_total",
		metric.WithDescription("Ticks routed into per-shard priority queues"))
	r.droppedCounter, _ = meter.Int64Counter("hadron_router_ticks_dropped_total",
		metric.WithDescription("Ticks dropped on a full priority queue"))

	return r
}

func (r *Router) recordRouted(priority schema.Priority, shard int) {
	if r.routedCounter == nil {
		return
	}
	r.routedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("environment", telemetry.Environment()),
		attribute.String("priority", string(priority)),
		attribute.Int("shard", shard)))
}

func (r *Router) recordDropped(priority schema.Priority, shard int) {
	if r.droppedCounter == nil {
		return
	}
	r.droppedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("environment", telemetry.Environment()),
		attribute.String("priority", string(priority)),
		attribute.Int("shard", shard)))
}

func (r *Router) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// Route classifies tick, assigns it to a shard, and attempts a non-blocking
// send into that shard's appropriate priority queue.
func (r *Router) Route(tick schema.CanonicalTick) {
	priority := Classify(tick.Kind)
	if priority == schema.PriorityDrop {
		return
	}

	shardIdx := ShardFor(tick.InstrumentID, len(r.shards))
	if shardIdx < 0 || shardIdx >= len(r.shards) {
		r.logf("router: no shard available for instrument %d, dropping tick", tick.InstrumentID)
		return
	}
	q := r.shards[shardIdx]

	switch priority {
	case schema.PriorityFast:
		select {
		case q.Fast <- tick:
			r.recordRouted(priority, shardIdx)
		default:
			r.logf("router: FAST QUEUE FULL on shard %d, dropping tick for instrument %d", shardIdx, tick.InstrumentID)
			r.recordDropped(priority, shardIdx)
		}
	case schema.PriorityWarm:
		select {
		case q.Warm <- tick:
			r.recordRouted(priority, shardIdx)
		default:
			r.logf("router: warm queue full on shard %d, dropping tick for instrument %d", shardIdx, tick.InstrumentID)
			r.recordDropped(priority, shardIdx)
		}
	case schema.PriorityCold:
		select {
		case q.Cold <- tick:
			r.recordRouted(priority, shardIdx)
		default:
			r.logf("router: cold queue full on shard %d, dropping tick for instrument %d", shardIdx, tick.InstrumentID)
			r.recordDropped(priority, shardIdx)
		}
	}
}
