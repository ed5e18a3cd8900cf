// Package bus implements Hadron's fan-out tick distribution: every
// normalized tick is broadcast to all registered consumers (the Router and
// the Recorder), and a consumer that falls behind is told exactly how many
// ticks it missed instead of silently losing them.
package bus

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hadron/hadron/internal/schema"
	"github.com/hadron/hadron/internal/telemetry"
)

// Lag reports that a consumer's cursor fell behind the ring buffer's
// retained window by n ticks. The consumer has unambiguously missed n
// ticks and may resume reading from the oldest still-retained entry.
type Lag struct {
	Missed uint64
}

func (l Lag) Error() string {
	return fmt.Sprintf("bus: consumer lagged, missed %d ticks", l.Missed)
}

// Bus is a bounded ring-buffer broadcast channel. Publish never blocks on a
// slow consumer: once the ring wraps around a consumer's cursor, that
// consumer's next Recv reports a Lag instead of silently skipping entries.
type Bus struct {
	capacity uint64
	mu       sync.RWMutex
	ring     []entry
	head     uint64 // next write position (monotonic sequence number)
	closed   bool
	closeCh  chan struct{}
	cond     *sync.Cond

	publishedCounter metric.Int64Counter
	lagCounter       metric.Int64Counter
	subscriberGauge  metric.Int64UpDownCounter
}

type entry struct {
	tick schema.CanonicalTick
}

// New constructs a Bus with the given ring capacity. Capacity bounds how far
// a consumer can fall behind before it starts lagging; it does not bound the
// number of consumers.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	b := &Bus{
		capacity: uint64(capacity),
		ring:     make([]entry, capacity),
		closeCh:  make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)

	meter := telemetry.Meter("hadron.bus")
	b.publishedCounter, _ = meter.Int64Counter("hadron_bus_ticks_published_total",
		metric.WithDescription("Ticks published to the fan-out bus"))
	b.lagCounter, _ = meter.Int64Counter("hadron_bus_consumer_lag_total",
		metric.WithDescription("Ticks a consumer skipped due to lag"))
	b.subscriberGauge, _ = meter.Int64UpDownCounter("hadron_bus_subscribers",
		metric.WithDescription("Active bus subscribers"))

	return b
}

// Publish appends a tick to the ring, overwriting the oldest retained entry
// once the buffer is full. Never blocks. The tick's RawSeq is stamped with
// its publication sequence number, so every consumer sees the same ordering
// handle.
func (b *Bus) Publish(tick schema.CanonicalTick) {
	b.mu.Lock()
	tick.RawSeq = b.head
	idx := b.head % b.capacity
	b.ring[idx] = entry{tick: tick}
	b.head++
	b.mu.Unlock()
	b.cond.Broadcast()

	if b.publishedCounter != nil {
		b.publishedCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("environment", telemetry.Environment())))
	}
}

// Close unblocks all waiting consumers and marks the bus closed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Consumer is a named cursor into the bus. Each call to NewConsumer starts
// reading from the current head; a consumer only ever sees ticks published
// after it subscribed.
type Consumer struct {
	bus    *Bus
	name   string
	cursor uint64
}

// NewConsumer registers a new cursor positioned at the bus's current head.
func (b *Bus) NewConsumer(name string) *Consumer {
	b.mu.RLock()
	cursor := b.head
	b.mu.RUnlock()
	if b.subscriberGauge != nil {
		b.subscriberGauge.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("environment", telemetry.Environment()),
			attribute.String("consumer", name)))
	}
	return &Consumer{bus: b, name: name, cursor: cursor}
}

// Recv blocks until the next tick is available, the bus closes, or ctx is
// done. If the consumer's cursor has been overwritten by the ring (it fell
// more than capacity ticks behind), Recv returns a Lag error reporting how
// many ticks were missed and fast-forwards the cursor to the oldest
// retained entry.
func (c *Consumer) Recv(ctx context.Context) (schema.CanonicalTick, error) {
	b := c.bus
	b.mu.Lock()
	for {
		if c.cursor < b.head {
			break
		}
		if b.closed {
			b.mu.Unlock()
			return schema.CanonicalTick{}, fmt.Errorf("bus: closed")
		}
		waitCh := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				b.cond.Broadcast()
			case <-b.closeCh:
			case <-waitCh:
			}
		}()
		b.cond.Wait()
		close(waitCh)
		if err := ctx.Err(); err != nil {
			b.mu.Unlock()
			return schema.CanonicalTick{}, err
		}
	}

	oldestRetained := uint64(0)
	if b.head > b.capacity {
		oldestRetained = b.head - b.capacity
	}
	if c.cursor < oldestRetained {
		missed := oldestRetained - c.cursor
		c.cursor = oldestRetained
		b.mu.Unlock()
		if b.lagCounter != nil {
			b.lagCounter.Add(ctx, int64(missed), metric.WithAttributes(
				attribute.String("environment", telemetry.Environment()),
				attribute.String("consumer", c.name)))
		}
		return schema.CanonicalTick{}, Lag{Missed: missed}
	}

	idx := c.cursor % b.capacity
	e := b.ring[idx]
	c.cursor++
	b.mu.Unlock()
	return e.tick, nil
}
