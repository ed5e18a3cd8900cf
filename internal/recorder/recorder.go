// Package recorder durably captures the canonical tick stream in batched,
// transactional writes and observes executions for logging.
package recorder

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hadron/hadron/internal/bus"
	"github.com/hadron/hadron/internal/schema"
	"github.com/hadron/hadron/internal/telemetry"
)

// defaultBatchSize is the flush-on-count threshold: flush when the buffer
// reaches this many ticks.
const defaultBatchSize = 100

// defaultFlushInterval is the periodic timer fallback: flush every 5
// seconds even if the batch hasn't filled.
const defaultFlushInterval = 5 * time.Second

// maxFlushAttempts bounds how many times a failed batch is retained for
// retry before it is dropped.
const maxFlushAttempts = 3

// TickStore is the subset of persistence the Recorder depends on.
type TickStore interface {
	InsertBatch(ctx context.Context, ticks []schema.CanonicalTick) error
}

// Consumer is the subset of bus.Consumer the Recorder depends on, allowing
// tests to substitute a fake.
type Consumer interface {
	Recv(ctx context.Context) (schema.CanonicalTick, error)
}

// Recorder buffers ticks and flushes them transactionally, either when the
// buffer reaches batchSize or when the flush timer elapses, whichever comes
// first.
type Recorder struct {
	store         TickStore
	consumer      Consumer
	batchSize     int
	flushInterval time.Duration
	logger        *log.Logger

	buffer        []schema.CanonicalTick
	flushFailures int

	flushedCounter metric.Int64Counter
	droppedCounter metric.Int64Counter
}

// Option configures a Recorder at construction.
type Option func(*Recorder)

// WithBatchSize overrides the default flush-on-count threshold.
func WithBatchSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithFlushInterval overrides the default flush-on-timer interval.
func WithFlushInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// New constructs a Recorder reading from consumer and persisting via store.
func New(store TickStore, consumer Consumer, logger *log.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		store:         store,
		consumer:      consumer,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := telemetry.Meter("hadron.recorder")
	r.flushedCounter, _ = meter.Int64Counter("hadron_recorder_ticks_flushed_total",
		metric.WithDescription("Ticks durably written by the recorder"))
	r.droppedCounter, _ = meter.Int64Counter("hadron_recorder_ticks_dropped_total",
		metric.WithDescription("Ticks dropped after exhausting flush retries"))

	return r
}

func (r *Recorder) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// ObserveExecution logs an execution for the stream record. Persistence is
// owned by the Gateway; the recorder never writes executions itself.
func (r *Recorder) ObserveExecution(exec schema.OrderExecution) {
	r.logf("recorder: execution %s intent=%s instrument=%d status=%s price=%s qty=%s venue=%s",
		exec.ID, exec.IntentID, exec.InstrumentID, exec.Status, exec.FillPrice, exec.FillQuantity, exec.Venue)
}

// Run consumes ticks until ctx is cancelled or the upstream bus closes,
// flushing on batch-size or timer, whichever comes first, and performing a
// final flush before exiting.
func (r *Recorder) Run(ctx context.Context) {
	timer := time.NewTimer(r.flushInterval)
	defer timer.Stop()

	type recvResult struct {
		tick schema.CanonicalTick
		err  error
	}
	results := make(chan recvResult)

	go func() {
		for {
			tick, err := r.consumer.Recv(ctx)
			select {
			case results <- recvResult{tick: tick, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && ctx.Err() == nil {
				var lag bus.Lag
				if !asLag(err, &lag) {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.flush(context.Background())
			return
		case res := <-results:
			if res.err != nil {
				var lag bus.Lag
				if asLag(res.err, &lag) {
					r.logf("recorder: lagging consumer skipped %d ticks", lag.Missed)
					continue
				}
				r.logf("recorder: upstream closed (%v), performing final flush", res.err)
				r.flush(context.Background())
				return
			}
			r.buffer = append(r.buffer, res.tick)
			if len(r.buffer) >= r.batchSize {
				r.flush(ctx)
				resetTimer(timer, r.flushInterval)
			}
		case <-timer.C:
			r.flush(ctx)
			timer.Reset(r.flushInterval)
		}
	}
}

// flush writes the buffered batch in one transaction. A failed batch is
// retained for retry on the next flush trigger, up to maxFlushAttempts, then
// dropped with a loud error so the recorder can never wedge on a poisoned
// batch.
func (r *Recorder) flush(ctx context.Context) {
	if len(r.buffer) == 0 {
		return
	}
	batch := r.buffer
	if err := r.store.InsertBatch(ctx, batch); err != nil {
		r.flushFailures++
		if r.flushFailures >= maxFlushAttempts {
			r.logf("recorder: DROPPING %d ticks after %d failed flush attempts: %v", len(batch), r.flushFailures, err)
			r.count(r.droppedCounter, len(batch))
			r.buffer = nil
			r.flushFailures = 0
			return
		}
		r.logf("recorder: flush failed for %d ticks (attempt %d/%d), retaining batch: %v",
			len(batch), r.flushFailures, maxFlushAttempts, err)
		return
	}
	r.count(r.flushedCounter, len(batch))
	r.buffer = nil
	r.flushFailures = 0
}

func (r *Recorder) count(counter metric.Int64Counter, n int) {
	if counter == nil {
		return
	}
	counter.Add(context.Background(), int64(n), metric.WithAttributes(
		attribute.String("environment", telemetry.Environment())))
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func asLag(err error, target *bus.Lag) bool {
	l, ok := err.(bus.Lag)
	if ok {
		*target = l
	}
	return ok
}
