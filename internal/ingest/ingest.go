// Package ingest maintains durable outbound websocket sessions to market
// venues, authenticates, subscribes, and emits raw events for the
// normalizer to consume.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/hadron/hadron/internal/schema"
)

// reconnectFloor is the fixed backoff applied between reconnect attempts.
const reconnectFloor = 5 * time.Second

const (
	dialTimeout = 10 * time.Second
	readLimit   = 2 * 1024 * 1024
)

// controlInterval paces outbound control messages (auth, subscribe) so a
// reconnect storm cannot burst requests at a venue.
const controlInterval = 250 * time.Millisecond

func newControlLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(controlInterval), 1)
}

// errSessionTerminal marks a failure the session must not reconnect from,
// e.g. the server refusing the connection slot outright.
var errSessionTerminal = errors.New("session terminal")

// Sink receives raw events produced by an ingestor. The Normalizer
// implements this indirectly via an adapter in cmd/hadron that normalizes
// each event synchronously inside Publish.
type Sink interface {
	Publish(raw schema.RawEvent)
}

// session is the common state machine every ingestor drives: dial, run a
// venue-specific handshake, subscribe, then stream until the connection
// drops, at which point the fixed backoff applies before reconnecting.
type session struct {
	name      string
	dial      func(ctx context.Context) (*websocket.Conn, error)
	onConnect func(ctx context.Context, conn *websocket.Conn) error
	onMessage func(ctx context.Context, conn *websocket.Conn, data []byte) error
	logger    *log.Logger
}

func (s *session) run(ctx context.Context) {
	b := backoff.NewConstantBackOff(reconnectFloor)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, errSessionTerminal) {
				s.logf("session terminated by server, not reconnecting: %v", err)
				return
			}
			s.logf("connection lost: %v", err)
		}

		sleep := b.NextBackOff()
		if sleep == backoff.Stop {
			sleep = reconnectFloor
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (s *session) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf("ingest[%s]: "+format, append([]any{s.name}, args...)...)
	}
}

func (s *session) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := s.dial(dialCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	conn.SetReadLimit(readLimit)

	if err := s.onConnect(ctx, conn); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}

		// conn.Read answers server pings transparently; server pongs are
		// discarded without surfacing here.
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := s.onMessage(ctx, conn, data); err != nil {
			if errors.Is(err, errSessionTerminal) {
				return err
			}
			s.logf("message handling error: %v", err)
		}
	}
}
