package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/hadron/hadron/internal/config"
	"github.com/hadron/hadron/internal/schema"
)

// equitiesVenue is the venue tag stamped on every raw event this ingestor
// emits.
const equitiesVenue = "equities_ws"

type equitiesStatusMessage struct {
	Status  string `json:"status,omitempty"`
	Ev      string `json:"ev,omitempty"`
	Message string `json:"message,omitempty"`
}

// EquitiesIngestor maintains one websocket session against the equities
// trade feed: wait for "connected", authenticate, wait for "auth_success",
// subscribe, then stream trade prints.
type EquitiesIngestor struct {
	url        string
	credential config.EquitiesCredential
	tickers    []string
	sink       Sink
	logger     *log.Logger
	control    *rate.Limiter
}

// NewEquitiesIngestor constructs an ingestor for a single credential.
func NewEquitiesIngestor(url string, credential config.EquitiesCredential, tickers []string, sink Sink, logger *log.Logger) *EquitiesIngestor {
	return &EquitiesIngestor{
		url:        url,
		credential: credential,
		tickers:    tickers,
		sink:       sink,
		logger:     logger,
		control:    newControlLimiter(),
	}
}

// Run drives the ingestor's connect/auth/subscribe/stream loop until ctx is
// cancelled, reconnecting on a fixed 5-second floor after any drop.
func (e *EquitiesIngestor) Run(ctx context.Context) {
	sess := &session{
		name:      fmt.Sprintf("equities-%d", e.credential.Slot),
		logger:    e.logger,
		dial:      e.dial,
		onConnect: e.handshake,
		onMessage: e.handleMessage,
	}
	sess.run(ctx)
}

func (e *EquitiesIngestor) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, e.url, nil)
	return conn, err
}

// handshake waits for a "connected" status, sends the auth request, then
// waits for "auth_success" before issuing the subscription.
func (e *EquitiesIngestor) handshake(ctx context.Context, conn *websocket.Conn) error {
	if err := e.awaitStatus(ctx, conn, "connected"); err != nil {
		return fmt.Errorf("await connected: %w", err)
	}

	authMsg, err := json.Marshal(map[string]string{
		"action": "auth",
		"params": e.credential.APIKey,
	})
	if err != nil {
		return fmt.Errorf("marshal auth request: %w", err)
	}
	if err := e.control.Wait(ctx); err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, authMsg); err != nil {
		return fmt.Errorf("write auth request: %w", err)
	}

	if err := e.awaitStatus(ctx, conn, "auth_success"); err != nil {
		return fmt.Errorf("await auth_success: %w", err)
	}

	sub, err := json.Marshal(map[string]string{
		"action": "subscribe",
		"params": e.subscriptionParams(),
	})
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	if err := e.control.Wait(ctx); err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return fmt.Errorf("write subscribe request: %w", err)
	}
	return nil
}

// subscriptionParams renders the comma-joined trade-topic list, one topic
// per ticker.
func (e *EquitiesIngestor) subscriptionParams() string {
	topics := make([]string, len(e.tickers))
	for i, t := range e.tickers {
		topics[i] = "T." + t
	}
	return strings.Join(topics, ",")
}

// awaitStatus blocks reading frames until a message (singly or in an array)
// carries the requested status discriminator.
func (e *EquitiesIngestor) awaitStatus(ctx context.Context, conn *websocket.Conn, status string) error {
	deadline, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(deadline)
		if err != nil {
			return err
		}
		for _, msg := range splitMessages(data) {
			var s equitiesStatusMessage
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			if s.Status == "max_connections" {
				return fmt.Errorf("server refused (max_connections): %w", errSessionTerminal)
			}
			if s.Status == status {
				return nil
			}
		}
	}
}

// handleMessage splits singly/array-framed JSON and forwards each "T"
// discriminated trade print as a RawEvent; everything else is dropped.
func (e *EquitiesIngestor) handleMessage(_ context.Context, _ *websocket.Conn, data []byte) error {
	for _, raw := range splitMessages(data) {
		var msg equitiesStatusMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Status == "max_connections" {
			return fmt.Errorf("server closed session (max_connections): %w", errSessionTerminal)
		}
		if msg.Ev != "T" {
			continue
		}
		e.sink.Publish(schema.RawEvent{
			Source:     schema.SourceEquities,
			Venue:      equitiesVenue,
			Payload:    append([]byte(nil), raw...),
			ReceivedAt: time.Now().UTC(),
		})
	}
	return nil
}

// splitMessages accepts either a single JSON object or a JSON array of
// objects, per the equities feed's framing contract.
func splitMessages(data []byte) []json.RawMessage {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil
		}
		return arr
	}
	return []json.RawMessage{json.RawMessage(data)}
}
