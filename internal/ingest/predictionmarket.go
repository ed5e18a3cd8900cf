package ingest

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/hadron/hadron/internal/config"
	"github.com/hadron/hadron/internal/schema"
)

// predictionMarketVenue is the venue tag stamped on every raw event this
// ingestor emits.
const predictionMarketVenue = "prediction_market_ws"

// PredictionMarketIngestor maintains a signed websocket session against the
// prediction-market feed.
type PredictionMarketIngestor struct {
	wsURL      string
	path       string
	credential config.PredictionMarketCredential
	signingKey *rsa.PrivateKey
	sink       Sink
	logger     *log.Logger
	control    *rate.Limiter
}

// NewPredictionMarketIngestor loads the credential's private key and
// constructs an ingestor. The HTTP request path the signature covers is
// taken from wsURL.
func NewPredictionMarketIngestor(wsURL string, credential config.PredictionMarketCredential, sink Sink, logger *log.Logger) (*PredictionMarketIngestor, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	key, err := loadPrivateKey(credential.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing key for slot %d: %w", credential.Slot, err)
	}
	return &PredictionMarketIngestor{
		wsURL:      wsURL,
		path:       parsed.Path,
		credential: credential,
		signingKey: key,
		sink:       sink,
		logger:     logger,
		control:    newControlLimiter(),
	}, nil
}

// loadPrivateKey accepts either of the two standard unencrypted private-key
// PEM envelopes: PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY").
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

// sign computes an RSA-PSS-SHA256 signature (with a randomized salt) over
// timestamp || "GET" || path, per the venue's upgrade-request contract.
func (p *PredictionMarketIngestor) sign(timestampMillis string) (string, error) {
	message := timestampMillis + "GET" + p.path
	digest := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, p.signingKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Run drives the connect/auth/subscribe/stream loop until ctx is cancelled.
func (p *PredictionMarketIngestor) Run(ctx context.Context) {
	sess := &session{
		name:      fmt.Sprintf("prediction-market-%d", p.credential.Slot),
		logger:    p.logger,
		dial:      p.dial,
		onConnect: p.handshake,
		onMessage: p.handleMessage,
	}
	sess.run(ctx)
}

func (p *PredictionMarketIngestor) dial(ctx context.Context) (*websocket.Conn, error) {
	timestampMillis := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature, err := p.sign(timestampMillis)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("KALSHI-ACCESS-KEY", p.credential.APIKey)
	header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	header.Set("KALSHI-ACCESS-TIMESTAMP", timestampMillis)

	conn, _, err := websocket.Dial(ctx, p.wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (p *PredictionMarketIngestor) handshake(ctx context.Context, conn *websocket.Conn) error {
	sub, err := json.Marshal(map[string]any{
		"id": 1,
		"cmd": "subscribe",
		"params": map[string]any{
			"channels": []string{"ticker"},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	if err := p.control.Wait(ctx); err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return fmt.Errorf("write subscribe request: %w", err)
	}
	return nil
}

type predictionMarketEnvelope struct {
	Type string `json:"type"`
}

var allowedPredictionTypes = map[string]bool{
	"ticker":             true,
	"orderbook_delta":    true,
	"orderbook_snapshot": true,
	"trades":             true,
}

func (p *PredictionMarketIngestor) handleMessage(_ context.Context, _ *websocket.Conn, data []byte) error {
	var env predictionMarketEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if !allowedPredictionTypes[env.Type] {
		if env.Type != "subscribed" && env.Type != "" && p.logger != nil {
			p.logger.Printf("ingest[prediction-market-%d]: ignoring message type %q", p.credential.Slot, env.Type)
		}
		return nil
	}

	p.sink.Publish(schema.RawEvent{
		Source:     schema.SourcePredictionMarket,
		Venue:      predictionMarketVenue,
		Payload:    append([]byte(nil), data...),
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}
