// Package normalizer converts venue-specific RawEvents into CanonicalTicks.
package normalizer

import (
	"context"
	"log"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/hadron/hadron/internal/schema"
)

var centDivisor = decimal.NewFromInt(100)

// Directory is the subset of the Instrument Directory a normalizer depends
// on to resolve venue symbols into internal instrument ids.
type Directory interface {
	Resolve(ctx context.Context, ticker string, assetClass schema.AssetClass, source schema.Source) (int64, error)
	ResolveOrCreate(ctx context.Context, ticker string, source schema.Source) (int64, error)
}

// Normalizer dispatches RawEvents to a per-source mapping function and
// produces zero or one CanonicalTick per event. The venue tag is copied onto
// the tick unchanged; it does not select the mapping.
type Normalizer struct {
	directory Directory
	logger    *log.Logger
}

// New constructs a Normalizer backed by the given Instrument Directory.
func New(directory Directory, logger *log.Logger) *Normalizer {
	return &Normalizer{directory: directory, logger: logger}
}

func (n *Normalizer) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

// Normalize converts a single RawEvent into a CanonicalTick. A nil tick with
// a nil error means the event was legitimately skipped (unknown discriminator,
// control message, incomplete shape) — never a pipeline stall.
func (n *Normalizer) Normalize(ctx context.Context, raw schema.RawEvent) (*schema.CanonicalTick, error) {
	switch raw.Source {
	case schema.SourceEquities:
		return n.normalizeEquities(ctx, raw)
	case schema.SourcePredictionMarket:
		return n.normalizePredictionMarket(ctx, raw)
	default:
		n.logf("normalizer: unknown source %q, dropping event", raw.Source)
		return nil, nil
	}
}

type equitiesMessage struct {
	Ev  string   `json:"ev"`
	Sym string   `json:"sym"`
	P   *float64 `json:"p"`
	S   *uint64  `json:"s"`
	T   *int64   `json:"t"`
}

// normalizeEquities maps a raw equities trade print ({"ev":"T", "sym":...,
// "p":..., "s":..., "t":...}) onto a Trade-kind CanonicalTick. Only the "T"
// discriminator is forwarded; everything else is dropped.
func (n *Normalizer) normalizeEquities(ctx context.Context, raw schema.RawEvent) (*schema.CanonicalTick, error) {
	var msg equitiesMessage
	if err := json.Unmarshal(raw.Payload, &msg); err != nil {
		n.logf("normalizer: malformed equities payload: %v", err)
		return nil, nil
	}
	if msg.Ev != "T" {
		return nil, nil
	}
	if msg.Sym == "" || msg.P == nil || msg.T == nil {
		n.logf("normalizer: equities trade missing required fields, dropping")
		return nil, nil
	}
	price := decimal.NewFromFloat(*msg.P)
	if price.IsNegative() {
		n.logf("normalizer: negative equities price %s for %q, dropping", price, msg.Sym)
		return nil, nil
	}

	id, err := n.directory.Resolve(ctx, msg.Sym, schema.AssetClassEquity, schema.SourceEquities)
	if err != nil {
		n.logf("normalizer: equities resolve failed for %q: %v", msg.Sym, err)
		return nil, nil
	}

	var size *decimal.Decimal
	if msg.S != nil {
		v := decimal.NewFromInt(int64(*msg.S))
		size = &v
	}

	sec := *msg.T / int64(time.Second)
	nsec := *msg.T % int64(time.Second)

	return &schema.CanonicalTick{
		InstrumentID: id,
		Ticker:       msg.Sym,
		AssetClass:   schema.AssetClassEquity,
		Source:       schema.SourceEquities,
		Venue:        raw.Venue,
		Kind:         schema.TickKindTrade,
		Price:        price,
		Size:         size,
		Timestamp:    time.Unix(sec, nsec).UTC(),
	}, nil
}

type predictionEnvelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type predictionBody struct {
	MarketTicker string       `json:"market_ticker"`
	Price        *float64     `json:"price"`
	LastPrice    *float64     `json:"last_price"`
	YesBid       *float64     `json:"yes_bid"`
	YesAsk       *float64     `json:"yes_ask"`
	Bid          *float64     `json:"bid"`
	Ask          *float64     `json:"ask"`
	Quantity     *float64     `json:"quantity"`
	Volume       *float64     `json:"volume"`
	Timestamp    *int64       `json:"timestamp"`
	Yes          [][2]float64 `json:"yes"`
	No           [][2]float64 `json:"no"`
}

// normalizePredictionMarket dispatches on the envelope's type/msg.type
// discriminator. Kalshi-shaped payloads carry data either under "data" or
// nested under "msg".
func (n *Normalizer) normalizePredictionMarket(ctx context.Context, raw schema.RawEvent) (*schema.CanonicalTick, error) {
	var env predictionEnvelope
	if err := json.Unmarshal(raw.Payload, &env); err != nil {
		n.logf("normalizer: malformed prediction-market payload: %v", err)
		return nil, nil
	}

	msgType := env.Type
	body := env.Data
	if len(body) == 0 {
		body = env.Msg
	}
	if msgType == "" && len(env.Msg) > 0 {
		var inner struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(env.Msg, &inner)
		msgType = inner.Type
	}

	switch msgType {
	case "ticker":
		return n.normalizeTicker(ctx, raw, body)
	case "trades":
		return n.normalizeTrades(ctx, raw, body)
	case "orderbook_delta", "orderbook_snapshot":
		return n.normalizeOrderbook(ctx, raw, body)
	case "subscribed", "error", "":
		return nil, nil
	default:
		n.logf("normalizer: unknown prediction-market message type %q, dropping", msgType)
		return nil, nil
	}
}

func (n *Normalizer) resolveMarketTicker(ctx context.Context, ticker string) (int64, error) {
	return n.directory.ResolveOrCreate(ctx, ticker, schema.SourcePredictionMarket)
}

func centsToDecimal(cents float64) decimal.Decimal {
	return decimal.NewFromFloat(cents).Div(centDivisor)
}

// normalizeTicker: price precedence is explicit last price, then an explicit
// "price" field, then midpoint of yes-side bid/ask, then midpoint of legacy
// bid/ask. Values are cents.
func (n *Normalizer) normalizeTicker(ctx context.Context, raw schema.RawEvent, body []byte) (*schema.CanonicalTick, error) {
	var b predictionBody
	if err := json.Unmarshal(body, &b); err != nil || b.MarketTicker == "" {
		n.logf("normalizer: missing market_ticker in ticker message")
		return nil, nil
	}

	var priceCents float64
	switch {
	case b.LastPrice != nil:
		priceCents = *b.LastPrice
	case b.Price != nil:
		priceCents = *b.Price
	case b.YesBid != nil && b.YesAsk != nil:
		priceCents = (*b.YesBid + *b.YesAsk) / 2
	case b.Bid != nil && b.Ask != nil:
		priceCents = (*b.Bid + *b.Ask) / 2
	default:
		n.logf("normalizer: no usable price in ticker message for %q", b.MarketTicker)
		return nil, nil
	}
	if priceCents < 0 {
		n.logf("normalizer: negative price %v in ticker message for %q, dropping", priceCents, b.MarketTicker)
		return nil, nil
	}

	id, err := n.resolveMarketTicker(ctx, b.MarketTicker)
	if err != nil {
		n.logf("normalizer: lookup/create failed for %q: %v", b.MarketTicker, err)
		return nil, nil
	}

	var size *decimal.Decimal
	if b.Volume != nil {
		v := decimal.NewFromFloat(*b.Volume)
		size = &v
	}

	return &schema.CanonicalTick{
		InstrumentID: id,
		Ticker:       b.MarketTicker,
		AssetClass:   schema.AssetClassOther,
		Source:       schema.SourcePredictionMarket,
		Venue:        raw.Venue,
		Kind:         schema.TickKindQuote,
		Price:        centsToDecimal(priceCents),
		Size:         size,
		Timestamp:    raw.ReceivedAt,
	}, nil
}

func (n *Normalizer) normalizeTrades(ctx context.Context, raw schema.RawEvent, body []byte) (*schema.CanonicalTick, error) {
	var b predictionBody
	if err := json.Unmarshal(body, &b); err != nil || b.MarketTicker == "" || b.Price == nil {
		n.logf("normalizer: missing required fields in trades message")
		return nil, nil
	}
	if *b.Price < 0 {
		n.logf("normalizer: negative price %v in trades message for %q, dropping", *b.Price, b.MarketTicker)
		return nil, nil
	}

	id, err := n.resolveMarketTicker(ctx, b.MarketTicker)
	if err != nil {
		n.logf("normalizer: lookup/create failed for %q: %v", b.MarketTicker, err)
		return nil, nil
	}

	var size *decimal.Decimal
	if b.Quantity != nil {
		v := decimal.NewFromFloat(*b.Quantity)
		size = &v
	}

	ts := raw.ReceivedAt
	if b.Timestamp != nil {
		ts = time.Unix(*b.Timestamp, 0).UTC()
	}

	return &schema.CanonicalTick{
		InstrumentID: id,
		Ticker:       b.MarketTicker,
		AssetClass:   schema.AssetClassOther,
		Source:       schema.SourcePredictionMarket,
		Venue:        raw.Venue,
		Kind:         schema.TickKindTrade,
		Price:        centsToDecimal(*b.Price),
		Size:         size,
		Timestamp:    ts,
	}, nil
}

func (n *Normalizer) normalizeOrderbook(ctx context.Context, raw schema.RawEvent, body []byte) (*schema.CanonicalTick, error) {
	var b predictionBody
	if err := json.Unmarshal(body, &b); err != nil || b.MarketTicker == "" {
		n.logf("normalizer: missing market_ticker in orderbook message")
		return nil, nil
	}

	bestYes, hasYes := bestFirstCoordinate(b.Yes, true)
	bestNo, hasNo := bestFirstCoordinate(b.No, false)

	var priceCents float64
	switch {
	case hasYes && hasNo:
		priceCents = (bestYes + bestNo) / 2
	case hasYes:
		priceCents = bestYes
	case hasNo:
		priceCents = bestNo
	default:
		n.logf("normalizer: no valid prices in orderbook for %q", b.MarketTicker)
		return nil, nil
	}
	if priceCents < 0 {
		n.logf("normalizer: negative price %v in orderbook for %q, dropping", priceCents, b.MarketTicker)
		return nil, nil
	}

	id, err := n.resolveMarketTicker(ctx, b.MarketTicker)
	if err != nil {
		n.logf("normalizer: lookup/create failed for %q: %v", b.MarketTicker, err)
		return nil, nil
	}

	return &schema.CanonicalTick{
		InstrumentID: id,
		Ticker:       b.MarketTicker,
		AssetClass:   schema.AssetClassOther,
		Source:       schema.SourcePredictionMarket,
		Venue:        raw.Venue,
		Kind:         schema.TickKindBookUpdate,
		Price:        centsToDecimal(priceCents),
		Timestamp:    raw.ReceivedAt,
	}, nil
}

// bestFirstCoordinate returns the max (yes side) or min (no side) of each
// order's first coordinate (price in cents).
func bestFirstCoordinate(orders [][2]float64, max bool) (float64, bool) {
	if len(orders) == 0 {
		return 0, false
	}
	best := orders[0][0]
	for _, o := range orders[1:] {
		if max && o[0] > best {
			best = o[0]
		}
		if !max && o[0] < best {
			best = o[0]
		}
	}
	return best, true
}
