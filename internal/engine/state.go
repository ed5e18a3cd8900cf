package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// historyDepth bounds the ring of recent priced samples the rolling mean is
// computed over.
const historyDepth = 5

// InstrumentState is owned exclusively by one shard — it is never shared
// across goroutines and therefore needs no internal locking.
type InstrumentState struct {
	InstrumentID  int64
	LastPrice     decimal.Decimal
	LastEventTime time.Time
	TickCount     uint64

	history      [historyDepth]decimal.Decimal
	historyLen   int
	historyNext  int
	Mean         decimal.Decimal
	MeanReady    bool
}

// NewInstrumentState constructs an empty state for a freshly observed
// instrument.
func NewInstrumentState(instrumentID int64) *InstrumentState {
	return &InstrumentState{InstrumentID: instrumentID}
}

// Observe updates last price/time, increments the tick counter, appends the
// new sample to the bounded ring (evicting the oldest once full), and
// recomputes the rolling mean once the ring has exactly N points.
func (s *InstrumentState) Observe(price decimal.Decimal, eventTime time.Time) {
	s.LastPrice = price
	s.LastEventTime = eventTime
	s.TickCount++

	s.history[s.historyNext] = price
	s.historyNext = (s.historyNext + 1) % historyDepth
	if s.historyLen < historyDepth {
		s.historyLen++
	}

	if s.historyLen == historyDepth {
		sum := decimal.Zero
		for _, p := range s.history {
			sum = sum.Add(p)
		}
		s.Mean = sum.Div(decimal.NewFromInt(historyDepth))
		s.MeanReady = true
	}
}
