package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInstrumentStateMeanNotReadyUntilFivePoints(t *testing.T) {
	s := NewInstrumentState(1)
	for _, p := range []string{"148", "149", "150", "151"} {
		s.Observe(price(p), time.Now())
		if s.MeanReady {
			t.Fatalf("mean should not be ready before 5 points")
		}
	}
}

func TestInstrumentStateMeanAfterFivePoints(t *testing.T) {
	s := NewInstrumentState(1)
	for _, p := range []string{"148", "149", "150", "151", "150.25"} {
		s.Observe(price(p), time.Now())
	}
	if !s.MeanReady {
		t.Fatalf("expected mean to be ready after 5 points")
	}
	want := price("149.65")
	if !s.Mean.Equal(want) {
		t.Fatalf("expected mean %s, got %s", want, s.Mean)
	}
}

func TestInstrumentStateRingEvictsOldest(t *testing.T) {
	s := NewInstrumentState(1)
	for _, p := range []string{"1", "2", "3", "4", "5", "100"} {
		s.Observe(price(p), time.Now())
	}
	// window is now 2,3,4,5,100 -> mean 22.8
	want := price("22.8")
	if !s.Mean.Equal(want) {
		t.Fatalf("expected mean %s after eviction, got %s", want, s.Mean)
	}
}

func TestInstrumentStateTracksLastPriceAndCount(t *testing.T) {
	s := NewInstrumentState(1)
	s.Observe(price("10"), time.Unix(100, 0))
	s.Observe(price("20"), time.Unix(200, 0))
	if !s.LastPrice.Equal(price("20")) {
		t.Fatalf("expected last price 20, got %s", s.LastPrice)
	}
	if s.TickCount != 2 {
		t.Fatalf("expected tick count 2, got %d", s.TickCount)
	}
}
