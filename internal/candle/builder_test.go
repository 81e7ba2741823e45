package candle

import (
	"testing"

	"cryptoscreener/internal/model"
)

func testSymbol() model.Symbol {
	return model.Symbol{Base: "BTC", Quote: "USDT", Market: model.MarketSpot}
}

func TestUpdateTracksHighLowClose(t *testing.T) {
	b := New(testSymbol())
	b.Update(0, 100, 0)
	b.Update(10, 110, 0)
	b.Update(20, 90, 0)
	b.Update(30, 105, 0)

	c := b.Finalize(0)
	if c == nil || c.Close != 105 {
		t.Fatalf("minute 0 still forming, Finalize should return the current candle, got %+v", c)
	}

	b.Update(65, 106, 0) // rolls into minute 60, closing minute 0
	closed := b.Finalize(0)
	if closed == nil {
		t.Fatal("expected minute 0 candle after rollover")
	}
	if closed.Open != 100 || closed.High != 110 || closed.Low != 90 || closed.Close != 105 {
		t.Errorf("unexpected OHLC: %+v", closed)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	b := New(testSymbol())
	b.Update(0, 100, 0)
	b.Update(65, 200, 0)

	a := b.Finalize(0)
	c := b.Finalize(0)
	if *a != *c {
		t.Errorf("Finalize not idempotent: %+v != %+v", a, c)
	}
}

func TestFinalizeUnknownMinuteReturnsNil(t *testing.T) {
	b := New(testSymbol())
	b.Update(0, 100, 0)
	if got := b.Finalize(600); got != nil {
		t.Errorf("expected nil for unknown minute, got %+v", got)
	}
}

func TestFinalizePrefersCurrentWhenCalledMidMinute(t *testing.T) {
	b := New(testSymbol())
	b.Update(0, 100, 0)
	// Scheduler invoked inside the same minute (no rollover yet).
	got := b.Finalize(0)
	if got == nil || got.Close != 100 {
		t.Errorf("expected in-minute finalize to see current candle, got %+v", got)
	}
}
