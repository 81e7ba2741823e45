package screener

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"cryptoscreener/internal/cache"
	"cryptoscreener/internal/exchange"
	"cryptoscreener/internal/filter"
	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSymbol() model.Symbol {
	return model.Symbol{Base: "BTC", Quote: "USDT", Market: model.MarketSpot}
}

type fakeExchange struct {
	ohlcv   []model.Candle
	tickers map[string]model.Ticker
}

func (f *fakeExchange) WatchTicker(ctx context.Context, sym model.Symbol) (<-chan model.TickerFrame, <-chan error) {
	frames := make(chan model.TickerFrame)
	errs := make(chan error)
	close(frames)
	return frames, errs
}

func (f *fakeExchange) FetchOHLCV(ctx context.Context, sym model.Symbol, limit int) ([]model.Candle, error) {
	if len(f.ohlcv) > limit {
		return f.ohlcv[len(f.ohlcv)-limit:], nil
	}
	return f.ohlcv, nil
}

func (f *fakeExchange) FetchTickers(ctx context.Context, market model.Market) (map[string]model.Ticker, error) {
	return f.tickers, nil
}

var _ exchange.Exchange = (*fakeExchange)(nil)

type fakeBroadcaster struct {
	candles []model.Candle
	status  []string
}

func (b *fakeBroadcaster) BroadcastCandle(sym model.Symbol, c model.Candle) { b.candles = append(b.candles, c) }
func (b *fakeBroadcaster) BroadcastStatus(sym model.Symbol, status string)  { b.status = append(b.status, status) }

type fakeMetrics struct{}

func (fakeMetrics) IncTicks(string)                  {}
func (fakeMetrics) IncCandlesFinalized(string)       {}
func (fakeMetrics) IncWSReconnect(string, string)     {}
func (fakeMetrics) IncBackfillAttempt(string, string) {}
func (fakeMetrics) SetWatchedSymbols(int)             {}

func newTestOrchestrator(t *testing.T, ex *fakeExchange) (*Orchestrator, *sqlite.Store, *fakeBroadcaster) {
	t.Helper()
	st, err := sqlite.Open(t.TempDir()+"/test.db", discardLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := cache.New()
	sink := &fakeSinkNoop{}
	settings := func() model.Settings {
		return model.Settings{CheckIntervalSeconds: 10, CooldownMinutes: 15, ParseSpot: true, ParseFutures: false}
	}
	engine := filter.New(st, sink, discardLogger(), settings)
	bc := &fakeBroadcaster{}

	o := New(ex, st, c, engine, bc, fakeMetrics{}, discardLogger(), settings)
	return o, st, bc
}

type fakeSinkNoop struct{}

func (fakeSinkNoop) Emit(ctx context.Context, t model.Trigger) error { return nil }

func TestWarmUpPersistsCandlesAndCreatesBuilder(t *testing.T) {
	sym := testSymbol()
	candles := []model.Candle{
		{Symbol: sym, Timestamp: 60, Open: 1, High: 1, Low: 1, Close: 1, Volume: 10},
		{Symbol: sym, Timestamp: 120, Open: 1, High: 1, Low: 1, Close: 1, Volume: 10},
	}
	ex := &fakeExchange{ohlcv: candles}
	o, st, _ := newTestOrchestrator(t, ex)

	o.warmUp(context.Background(), []model.Symbol{sym})

	got, err := st.GetCandles(context.Background(), sym, 10)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 persisted candles, got %d", len(got))
	}

	if o.builderFor(sym) == nil {
		t.Fatal("expected builder to be created during warm-up")
	}
}

func TestOnCloseTickFinalizesPersistsAndBroadcasts(t *testing.T) {
	sym := testSymbol()
	ex := &fakeExchange{}
	o, st, bc := newTestOrchestrator(t, ex)

	o.mu.Lock()
	o.symbols = []model.Symbol{sym}
	o.mu.Unlock()

	b := o.builderFor(sym)
	b.Update(0, 100, 1000)  // first frame only seeds the 24h baseline
	b.Update(30, 105, 1040) // +40 quote volume folded into minute 0
	b.Update(65, 110, 1040) // rolls into minute 60, closing minute 0

	o.onCloseTick(context.Background(), 0)

	got, err := st.GetCandles(context.Background(), sym, 10)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(got) != 1 || got[0].Timestamp != 0 {
		t.Fatalf("expected 1 persisted candle at minute 0, got %+v", got)
	}
	if got[0].Volume != 40 {
		t.Fatalf("expected volume 40 from the folded 24h-volume delta, got %v", got[0].Volume)
	}
	if len(bc.candles) != 1 {
		t.Fatalf("expected 1 broadcast candle, got %d", len(bc.candles))
	}
}

func TestBackfillOverwritesCandleAndCachesIt(t *testing.T) {
	sym := testSymbol()
	candles := []model.Candle{{Symbol: sym, Timestamp: 60, Open: 5, High: 6, Low: 4, Close: 5, Volume: 99}}
	ex := &fakeExchange{ohlcv: candles}
	o, st, _ := newTestOrchestrator(t, ex)

	o.backfill(context.Background(), sym, 1)

	got, err := st.GetCandles(context.Background(), sym, 10)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(got) != 1 || got[0].Volume != 99 {
		t.Fatalf("expected backfilled candle with volume 99, got %+v", got)
	}

	cached := o.cache.GetCandles(sym)
	if len(cached) != 1 {
		t.Fatalf("expected cache to hold backfilled candle, got %d", len(cached))
	}
}
