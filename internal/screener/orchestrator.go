// Package screener is the composition-level orchestrator: per-symbol
// watchers, the global minute scheduler, gap-repair backfill, and the
// finalization fan-out (spec §4.7). Grounded on the teacher's
// cmd/mdengine/main.go wiring/shutdown shape, generalized from one
// fixed NSE instrument to a run-scoped set of discovered crypto pairs.
package screener

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cryptoscreener/internal/cache"
	"cryptoscreener/internal/candle"
	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/exchange"
	"cryptoscreener/internal/filter"
	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store"
)

// Metrics is the subset of metrics.Metrics the orchestrator touches,
// narrowed locally so this package doesn't import prometheus types.
type Metrics interface {
	IncTicks(symbol string)
	IncCandlesFinalized(symbol string)
	IncWSReconnect(symbol, reason string)
	IncBackfillAttempt(symbol, outcome string)
	SetWatchedSymbols(n int)
}

// Broadcaster is the chart push capability the orchestrator needs.
type Broadcaster interface {
	BroadcastCandle(sym model.Symbol, c model.Candle)
	BroadcastStatus(sym model.Symbol, status string)
}

// SettingsSource resolves the live, hot-reloadable scheduling settings
// (spec §5: configuration is process-wide mutable state managed only
// through the settings API; the orchestrator reads it fresh each cycle
// rather than caching it at startup).
type SettingsSource func() model.Settings

const (
	warmupCandles   = 120
	warmupBatchSize = 10
	warmupPause     = 500 * time.Millisecond

	backfillBufferMinutes = 5
	backfillMaxMinutes    = 120

	sweepInterval   = time.Hour
	sweepKeepHours  = 3
	sweepKeepDays   = 30
	shutdownTimeout = 5 * time.Second
)

// Orchestrator owns the run-scoped symbol set, one candle.Builder per
// symbol, and every background loop that feeds the filter engine.
type Orchestrator struct {
	exchange exchange.Exchange
	store    store.Store
	cache    *cache.Cache
	engine   *filter.Engine
	hub      Broadcaster
	metrics  Metrics
	log      *slog.Logger
	clk      clock.Clock
	settings SettingsSource

	mu       sync.RWMutex
	builders map[string]*candle.Builder
	symbols  []model.Symbol

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an Orchestrator. settings supplies the live
// check_delay/cooldown/market-toggle configuration.
func New(ex exchange.Exchange, st store.Store, c *cache.Cache, engine *filter.Engine, hub Broadcaster, m Metrics, log *slog.Logger, settings SettingsSource) *Orchestrator {
	return &Orchestrator{
		exchange: ex,
		store:    st,
		cache:    c,
		engine:   engine,
		hub:      hub,
		metrics:  m,
		log:      log,
		clk:      clock.Real{},
		settings: settings,
		builders: make(map[string]*candle.Builder),
	}
}

// Start selects the run-scoped symbol set, warms the cache and store,
// then launches the watchers, the minute scheduler and the background
// sweeps. It returns once warm-up has completed; all loops it starts
// run until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context, topN int) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	symbols, err := o.selectSymbols(runCtx, topN)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.symbols = symbols
	o.mu.Unlock()
	o.metrics.SetWatchedSymbols(len(symbols))

	o.warmUp(runCtx, symbols)

	for _, sym := range symbols {
		sym := sym
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.watch(runCtx, sym)
		}()
	}

	sched := NewScheduler(o.clk, func() int { return o.settings().CheckIntervalSeconds })
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		sched.Run(runCtx, func(closedMinute int64) { o.onCloseTick(runCtx, closedMinute) })
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runSweeps(runCtx)
	}()

	return nil
}

// Stop cancels every background loop and waits up to shutdownTimeout
// for in-flight work to finish (spec §5).
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		o.log.Warn("shutdown timeout exceeded, some watchers may not have stopped cleanly")
	}
}

// selectSymbols takes a run-scoped snapshot of the top-N symbols by 24h
// quote volume per enabled market (spec §9 OQ2).
func (o *Orchestrator) selectSymbols(ctx context.Context, topN int) ([]model.Symbol, error) {
	settings := o.settings()
	var out []model.Symbol

	markets := []model.Market{}
	if settings.ParseSpot {
		markets = append(markets, model.MarketSpot)
	}
	if settings.ParseFutures {
		markets = append(markets, model.MarketFutures)
	}

	for _, mkt := range markets {
		tickers, err := o.exchange.FetchTickers(ctx, mkt)
		if err != nil {
			return nil, err
		}

		type ranked struct {
			sym model.Symbol
			vol float64
		}
		rankedList := make([]ranked, 0, len(tickers))
		for key, t := range tickers {
			rankedList = append(rankedList, ranked{sym: t.Symbol, vol: t.Volume24h})
			_ = key
		}
		sort.Slice(rankedList, func(i, j int) bool { return rankedList[i].vol > rankedList[j].vol })

		n := topN
		if n > len(rankedList) {
			n = len(rankedList)
		}
		for i := 0; i < n; i++ {
			out = append(out, rankedList[i].sym)
		}
	}
	return out, nil
}

// warmUp bulk-fetches the last warmupCandles minutes for every symbol,
// in batches, and persists them to the store so the filter engine has a
// rolling window to read from the moment watchers start.
func (o *Orchestrator) warmUp(ctx context.Context, symbols []model.Symbol) {
	for i := 0; i < len(symbols); i += warmupBatchSize {
		end := i + warmupBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]

		var wg sync.WaitGroup
		for _, sym := range batch {
			sym := sym
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.warmUpOne(ctx, sym)
			}()
		}
		wg.Wait()

		if end < len(symbols) {
			time.Sleep(warmupPause)
		}
	}
}

func (o *Orchestrator) warmUpOne(ctx context.Context, sym model.Symbol) {
	candles, err := o.exchange.FetchOHLCV(ctx, sym, warmupCandles)
	if err != nil {
		o.log.Error("warm-up fetch failed", "symbol", sym.Exchange(), "err", err)
	} else {
		for _, c := range candles {
			if err := o.store.SaveCandle(ctx, c); err != nil {
				o.log.Error("warm-up save candle failed", "symbol", sym.Exchange(), "err", err)
			}
		}
		o.cache.BulkPut(sym, candles)
	}

	o.mu.Lock()
	o.builders[sym.Key()] = candle.New(sym)
	o.mu.Unlock()
}

// watch runs one symbol's ticker stream until the underlying channel
// closes (ctx cancellation, a fatal protocol error reported by the
// exchange, or the exchange giving up after repeated failed reconnects;
// transient network failures are retried inside it).
func (o *Orchestrator) watch(ctx context.Context, sym model.Symbol) {
	builder := o.builderFor(sym)
	gapDet := &GapDetector{}

	frames, errs := o.exchange.WatchTicker(ctx, sym)
	o.hub.BroadcastStatus(sym, "live")

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				o.hub.BroadcastStatus(sym, "offline")
				return
			}
			o.metrics.IncTicks(sym.Exchange())
			tsSeconds := frame.TimestampMs / 1000
			builder.Update(tsSeconds, frame.Last, frame.QuoteVol24h)

			if err := o.store.SaveTicker(ctx, model.Ticker{
				Symbol: sym, Volume24h: frame.QuoteVol24h, LastPrice: frame.Last, UpdatedAt: tsSeconds,
			}); err != nil {
				o.log.Error("save ticker failed", "symbol", sym.Exchange(), "err", err)
			}

			if gap, found := gapDet.Observe(builder.CurrentMinute()); found {
				o.wg.Add(1)
				go func() {
					defer o.wg.Done()
					o.backfill(ctx, sym, gap)
				}()
			}
		case err, ok := <-errs:
			if !ok {
				continue
			}
			o.log.Warn("watch ticker error", "symbol", sym.Exchange(), "err", err)
			o.metrics.IncWSReconnect(sym.Exchange(), "stream_error")
			o.hub.BroadcastStatus(sym, "reconnecting")
		}
	}
}

// backfill repairs missed minutes (and replaces the builder's
// 24h-volume-delta estimates, spec §9 OQ1) by overwriting them with the
// exchange's own OHLCV history.
func (o *Orchestrator) backfill(ctx context.Context, sym model.Symbol, missingMinutes int64) {
	limit := int(missingMinutes) + backfillBufferMinutes
	if limit > backfillMaxMinutes {
		limit = backfillMaxMinutes
	}

	candles, err := o.exchange.FetchOHLCV(ctx, sym, limit)
	if err != nil {
		o.metrics.IncBackfillAttempt(sym.Exchange(), "error")
		o.log.Error("backfill fetch failed", "symbol", sym.Exchange(), "err", err)
		return
	}

	for _, c := range candles {
		if err := o.store.SaveCandle(ctx, c); err != nil {
			o.log.Error("backfill save candle failed", "symbol", sym.Exchange(), "err", err)
			continue
		}
		o.cache.PutCandle(sym, c)
	}
	o.metrics.IncBackfillAttempt(sym.Exchange(), "ok")
}

// onCloseTick is the finalization fan-out (spec §4.7 step 3): for every
// watched symbol, ask its builder for the just-closed minute and, if
// present, persist/cache/broadcast it, then dispatch a filter
// evaluation. Filter evaluation runs off the tick goroutine so one slow
// symbol never delays another's finalization.
func (o *Orchestrator) onCloseTick(ctx context.Context, closedMinute int64) {
	o.mu.RLock()
	symbols := append([]model.Symbol(nil), o.symbols...)
	o.mu.RUnlock()

	for _, sym := range symbols {
		builder := o.builderFor(sym)
		c := builder.Finalize(closedMinute)
		if c == nil {
			continue
		}

		if err := o.store.SaveCandle(ctx, *c); err != nil {
			o.log.Error("save candle failed", "symbol", sym.Exchange(), "err", err)
			continue
		}
		o.cache.PutCandle(sym, *c)
		o.hub.BroadcastCandle(sym, *c)
		o.metrics.IncCandlesFinalized(sym.Exchange())

		sym := sym
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.engine.EvaluateSymbol(ctx, sym, closedMinute)
		}()
	}
}

// runSweeps periodically trims candles and triggers past their
// retention window (spec §4.10).
func (o *Orchestrator) runSweeps(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := o.clk.Now().Unix()
			if _, err := o.store.SweepCandles(ctx, sweepKeepHours, now); err != nil {
				o.log.Error("sweep candles failed", "err", err)
			}
			if _, err := o.store.SweepTriggers(ctx, sweepKeepDays, now); err != nil {
				o.log.Error("sweep triggers failed", "err", err)
			}
		}
	}
}

func (o *Orchestrator) builderFor(sym model.Symbol) *candle.Builder {
	o.mu.RLock()
	b, ok := o.builders[sym.Key()]
	o.mu.RUnlock()
	if ok {
		return b
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.builders[sym.Key()]; ok {
		return b
	}
	b = candle.New(sym)
	o.builders[sym.Key()] = b
	return b
}
