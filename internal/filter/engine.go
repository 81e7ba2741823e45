// Package filter is the evaluation engine: range-bounded reductions over
// the rolling candle history, gated by a per-(filter, symbol) cooldown.
// Grounded on the teacher's internal/strategy/engine.go (a Strategy
// interface dispatched by an Engine.Run loop) repurposed from trading
// signals to screener predicates; the price_change/volume_spike math
// itself has no teacher analog and is grounded on the original Python
// screener/filters.py semantics instead.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store"
)

// Reader is the subset of store.Store the engine reads through —
// narrowed from the full Store interface so tests can fake just this.
type Reader interface {
	ListActiveFilters(ctx context.Context) ([]model.Filter, error)
	GetCandles(ctx context.Context, sym model.Symbol, windowMinutes int) ([]model.Candle, error)
	GetTicker(ctx context.Context, sym model.Symbol) (model.Ticker, error)
	CheckCooldown(ctx context.Context, filterID int64, sym model.Symbol, cooldownMinutes int, now int64) (bool, error)
}

// SettingsSource resolves the live, hot-reloadable process settings
// (spec §5/§6: cooldown_minutes is a Settings field, not per-filter, and
// is mutable at runtime through PUT /api/settings). The engine reads it
// fresh on every evaluation rather than caching it at construction time.
type SettingsSource func() model.Settings

// Engine evaluates every active filter against one symbol's freshly
// closed minute. It is stateless beyond its dependencies: a Reader for
// reads/cooldown, a TriggerSink for everything a match triggers.
type Engine struct {
	store    Reader
	sink     TriggerSink
	log      *slog.Logger
	now      func() int64
	settings SettingsSource
}

// New creates a filter Engine. settings is consulted on every
// evaluation for the live cooldown_minutes value; pass nil to fall back
// to defaultCooldownMinutes unconditionally (e.g. in tests that don't
// exercise cooldown configuration).
func New(s Reader, sink TriggerSink, log *slog.Logger, settings SettingsSource) *Engine {
	return &Engine{
		store:    s,
		sink:     sink,
		log:      log,
		now:      func() int64 { return time.Now().UTC().Unix() },
		settings: settings,
	}
}

// EvaluateSymbol is the fire-and-forget evaluator the scheduler calls
// once per symbol per minute (spec §4.6). It is the only entry point;
// the scheduler serializes calls for the same (symbol, minute) so no
// two evaluations of the same pair ever race.
func (e *Engine) EvaluateSymbol(ctx context.Context, sym model.Symbol, closedMinute int64) {
	filters, err := e.store.ListActiveFilters(ctx)
	if err != nil {
		e.log.Error("list active filters failed", "symbol", sym.Exchange(), "err", err)
		return
	}

	now := e.now()
	for _, f := range filters {
		if !f.Matches(sym) {
			continue
		}
		e.evaluateOne(ctx, f, sym, closedMinute, now)
	}
}

func (e *Engine) evaluateOne(ctx context.Context, f model.Filter, sym model.Symbol, closedMinute, now int64) {
	cooldownMinutes := e.cooldownMinutes()
	ok, err := e.store.CheckCooldown(ctx, f.ID, sym, cooldownMinutes, now)
	if err != nil {
		e.log.Error("cooldown check failed", "filter", f.Name, "symbol", sym.Exchange(), "err", err)
		return
	}
	if !ok {
		return
	}

	var trig *model.Trigger
	switch f.Type {
	case model.FilterPriceChange:
		trig, err = e.evalPriceChange(ctx, f, sym, closedMinute, now)
	case model.FilterVolumeSpike:
		trig, err = e.evalVolumeSpike(ctx, f, sym, closedMinute, now)
	default:
		return
	}
	if err != nil {
		if err == store.ErrInsufficientData {
			return // spec §7: insufficient data is silent, not an error
		}
		e.log.Error("filter evaluation failed", "filter", f.Name, "symbol", sym.Exchange(), "err", err)
		return
	}
	if trig == nil {
		return
	}

	if err := e.sink.Emit(ctx, *trig); err != nil {
		e.log.Error("trigger emit failed", "filter", f.Name, "symbol", sym.Exchange(), "err", err)
	}
}

const defaultCooldownMinutes = 15

// cooldownMinutes returns the process-wide cooldown setting (spec §5:
// filters don't carry their own cooldown in §6's config schema — it is a
// Settings field, not per-filter), read fresh from the live settings
// source so a PUT /api/settings update takes effect on the very next
// evaluation.
func (e *Engine) cooldownMinutes() int {
	if e.settings == nil {
		return defaultCooldownMinutes
	}
	if m := e.settings().CooldownMinutes; m > 0 {
		return m
	}
	return defaultCooldownMinutes
}

func sumVolume(cs []model.Candle) float64 {
	var sum float64
	for _, c := range cs {
		sum += c.Volume
	}
	return sum
}

func priceChangePercent(start, end float64) (float64, error) {
	if start <= 0 {
		return 0, fmt.Errorf("price_start <= 0")
	}
	return (end - start) / start * 100, nil
}
