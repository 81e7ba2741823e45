// Package candle holds the per-symbol candle builder — a pure state
// machine reconstructing a minute candle from the ticker stream.
// Generalized from the teacher's internal/marketdata/tfbuilder bucket
// rollover (N dynamic timeframes, "finalize on rollover") down to the
// single fixed 1-minute timeframe the screener needs, and to the
// explicit finalize(minute) query contract spec §4.5 requires instead of
// an emit-on-rollover callback.
package candle

import (
	"sync"

	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/model"
)

// Builder is a per-symbol state machine. It is touched only by its own
// watcher goroutine (Update) and by the fan-out (Finalize); the mutex
// gives the fan-out a consistent snapshot without a separate lock map.
type Builder struct {
	sym model.Symbol

	mu                 sync.Mutex
	current            *model.Candle
	previous           *model.Candle
	currentMinuteStart int64

	// last24hVolume and have24hBaseline track the exchange's rolling
	// 24h quote-volume figure so Update can fold its minute-to-minute
	// delta into the forming candle's Volume as an interim estimate —
	// the ticker stream carries no per-trade size, only this rolling
	// total (spec §9 OQ1(a)). The REST backfill path overwrites this
	// estimate with the exchange's authoritative OHLCV volume once a
	// gap triggers it.
	last24hVolume   float64
	have24hBaseline bool
}

// New creates a builder for one (symbol, market) pair.
func New(sym model.Symbol) *Builder {
	return &Builder{sym: sym}
}

// Update folds one ticker frame into the builder's state. tsSeconds is
// the frame's exchange timestamp converted to whole seconds at ingress.
// quoteVol24h is the ticker's rolling 24h quote volume; the non-negative
// delta since the previous frame is added to the forming candle's
// Volume as an interim estimate (spec §9 OQ1(a)).
func (b *Builder) Update(tsSeconds int64, lastPrice float64, quoteVol24h float64) {
	m := clock.MinuteOf(tsSeconds)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil || m != b.currentMinuteStart {
		b.previous = b.current
		b.current = &model.Candle{
			Symbol:    b.sym,
			Timestamp: m,
			Open:      lastPrice,
			High:      lastPrice,
			Low:       lastPrice,
			Close:     lastPrice,
		}
		b.currentMinuteStart = m
	}

	c := b.current
	if lastPrice > c.High {
		c.High = lastPrice
	}
	if lastPrice < c.Low {
		c.Low = lastPrice
	}
	c.Close = lastPrice
	c.TickCount++

	if b.have24hBaseline {
		if delta := quoteVol24h - b.last24hVolume; delta > 0 {
			c.Volume += delta
		}
	} else {
		b.have24hBaseline = true
	}
	b.last24hVolume = quoteVol24h
}

// Finalize returns the closed candle for minute, or nil if the builder
// has no data for it. It prefers previous over current because the
// scheduler fires at minute+check_delay, by which point the builder has
// usually already rolled over to the next minute's current. Idempotent:
// calling Finalize twice for the same minute returns an equal value.
func (b *Builder) Finalize(minute int64) *model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.previous != nil && b.previous.Timestamp == minute {
		cp := *b.previous
		return &cp
	}
	if b.current != nil && b.current.Timestamp == minute {
		cp := *b.current
		return &cp
	}
	return nil
}

// CurrentMinute reports the minute the builder is currently forming —
// used by the watcher's gap detector to notice missed minutes.
func (b *Builder) CurrentMinute() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentMinuteStart
}
