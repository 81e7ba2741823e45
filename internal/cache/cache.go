// Package cache is the rolling in-memory candle and trigger-mark ring
// per (symbol, market) — a read-through accelerator for the chart API.
// It is generalized from the teacher's internal/ringbuf lock-free SPSC
// ring into a mutex-guarded sorted ring, because put_candle needs
// insert-or-update (idempotent re-finalize), not pure append.
package cache

import (
	"sort"
	"sync"

	"cryptoscreener/internal/model"
)

const (
	candleCapacity      = 120          // 2 hours of 1-minute candles
	triggerRetentionSec = 2 * 60 * 60  // 2 hours
)

type pairState struct {
	mu      sync.Mutex
	candles []model.Candle // sorted ascending by Timestamp, capped at candleCapacity
	marks   []model.TriggerMark
}

// Cache is process-wide in-memory state. New returns it empty; the
// screener's warm-up fills it from exchange OHLCV through BulkPut. It
// never reads the store itself, and nothing is persisted on stop (the
// store is the source of truth).
type Cache struct {
	mapMu sync.RWMutex
	pairs map[string]*pairState
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{pairs: make(map[string]*pairState)}
}

func (c *Cache) pairFor(key string) *pairState {
	c.mapMu.RLock()
	p, ok := c.pairs[key]
	c.mapMu.RUnlock()
	if ok {
		return p
	}

	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	if p, ok := c.pairs[key]; ok {
		return p
	}
	p = &pairState{}
	c.pairs[key] = p
	return p
}

// BulkPut replaces a pair's candle ring wholesale — used only at warm-up.
func (c *Cache) BulkPut(sym model.Symbol, candles []model.Candle) {
	p := c.pairFor(sym.Key())
	p.mu.Lock()
	defer p.mu.Unlock()
	sorted := append([]model.Candle(nil), candles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	if len(sorted) > candleCapacity {
		sorted = sorted[len(sorted)-candleCapacity:]
	}
	p.candles = sorted
}

// PutCandle inserts or updates a candle, keeping the ring sorted
// ascending and pruned to the most recent 120 entries.
func (c *Cache) PutCandle(sym model.Symbol, candle model.Candle) {
	p := c.pairFor(sym.Key())
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := sort.Search(len(p.candles), func(i int) bool { return p.candles[i].Timestamp >= candle.Timestamp })
	if idx < len(p.candles) && p.candles[idx].Timestamp == candle.Timestamp {
		p.candles[idx] = candle
	} else {
		p.candles = append(p.candles, model.Candle{})
		copy(p.candles[idx+1:], p.candles[idx:])
		p.candles[idx] = candle
	}
	if len(p.candles) > candleCapacity {
		p.candles = p.candles[len(p.candles)-candleCapacity:]
	}
}

// GetCandles returns a read-only snapshot of the pair's candle ring,
// ascending by timestamp.
func (c *Cache) GetCandles(sym model.Symbol) []model.Candle {
	p := c.pairFor(sym.Key())
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Candle, len(p.candles))
	copy(out, p.candles)
	return out
}

// PutTriggerMark appends a trigger mark and prunes marks older than the
// 2-hour retention cutoff.
func (c *Cache) PutTriggerMark(sym model.Symbol, mark model.TriggerMark) {
	p := c.pairFor(sym.Key())
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks = append(p.marks, mark)
	pruneMarks(p, mark.Time)
}

// GetTriggerMarks returns the pair's live trigger marks.
func (c *Cache) GetTriggerMarks(sym model.Symbol) []model.TriggerMark {
	p := c.pairFor(sym.Key())
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.TriggerMark, len(p.marks))
	copy(out, p.marks)
	return out
}

func pruneMarks(p *pairState, now int64) {
	if now == 0 {
		return
	}
	cutoff := now - triggerRetentionSec
	i := 0
	for i < len(p.marks) && p.marks[i].Time < cutoff {
		i++
	}
	if i > 0 {
		p.marks = p.marks[i:]
	}
}
