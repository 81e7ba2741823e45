package model

import "fmt"

// Candle is a one-minute OHLCV bar for a (symbol, market) pair. A Candle
// that lives in the store or cache is always closed — the minute it
// covers has fully elapsed.
type Candle struct {
	Symbol    Symbol  `json:"-"`
	Timestamp int64   `json:"timestamp"` // seconds, aligned to minute
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"` // quote volume, USD-equivalent

	// TickCount is carried for diagnostics only; it is never persisted.
	TickCount int `json:"-"`
}

// Valid reports whether the candle satisfies the OHLC ordering and
// minute-alignment invariants.
func (c Candle) Valid() error {
	if c.Timestamp%60 != 0 {
		return fmt.Errorf("candle: timestamp %d is not minute-aligned", c.Timestamp)
	}
	if c.Low > c.Open || c.Open > c.High || c.Low > c.Close || c.Close > c.High {
		return fmt.Errorf("candle: OHLC out of order (o=%v h=%v l=%v c=%v)", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle: negative volume %v", c.Volume)
	}
	return nil
}

// Ticker is the last-observed 24h rollup for a (symbol, market) pair.
type Ticker struct {
	Symbol     Symbol  `json:"-"`
	Volume24h  float64 `json:"volume_24h"`
	LastPrice  float64 `json:"last_price"`
	UpdatedAt  int64   `json:"updated_at"`
}

// TickerFrame is a single frame delivered by the exchange's ticker stream.
// Its timestamp stays in milliseconds; the watcher converts it to seconds
// before updating the candle builder.
type TickerFrame struct {
	TimestampMs int64   // exchange-reported timestamp, milliseconds
	Last        float64 // last traded price
	QuoteVol24h float64 // rolling 24h quote volume at the time of the frame
}
