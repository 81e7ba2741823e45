// Package exchange defines the capability the screener needs from a
// market-data venue — a streaming ticker watch, REST OHLCV backfill and a
// REST ticker snapshot — and implements it against Bybit's public v5 API.
package exchange

import (
	"context"
	"errors"

	"cryptoscreener/internal/model"
)

// ErrSymbolUnknown marks a protocol/API-class failure (unknown symbol,
// permission) that is fatal to the caller — never retried.
var ErrSymbolUnknown = errors.New("exchange: unknown symbol")

// Exchange is the capability set the screener's watchers and backfill
// tasks are built against. Implementations own the mapping from a
// canonical model.Symbol onto whatever session/stream the underlying
// venue requires — spot and futures symbols share base identifiers but
// must be routed to different underlying sessions.
type Exchange interface {
	// WatchTicker returns a channel of ticker frames for one symbol. The
	// channel is infinite and non-restartable; cancelling ctx closes the
	// underlying connection and the channel. Network-class failures are
	// retried internally with exponential backoff — the channel closes
	// on ctx cancellation, on a fatal protocol error, or after repeated
	// reconnect failures with no frame received in between (the last two
	// reported via the returned error channel).
	WatchTicker(ctx context.Context, sym model.Symbol) (<-chan model.TickerFrame, <-chan error)

	// FetchOHLCV returns up to limit closed 1-minute candles for sym,
	// ascending by timestamp, excluding the current still-open minute.
	FetchOHLCV(ctx context.Context, sym model.Symbol, limit int) ([]model.Candle, error)

	// FetchTickers returns the latest 24h ticker snapshot for every
	// symbol the exchange lists on the given market.
	FetchTickers(ctx context.Context, market model.Market) (map[string]model.Ticker, error)
}
