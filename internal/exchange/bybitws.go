package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"cryptoscreener/internal/model"
)

const (
	spotStreamURL    = "wss://stream.bybit.com/v5/public/spot"
	futuresStreamURL = "wss://stream.bybit.com/v5/public/linear"
	restBaseURL      = "https://api.bybit.com"

	maxConsecutiveErrors = 5
	maxBackoff           = 60 * time.Second
)

// Bybit implements Exchange against Bybit's public v5 REST and
// WebSocket APIs. Spot and futures symbols are routed to different
// underlying WS sessions (the v5 API exposes them as separate public
// streams) and different `category` values on the REST endpoints.
type Bybit struct {
	httpClient *http.Client
	breaker    *CircuitBreaker
	dialer     *websocket.Dialer
	log        *slog.Logger

	maxRetryAttempts int
	retryDelay       time.Duration
}

// Config configures the Bybit capability.
type Config struct {
	RequestTimeout   time.Duration
	MaxRetryAttempts int
	RetryDelay       time.Duration
	Testnet          bool
}

// New creates a Bybit capability implementation.
func New(cfg Config, log *slog.Logger) *Bybit {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	breaker := NewCircuitBreaker(5, 10*time.Second)
	breaker.OnStateChange = func(from, to State) {
		log.Warn("backfill circuit breaker state change", "from", from, "to", to)
	}

	return &Bybit{
		httpClient:       &http.Client{Timeout: cfg.RequestTimeout},
		breaker:          breaker,
		dialer:           websocket.DefaultDialer,
		log:              log,
		maxRetryAttempts: cfg.MaxRetryAttempts,
		retryDelay:       cfg.RetryDelay,
	}
}

func streamURL(market model.Market) string {
	if market == model.MarketFutures {
		return futuresStreamURL
	}
	return spotStreamURL
}

func restCategory(market model.Market) string {
	if market == model.MarketFutures {
		return "linear"
	}
	return "spot"
}

// WatchTicker dials the combined ticker stream for sym's market and
// converts incoming frames. On a dropped connection it reconnects with
// exponential backoff (min(2^k, 60s)); after maxConsecutiveErrors
// unrecovered attempts it gives up for this session and closes the
// channels — the caller (the watcher task) retires the symbol.
func (b *Bybit) WatchTicker(ctx context.Context, sym model.Symbol) (<-chan model.TickerFrame, <-chan error) {
	out := make(chan model.TickerFrame, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		consecutive := 0
		for {
			if ctx.Err() != nil {
				return
			}
			received, err := b.watchOnce(ctx, sym, out)
			if received {
				consecutive = 0
			}
			if err != nil {
				if err == errFatalProtocol {
					errc <- fmt.Errorf("exchange: %s: %w", sym.Exchange(), ErrSymbolUnknown)
					return
				}
				consecutive++
				if consecutive >= maxConsecutiveErrors {
					errc <- fmt.Errorf("exchange: %s: giving up after %d consecutive errors: %w", sym.Exchange(), consecutive, err)
					return
				}
				backoff := time.Duration(1<<uint(consecutive)) * time.Second
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				b.log.Warn("ticker watcher reconnecting", "symbol", sym.Exchange(), "market", sym.Market, "attempt", consecutive, "backoff", backoff, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				continue
			}
			consecutive = 0
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return out, errc
}

var errFatalProtocol = fmt.Errorf("exchange: fatal protocol error")

type bybitTickerFrame struct {
	Topic string `json:"topic"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol   string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
		Turnover24h string `json:"turnover24h"` // quote-currency 24h volume
	} `json:"data"`
}

// watchOnce owns a single connection lifetime: connect, subscribe,
// read frames until the connection drops or ctx is cancelled. received
// reports whether at least one ticker frame arrived on this connection.
func (b *Bybit) watchOnce(ctx context.Context, sym model.Symbol, out chan<- model.TickerFrame) (received bool, err error) {
	conn, _, err := b.dialer.DialContext(ctx, streamURL(sym.Market), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{
		"op":   "subscribe",
		"args": []string{"tickers." + symbolNoSlash(sym)},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	pingTicker := time.NewTicker(20 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for range pingTicker.C {
			if conn.WriteJSON(map[string]string{"op": "ping"}) != nil {
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			return received, fmt.Errorf("read: %w", err)
		}

		var frame bybitTickerFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue // control/ack frame, not a ticker update
		}
		if frame.Data.Symbol == "" {
			continue
		}
		last, err1 := strconv.ParseFloat(frame.Data.LastPrice, 64)
		vol, err2 := strconv.ParseFloat(frame.Data.Turnover24h, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		received = true

		tf := model.TickerFrame{
			TimestampMs: frame.Ts,
			Last:        last,
			QuoteVol24h: vol,
		}
		select {
		case out <- tf:
		case <-ctx.Done():
			return received, nil
		default:
			// slow consumer: drop rather than block the read loop
		}
	}
}

type bybitKlineResp struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List [][]string `json:"list"` // [start, open, high, low, close, volume, turnover]
	} `json:"result"`
}

// FetchOHLCV retrieves up to limit closed 1-minute candles via Bybit's
// REST kline endpoint, retried up to maxRetryAttempts times through the
// circuit breaker, with timestamps converted to seconds.
func (b *Bybit) FetchOHLCV(ctx context.Context, sym model.Symbol, limit int) ([]model.Candle, error) {
	url := fmt.Sprintf("%s/v5/market/kline?category=%s&symbol=%s&interval=1&limit=%d",
		restBaseURL, restCategory(sym.Market), symbolNoSlash(sym), limit+1)

	var resp bybitKlineResp
	if err := b.getJSONRetrying(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("exchange: kline %s: %s: %w", sym.Exchange(), resp.RetMsg, ErrSymbolUnknown)
	}

	candles := make([]model.Candle, 0, len(resp.Result.List))
	currentMinute := time.Now().UTC().Unix()
	currentMinute -= currentMinute % 60

	for _, row := range resp.Result.List {
		if len(row) < 6 {
			continue
		}
		startMs, _ := strconv.ParseInt(row[0], 10, 64)
		ts := startMs / 1000
		if ts >= currentMinute {
			continue // exclude the currently-open minute
		}
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		cls, _ := strconv.ParseFloat(row[4], 64)
		turnover := 0.0
		if len(row) >= 7 {
			turnover, _ = strconv.ParseFloat(row[6], 64)
		}
		candles = append(candles, model.Candle{
			Symbol:    sym,
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    turnover,
		})
	}

	// Bybit returns most-recent-first; the store contract requires
	// ascending order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

type bybitTickersResp struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol      string `json:"symbol"`
			LastPrice   string `json:"lastPrice"`
			Turnover24h string `json:"turnover24h"`
		} `json:"list"`
	} `json:"result"`
}

// FetchTickers retrieves the latest 24h ticker snapshot for every symbol
// Bybit lists on the given market.
func (b *Bybit) FetchTickers(ctx context.Context, market model.Market) (map[string]model.Ticker, error) {
	url := fmt.Sprintf("%s/v5/market/tickers?category=%s", restBaseURL, restCategory(market))

	var resp bybitTickersResp
	if err := b.getJSONRetrying(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("exchange: tickers %s: %s", market, resp.RetMsg)
	}

	now := time.Now().UTC().Unix()
	out := make(map[string]model.Ticker, len(resp.Result.List))
	for _, t := range resp.Result.List {
		sym := model.ParseSymbol(t.Symbol, market)
		last, _ := strconv.ParseFloat(t.LastPrice, 64)
		vol, _ := strconv.ParseFloat(t.Turnover24h, 64)
		out[sym.Key()] = model.Ticker{
			Symbol:    sym,
			Volume24h: vol,
			LastPrice: last,
			UpdatedAt: now,
		}
	}
	return out, nil
}

// getJSONRetrying performs a 3-attempt REST retry with delay·2^k through
// the circuit breaker, per spec §7's transient-transport policy.
func (b *Bybit) getJSONRetrying(ctx context.Context, url string, dst any) error {
	var lastErr error
	for attempt := 0; attempt < b.maxRetryAttempts; attempt++ {
		err := b.breaker.Execute(func() error {
			return b.getJSON(ctx, url, dst)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if err == ErrCircuitOpen {
			return err
		}
		delay := b.retryDelay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("exchange: rest request failed after %d attempts: %w", b.maxRetryAttempts, lastErr)
}

func (b *Bybit) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func symbolNoSlash(sym model.Symbol) string {
	if sym.Market == model.MarketFutures {
		return sym.Base + sym.Quote
	}
	return sym.Base + sym.Quote
}
