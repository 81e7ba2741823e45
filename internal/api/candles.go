package api

import (
	"net/http"
	"strconv"

	"cryptoscreener/internal/model"
)

var validTimeframes = map[int]bool{1: true, 5: true, 15: true, 30: true, 60: true}

const defaultCandleLimit = 120

type candlesResponse struct {
	Symbol    string              `json:"symbol"`
	Market    model.Market        `json:"market"`
	Timeframe int                 `json:"timeframe"`
	Candles   []model.Candle      `json:"candles"`
	Triggers  []model.TriggerMark `json:"triggers"`
}

// handleCandles serves GET /api/candles?symbol&market&timeframe, resolved
// OQ3: aggregating-with-cache-fallback. 1-minute candles are read from
// the in-process rolling cache first; if the cache has nothing for the
// pair (cold start, cache eviction) the handler falls back to the store.
func (h *Handlers) handleCandles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	symbolParam := q.Get("symbol")
	marketParam := model.Market(q.Get("market"))
	if symbolParam == "" || (marketParam != model.MarketSpot && marketParam != model.MarketFutures) {
		writeError(w, http.StatusBadRequest, "symbol and market (spot|futures) are required")
		return
	}

	timeframe := 1
	if v := q.Get("timeframe"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !validTimeframes[n] {
			writeError(w, http.StatusBadRequest, "timeframe must be one of 1, 5, 15, 30, 60")
			return
		}
		timeframe = n
	}

	limit := defaultCandleLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sym := model.ParseSymbol(symbolParam, marketParam)

	oneMin := h.cache.GetCandles(sym)
	if len(oneMin) == 0 {
		stored, err := h.store.GetCandles(r.Context(), sym, limit*timeframe)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		oneMin = stored
	}

	aggregated := aggregateCandles(oneMin, timeframe)
	if len(aggregated) > limit {
		aggregated = aggregated[len(aggregated)-limit:]
	}

	writeJSON(w, http.StatusOK, candlesResponse{
		Symbol:    sym.Exchange(),
		Market:    sym.Market,
		Timeframe: timeframe,
		Candles:   aggregated,
		Triggers:  h.cache.GetTriggerMarks(sym),
	})
}
