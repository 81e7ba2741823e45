package api

import (
	"net/http"
	"strconv"

	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store"
)

func (h *Handlers) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	query := store.TriggerQuery{
		Symbol: q.Get("symbol"),
		Market: model.Market(q.Get("market")),
		Limit:  50,
	}
	if v := q.Get("filter_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			query.FilterID = id
		}
	}
	if v := q.Get("from"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			query.From = ts
		}
	}
	if v := q.Get("to"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			query.To = ts
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			query.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			query.Offset = n
		}
	}

	triggers, err := h.store.ListTriggers(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

func (h *Handlers) handleTriggerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := h.store.TriggerStats(r.Context(), clock.NowSeconds(h.clk))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
