// Package api is the thin HTTP CRUD glue in front of the store: filters,
// triggers, settings and the chart candles route (spec §6). Grounded on
// the teacher's internal/api/router.go — a bare http.ServeMux, no router
// library — generalized from a placeholder health stub into the
// screener's full REST surface.
package api

import (
	"log/slog"
	"net/http"

	"cryptoscreener/internal/cache"
	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/notify"
	"cryptoscreener/internal/store"
)

// Handlers holds every dependency the HTTP surface reads or writes
// through. Nothing here runs a background loop; it only answers requests.
type Handlers struct {
	store    store.Store
	cache    *cache.Cache
	notifier notify.Notifier
	clk      clock.Clock
	log      *slog.Logger
}

// New creates the API handler set.
func New(st store.Store, c *cache.Cache, notifier notify.Notifier, clk clock.Clock, log *slog.Logger) *Handlers {
	return &Handlers{store: st, cache: c, notifier: notifier, clk: clk, log: log}
}

// NewRouter wires every route onto a bare http.ServeMux (the teacher's
// own style — RohanRaikwar-algo-sys-v1/backend/internal/api/router.go
// carries no router library in its go.mod).
func NewRouter(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/filters", h.handleFiltersCollection)
	mux.HandleFunc("/api/filters/", h.handleFilterItem)

	mux.HandleFunc("/api/triggers", h.handleListTriggers)
	mux.HandleFunc("/api/triggers/stats", h.handleTriggerStats)

	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/settings/test-notification", h.handleTestNotification)

	mux.HandleFunc("/api/candles", h.handleCandles)

	return mux
}
