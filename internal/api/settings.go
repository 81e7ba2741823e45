package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/model"
)

// validateSettings rejects out-of-range scheduling values (spec §6:
// check_interval_seconds 60-3600, cooldown_minutes 1-1440).
func validateSettings(s model.Settings) error {
	if s.CheckIntervalSeconds < 60 || s.CheckIntervalSeconds > 3600 {
		return fmt.Errorf("check_interval_seconds must be between 60 and 3600")
	}
	if s.CooldownMinutes < 1 || s.CooldownMinutes > 1440 {
		return fmt.Errorf("cooldown_minutes must be between 1 and 1440")
	}
	return nil
}

func (h *Handlers) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, err := h.store.GetSettings(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s)
	case http.MethodPut:
		var s model.Settings
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateSettings(s); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.store.SaveSettings(r.Context(), s); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTestNotification dispatches a synthetic trigger through the
// configured notifier so the UI can confirm Telegram credentials work
// without waiting for a real filter match.
func (h *Handlers) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ev := model.NotificationEvent{
		FilterName:  "test",
		FilterType:  model.FilterPriceChange,
		Symbol:      "BTC/USDT",
		Market:      model.MarketSpot,
		TriggeredAt: clock.NowSeconds(h.clk),
		URL:         "https://example.com/trade/spot/BTC_USDT",
	}

	if err := h.notifier.Send(r.Context(), ev); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
