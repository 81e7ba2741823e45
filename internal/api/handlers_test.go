package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"cryptoscreener/internal/cache"
	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNotifier struct {
	lastEvent model.NotificationEvent
	err       error
}

func (f *fakeNotifier) Send(ctx context.Context, ev model.NotificationEvent) error {
	f.lastEvent = ev
	return f.err
}

func newTestRouter(t *testing.T) (*http.ServeMux, *sqlite.Store, *fakeNotifier) {
	t.Helper()
	st, err := sqlite.Open(t.TempDir()+"/test.db", discardLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	n := &fakeNotifier{}
	h := New(st, cache.New(), n, clock.Real{}, discardLogger())
	return NewRouter(h), st, n
}

func priceChangeFilterBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"name": "spot pumps",
		"config": map[string]any{
			"type": "price_change",
			"price_change": map[string]any{
				"market":                   "spot",
				"interval_minutes":         15,
				"min_price_change_percent": 5.0,
				"direction":                "up",
				"min_volume_period":        0,
				"min_volume_24h":           0,
			},
		},
	})
	return body
}

func TestCreateAndGetFilter(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/filters", bytes.NewReader(priceChangeFilterBody()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create filter: got %d, body %s", rec.Code, rec.Body.String())
	}

	var created model.Filter
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected a non-zero id")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/filters/"+strconv.FormatInt(created.ID, 10), nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get filter: got %d, body %s", getRec.Code, getRec.Body.String())
	}
}

func TestCreateFilterRejectsInvalidConfig(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{
		"name": "bad",
		"config": map[string]any{
			"type": "price_change",
			"price_change": map[string]any{
				"market":                   "spot",
				"interval_minutes":         7, // not in the enum
				"min_price_change_percent": 5.0,
				"direction":                "up",
			},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/filters", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid config, got %d", rec.Code)
	}
}

func TestToggleAndCloneFilter(t *testing.T) {
	router, _, _ := newTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/filters", bytes.NewReader(priceChangeFilterBody()))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	var created model.Filter
	json.Unmarshal(createRec.Body.Bytes(), &created)

	toggleBody, _ := json.Marshal(map[string]bool{"enabled": true})
	toggleReq := httptest.NewRequest(http.MethodPost, "/api/filters/"+strconv.FormatInt(created.ID, 10)+"/toggle", bytes.NewReader(toggleBody))
	toggleRec := httptest.NewRecorder()
	router.ServeHTTP(toggleRec, toggleReq)
	if toggleRec.Code != http.StatusOK {
		t.Fatalf("toggle: got %d, body %s", toggleRec.Code, toggleRec.Body.String())
	}

	cloneReq := httptest.NewRequest(http.MethodPost, "/api/filters/"+strconv.FormatInt(created.ID, 10)+"/clone", nil)
	cloneRec := httptest.NewRecorder()
	router.ServeHTTP(cloneRec, cloneReq)
	if cloneRec.Code != http.StatusCreated {
		t.Fatalf("clone: got %d, body %s", cloneRec.Code, cloneRec.Body.String())
	}
	var cloned model.Filter
	json.Unmarshal(cloneRec.Body.Bytes(), &cloned)
	if cloned.ID == created.ID {
		t.Fatal("clone must have a distinct id")
	}
}

func TestSettingsGetUpdateRejectsOutOfRange(t *testing.T) {
	router, _, _ := newTestRouter(t)

	badBody, _ := json.Marshal(model.Settings{CheckIntervalSeconds: 10, CooldownMinutes: 15})
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(badBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range check_interval_seconds, got %d", rec.Code)
	}

	goodBody, _ := json.Marshal(model.Settings{CheckIntervalSeconds: 60, CooldownMinutes: 15, ParseSpot: true})
	okReq := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(goodBody))
	okRec := httptest.NewRecorder()
	router.ServeHTTP(okRec, okReq)
	if okRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body %s", okRec.Code, okRec.Body.String())
	}
}

func TestTestNotificationDispatchesToNotifier(t *testing.T) {
	router, _, notifier := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/settings/test-notification", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if notifier.lastEvent.FilterName != "test" {
		t.Fatalf("expected notifier to receive the synthetic event, got %+v", notifier.lastEvent)
	}
}

func TestCandlesAggregatesFromStoreOnCacheMiss(t *testing.T) {
	router, st, _ := newTestRouter(t)

	sym := model.Symbol{Base: "BTC", Quote: "USDT", Market: model.MarketSpot}
	for i := int64(0); i < 10; i++ {
		st.SaveCandle(context.Background(), model.Candle{
			Symbol: sym, Timestamp: i * 60, Open: 100, High: 101, Low: 99, Close: 100, Volume: 5,
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/candles?symbol=BTC/USDT&market=spot&timeframe=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp candlesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Candles) != 2 {
		t.Fatalf("expected 10 one-minute candles to aggregate into 2 five-minute bars, got %d", len(resp.Candles))
	}
	if resp.Candles[0].Volume != 25 {
		t.Fatalf("expected aggregated volume 25 (5 bars * 5 volume), got %v", resp.Candles[0].Volume)
	}
}
