package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath, slog.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveCandleIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sym := model.Symbol{Base: "BTC", Quote: "USDT", Market: model.MarketSpot}
	c := model.Candle{Symbol: sym, Timestamp: 60, Open: 100, High: 110, Low: 90, Close: 105, Volume: 10}

	if err := s.SaveCandle(ctx, c); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := s.SaveCandle(ctx, c); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	got, err := s.GetCandles(ctx, sym, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candle (idempotent upsert), got %d", len(got))
	}
	if got[0] != c {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got[0], c)
	}
}

func TestGetCandlesOrderedAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sym := model.Symbol{Base: "ETH", Quote: "USDT", Market: model.MarketSpot}

	for i := int64(0); i < 5; i++ {
		c := model.Candle{Symbol: sym, Timestamp: i * 60, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 1}
		if err := s.SaveCandle(ctx, c); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.GetCandles(ctx, sym, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("candles not ascending: %v", got)
		}
	}
	// Should be the three most recent: 120, 180, 240.
	if got[0].Timestamp != 120 {
		t.Errorf("expected window to start at 120, got %d", got[0].Timestamp)
	}
}

func TestCheckCooldownBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sym := model.Symbol{Base: "SOL", Quote: "USDT", Market: model.MarketSpot}

	trig := model.Trigger{FilterID: 1, FilterName: "f", FilterType: model.FilterPriceChange, Symbol: sym, TriggeredAt: 1000}
	if _, err := s.SaveTrigger(ctx, trig); err != nil {
		t.Fatalf("save trigger: %v", err)
	}

	cooldownMinutes := 15
	// At t + cooldown*60 - 1: still suppressed.
	ok, err := s.CheckCooldown(ctx, 1, sym, cooldownMinutes, 1000+15*60-1)
	if err != nil {
		t.Fatalf("check cooldown: %v", err)
	}
	if ok {
		t.Error("expected cooldown to suppress one second before boundary")
	}

	// At exactly t + cooldown*60: allowed.
	ok, err = s.CheckCooldown(ctx, 1, sym, cooldownMinutes, 1000+15*60)
	if err != nil {
		t.Fatalf("check cooldown: %v", err)
	}
	if !ok {
		t.Error("expected cooldown to allow exactly at the boundary")
	}
}

func TestGetSettingsNotFoundOnFreshDatabase(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetSettings(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound on a fresh database, got %v", err)
	}

	want := model.Settings{CheckIntervalSeconds: 10, CooldownMinutes: 45, ParseSpot: true, ParseFutures: true}
	if err := s.SaveSettings(context.Background(), want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	got, err := s.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings after save: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestFilterCRUDRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := model.Filter{
		Name:    "pump-5pct",
		Type:    model.FilterPriceChange,
		Enabled: true,
		Config: model.FilterConfig{
			Type: model.FilterPriceChange,
			PriceChange: &model.PriceChangeConfig{
				Market:                model.MarketSpot,
				IntervalMinutes:       15,
				MinPriceChangePercent: 5,
				Direction:             model.DirectionUp,
			},
		},
	}

	id, err := s.CreateFilter(ctx, f)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetFilter(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != f.Name || got.Config.PriceChange.IntervalMinutes != 15 {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	if err := s.ToggleFilter(ctx, id, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	active, err := s.ListActiveFilters(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected 0 active filters after disable, got %d", len(active))
	}
}
