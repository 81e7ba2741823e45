// Package metrics exposes Prometheus counters/histograms/gauges plus a
// /healthz liveness endpoint. Adapted from the teacher's
// internal/metrics/metrics.go: same Metrics/HealthStatus/Server shapes,
// series renamed from tick-engine/indicator concerns to the screener's
// own (ticks, candle finalizations, filter evaluations, trigger emits,
// websocket reconnects, sweep durations).
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus series the screener registers.
type Metrics struct {
	TicksTotal          *prometheus.CounterVec // labels: symbol
	CandlesFinalized    *prometheus.CounterVec // labels: symbol
	WSReconnects        *prometheus.CounterVec // labels: symbol, reason
	BackfillAttempts    *prometheus.CounterVec // labels: symbol, outcome
	FilterEvaluations   *prometheus.CounterVec // labels: filter_type
	TriggerEmits        *prometheus.CounterVec // labels: filter_type
	NotifyFailures      prometheus.Counter
	ChartBroadcastDrops prometheus.Counter

	SweepDuration  *prometheus.HistogramVec // labels: target=candles|triggers
	SweepRowsTotal *prometheus.CounterVec   // labels: target

	StoreWriteDur prometheus.Histogram
	CircuitState  *prometheus.GaugeVec // labels: exchange; 0=closed,1=open,2=half-open

	WatchedSymbols prometheus.Gauge
	ActiveFilters  prometheus.Gauge
	ChartClients   prometheus.Gauge
}

// NewMetrics registers and returns every series.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_ticks_total",
			Help: "Total ticker frames received per symbol",
		}, []string{"symbol"}),
		CandlesFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_candles_finalized_total",
			Help: "Total 1-minute candles finalized per symbol",
		}, []string{"symbol"}),
		WSReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_ws_reconnects_total",
			Help: "WebSocket reconnect attempts per symbol",
		}, []string{"symbol", "reason"}),
		BackfillAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_backfill_attempts_total",
			Help: "REST OHLCV backfill attempts per symbol",
		}, []string{"symbol", "outcome"}),
		FilterEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_filter_evaluations_total",
			Help: "Filter evaluations performed, by filter type",
		}, []string{"filter_type"}),
		TriggerEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_trigger_emits_total",
			Help: "Triggers emitted, by filter type",
		}, []string{"filter_type"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_notify_failures_total",
			Help: "Notification dispatch failures",
		}),
		ChartBroadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_chart_broadcast_drops_total",
			Help: "Chart messages dropped due to a full client send buffer",
		}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screener_sweep_duration_seconds",
			Help:    "Background sweep duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		SweepRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_sweep_rows_total",
			Help: "Rows deleted by background sweeps",
		}, []string{"target"}),
		StoreWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_store_write_duration_seconds",
			Help:    "SQLite write latency",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screener_circuit_breaker_state",
			Help: "Exchange circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"exchange"}),
		WatchedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_watched_symbols",
			Help: "Number of symbols currently watched",
		}),
		ActiveFilters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_active_filters",
			Help: "Number of enabled filters",
		}),
		ChartClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_chart_clients",
			Help: "Number of connected chart WebSocket clients",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.CandlesFinalized,
		m.WSReconnects,
		m.BackfillAttempts,
		m.FilterEvaluations,
		m.TriggerEmits,
		m.NotifyFailures,
		m.ChartBroadcastDrops,
		m.SweepDuration,
		m.SweepRowsTotal,
		m.StoreWriteDur,
		m.CircuitState,
		m.WatchedSymbols,
		m.ActiveFilters,
		m.ChartClients,
	)

	return m
}

// IncTicks records one ticker frame received for symbol.
func (m *Metrics) IncTicks(symbol string) { m.TicksTotal.WithLabelValues(symbol).Inc() }

// IncCandlesFinalized records one finalized candle for symbol.
func (m *Metrics) IncCandlesFinalized(symbol string) { m.CandlesFinalized.WithLabelValues(symbol).Inc() }

// IncWSReconnect records a reconnect attempt for symbol, labeled by reason.
func (m *Metrics) IncWSReconnect(symbol, reason string) {
	m.WSReconnects.WithLabelValues(symbol, reason).Inc()
}

// IncBackfillAttempt records a REST OHLCV backfill attempt, labeled by outcome.
func (m *Metrics) IncBackfillAttempt(symbol, outcome string) {
	m.BackfillAttempts.WithLabelValues(symbol, outcome).Inc()
}

// SetWatchedSymbols reports the current run-scoped symbol count.
func (m *Metrics) SetWatchedSymbols(n int) { m.WatchedSymbols.Set(float64(n)) }

// HealthStatus is the liveness/readiness snapshot served at /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	ExchangeConnected bool      `json:"exchange_connected"`
	LastTickTime      time.Time `json:"last_tick_time"`
	SQLiteOK          bool      `json:"sqlite_ok"`
	RedisConnected    bool      `json:"redis_connected,omitempty"`

	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a fresh HealthStatus stamped with the current time.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetExchangeConnected(v bool) {
	h.mu.Lock()
	h.ExchangeConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckSQLite(probeCtx, sqlDB)
				cancel()
			}
		}
	}()
}

func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.ExchangeConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		ExchangeConnected bool    `json:"exchange_connected"`
		LastTickTime      string  `json:"last_tick_time"`
		TickAge           string  `json:"tick_age"`
		SQLiteOK          bool    `json:"sqlite_ok"`
		SQLiteLatencyMs   float64 `json:"sqlite_latency_ms"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		ExchangeConnected: h.ExchangeConnected,
		LastTickTime:      h.LastTickTime.Format(time.RFC3339),
		TickAge:           tickAge,
		SQLiteOK:          h.SQLiteOK,
		SQLiteLatencyMs:   h.SQLiteLatencyMs,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
	log    *slog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		log:    log,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("metrics server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
