// Command screener is the crypto market screener's composition root:
// it wires the exchange capability, durable store, rolling cache,
// filter engine, fanout and chart gateway together and runs until a
// termination signal arrives. Grounded on the teacher's
// cmd/mdengine/main.go wiring/shutdown shape (env-driven setup,
// metrics+health server, signal-triggered graceful stop).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptoscreener/config"
	"cryptoscreener/internal/api"
	"cryptoscreener/internal/cache"
	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/exchange"
	"cryptoscreener/internal/fanout"
	"cryptoscreener/internal/filter"
	"cryptoscreener/internal/gateway"
	"cryptoscreener/internal/logger"
	"cryptoscreener/internal/metrics"
	"cryptoscreener/internal/model"
	"cryptoscreener/internal/notify"
	"cryptoscreener/internal/screener"
	"cryptoscreener/internal/store"
	"cryptoscreener/internal/store/sqlite"
)

func main() {
	log := logger.Init("screener", slog.LevelInfo)
	log.Info("starting")

	cfg := config.Load()

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	st, err := sqlite.Open(cfg.SQLitePath, log)
	if err != nil {
		log.Error("sqlite init failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("sqlite store ready", "path", cfg.SQLitePath)

	settings, err := st.GetSettings(context.Background())
	if errors.Is(err, store.ErrNotFound) {
		settings = model.Settings{
			CheckIntervalSeconds: cfg.CheckDelaySeconds,
			CooldownMinutes:      cfg.CooldownMinutes,
			ParseSpot:            cfg.ParseSpot,
			ParseFutures:         cfg.ParseFutures,
		}
		if err := st.SaveSettings(context.Background(), settings); err != nil {
			log.Error("seeding initial settings failed", "err", err)
			os.Exit(1)
		}
		log.Info("seeded initial settings", "check_delay_seconds", settings.CheckIntervalSeconds)
	} else if err != nil {
		log.Error("loading initial settings failed", "err", err)
		os.Exit(1)
	}
	settingsSource := func() model.Settings {
		s, err := st.GetSettings(context.Background())
		if err != nil {
			log.Warn("settings read failed, using last-known values", "err", err)
			return settings
		}
		settings = s
		return s
	}

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis ping failed, continuing without it", "err", err)
			rdb = nil
		} else {
			log.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}
	settingsMirror := gateway.NewSettingsStore(rdb, log)
	if rdb != nil {
		if s, ok := settingsMirror.Load(context.Background()); ok {
			settings = s
		}
	}

	var notifier notify.Notifier
	if cfg.NotifierConfigured() {
		notifier = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
		log.Info("telegram notifier configured")
	} else {
		notifier = notify.NewLogNotifier(log)
		log.Info("no telegram credentials, using log notifier")
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(context.Background(), st.DB(), 10*time.Second)

	cch := cache.New()
	hub := gateway.NewHub(log)

	sink := fanout.New(st, cch, hub, notifier, log)
	engine := filter.New(st, sink, log, settingsSource)

	ex := exchange.New(exchange.Config{
		RequestTimeout:   cfg.RequestTimeout,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		RetryDelay:       cfg.RetryDelay,
		Testnet:          cfg.Testnet,
	}, log)

	orch := screener.New(ex, st, cch, engine, hub, prom, log, settingsSource)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := orch.Start(ctx, cfg.TopNSymbols); err != nil {
		log.Error("orchestrator start failed", "err", err)
		os.Exit(1)
	}
	health.SetExchangeConnected(true)
	log.Info("orchestrator started", "top_n", cfg.TopNSymbols)

	apiHandlers := api.New(st, cch, notifier, clock.Real{}, log)
	mux := api.NewRouter(apiHandlers)
	mux.HandleFunc("/ws", hub.UpgradeHandler)
	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: mux}
	go func() {
		log.Info("api server listening", "addr", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server error", "err", err)
		}
	}()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, log)
	metricsSrv.Start()

	<-sigCh
	log.Info("shutdown signal received, cleaning up")
	cancel()
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	if rdb != nil {
		rdb.Close()
	}

	log.Info("shutdown complete")
}
