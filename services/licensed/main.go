package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"licensegate/observability"
	"licensegate/observability/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "licensed.toml", "path to licensed config")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(logging.Options{
		Service:     "licensed",
		Environment: cfg.Environment,
		FilePath:    cfg.LogFile,
	})

	shutdownTelemetry, err := observability.InitTelemetry(context.Background(), "licensed", cfg.Environment)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	store, err := NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()

	telegram := NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramToken)
	ledger := NewTronGridClient(cfg.TronGridAPIURL)
	machine := NewSessionMachine(store, cfg)
	bot := NewBot(telegram, machine, logger)
	reconciler := NewReconciler(ledger, store, NewTelegramNotifier(telegram), cfg, logger)

	admin := chi.NewRouter()
	admin.Use(chimw.RequestID)
	admin.Use(chimw.RealIP)
	admin.Use(chimw.Recoverer)
	admin.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	admin.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(admin, "licensed-admin"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go bot.Run(ctx)
	go reconciler.Run(ctx)

	errs := make(chan error, 1)
	go func() {
		logger.Info("licensed admin endpoint listening", "address", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			log.Printf("graceful shutdown failed: %v", err)
		}
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}
}
