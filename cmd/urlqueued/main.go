package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/urlqueue/urlqueue/internal/api"
	"github.com/urlqueue/urlqueue/internal/bus"
	"github.com/urlqueue/urlqueue/internal/config"
	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/queue"
	"github.com/urlqueue/urlqueue/internal/webhook"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// A missing .env is fine: the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	store, err := job.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, closeEvents, err := newPublisher(cfg)
	if err != nil {
		slog.Error("events", "error", err)
		os.Exit(1)
	}
	defer closeEvents()

	checkDownloader(cfg.DownloaderPath)

	q := queue.New(cfg, store, events)

	if err := q.Recovery(ctx); err != nil {
		slog.Error("recovery", "error", err)
		os.Exit(1)
	}
	q.Start(ctx)

	mux := http.NewServeMux()
	h := api.NewHandler(store, q)
	h.RegisterRoutes(mux)

	handler := api.Chain(mux,
		api.CORS(cfg.CORSOrigins),
		api.RequestID,
		api.Logging,
		api.RateLimit(cfg.RateLimit),
	)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("urlqueued listening", "addr", cfg.ListenAddr, "downloader", cfg.DownloaderPath, "concurrency", cfg.Concurrency)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newPublisher builds the sink for job status events from the configured
// NATS server and webhook. With neither set, events are dropped.
func newPublisher(cfg *config.Server) (bus.Publisher, func(), error) {
	var (
		sinks   bus.Multi
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, nc.Close)
		sinks = append(sinks, nc.Publisher(cfg.NATSSubject))
		slog.Info("publishing job events to nats", "subject", cfg.NATSSubject+".>")
	}

	if cfg.WebhookURL != "" {
		n, err := webhook.New(cfg.WebhookURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, n.Close)
		sinks = append(sinks, n)
		slog.Info("posting job events to webhook")
	}

	if len(sinks) == 0 {
		return bus.Nop{}, closeAll, nil
	}
	return sinks, closeAll, nil
}
