package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courant-io/courant/app/api"
	"github.com/courant-io/courant/app/billing"
	"github.com/courant-io/courant/app/cfg"
	"github.com/courant-io/courant/app/config"
	"github.com/courant-io/courant/app/dedup"
	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/notify"
	"github.com/courant-io/courant/app/preview"
	"github.com/courant-io/courant/app/registry"
	"github.com/courant-io/courant/app/store"
	"github.com/courant-io/courant/app/subscription"
	"github.com/courant-io/courant/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Courant", "version", appCfg.Version)

	st, err := openStore(appCfg)
	if err != nil {
		slog.Error("Failed to open document store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	seenCache, closeCache, err := openSeenCache(appCfg)
	if err != nil {
		slog.Error("Failed to open seen-identity cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	// Core components, wired explicitly so each can be tested with fakes.
	fetcher := feed.NewFetcher(appCfg.UserAgent)
	index := subscription.NewIndex(st)
	gate := billing.NewGate(st, nil)
	reg := registry.New(st, gate)
	gate.SetCounter(reg)
	payments := billing.NewService(st, gate, appCfg.PaymentSecretKey, appCfg.PaymentWebhookKey)
	deduplicator := dedup.New(seenCache)
	dispatcher := notify.NewDispatcher(notify.NewWebhookTransport(appCfg.ChatWebhookBase))
	extractor := preview.NewExtractor(appCfg.UserAgent)

	ctx := context.Background()

	if err := index.Load(ctx); err != nil {
		slog.Error("Failed to load destinations", "error", err)
		os.Exit(1)
	}

	if err := seedSources(ctx, appCfg.SourcesDir, reg); err != nil {
		slog.Error("Failed to load bootstrap sources", "error", err)
		os.Exit(1)
	}

	scheduler := tasks.NewScheduler(reg, index, fetcher, deduplicator, dispatcher,
		time.Duration(appCfg.SweepInterval)*time.Second, appCfg.WorkerCount)
	scheduler.Start()
	slog.Info("Scheduler started", "interval_seconds", appCfg.SweepInterval, "workers", appCfg.WorkerCount)

	handler := api.NewHandler(reg, index, fetcher, gate, payments, extractor, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down")

	// Drain in-flight sweeps first so deliveries finish before the process
	// exits, then stop accepting HTTP traffic.
	scheduler.Stop()
	slog.Info("Scheduler stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}

func openStore(appCfg *cfg.Cfg) (store.Store, error) {
	if appCfg.StoreKind == "memory" {
		slog.Warn("Using in-memory document store; state will not survive restarts")
		return store.NewMemory(), nil
	}

	pg, err := store.NewPostgres(appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		return nil, err
	}

	version, dirty, err := store.RunMigrations(pg)
	if err != nil {
		pg.Close()
		return nil, err
	}
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)

	return pg, nil
}

func openSeenCache(appCfg *cfg.Cfg) (dedup.SeenCache, func(), error) {
	if appCfg.RedisAddr == "" {
		return dedup.NewMemoryCache(), func() {}, nil
	}

	cache, err := dedup.NewRedisCache(appCfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Connected to Redis", "addr", appCfg.RedisAddr)
	return cache, func() { cache.Close() }, nil
}

func seedSources(ctx context.Context, sourcesDir string, reg *registry.Registry) error {
	loader := config.NewLoader(sourcesDir)
	sources, err := loader.LoadAll()
	if err != nil {
		return err
	}

	for _, source := range sources {
		if err := reg.Seed(ctx, source); err != nil {
			slog.Warn("Failed to seed bootstrap source", "source", source.Key(), "error", err)
			continue
		}
		slog.Info("Seeded bootstrap source", "source", source.Key(), "url", source.URL)
	}

	if len(sources) > 0 {
		slog.Info("Bootstrap sources loaded", "count", len(sources))
	}
	return nil
}
