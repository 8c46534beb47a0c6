package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pbx-bridge/internal/config"
	"pbx-bridge/internal/db"
	"pbx-bridge/internal/httpapi"
	"pbx-bridge/internal/ingest"
	"pbx-bridge/internal/pbx"
	"pbx-bridge/internal/pbxsync"
	"pbx-bridge/internal/store"
)

func main() {
	cfgPath := flag.String("config", "/etc/pbxbridged.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("db schema: %v", err)
	}

	var parties ingest.PartyDirectory
	if cfg.Policy.AutoLink {
		parties = ingest.NewSQLPartyDirectory(pool)
	}
	engine := ingest.NewEngine(pool, parties, ingest.Options{
		IgnoreInternalCalls: cfg.Policy.IgnoreInternalCalls,
		AutoLink:            cfg.Policy.AutoLink,
		CreateLead:          cfg.Policy.CreateLead,
		DefaultCountryCode:  cfg.DefaultCountryCode,
	})

	var (
		client *pbx.Client
		runner *pbxsync.Runner
	)
	if cfg.Upstream.BaseURL != "" {
		tokens := pbx.NewTokenManager(cfg.Upstream, store.NewCredentialStore(pool), nil)
		client = pbx.NewClient(cfg.Upstream, tokens, nil)
		runner = pbxsync.NewRunner(cfg.Sync, cfg.DefaultCountryCode,
			client, engine, pool, store.NewCursorStore(pool))
	}

	router := httpapi.NewRouter(cfg, pool, engine, client, runner)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("pbx bridge listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	tickCtx, stopTicker := context.WithCancel(context.Background())
	defer stopTicker()
	if runner != nil && cfg.Sync.Enabled && cfg.Sync.IntervalSeconds > 0 {
		go runSyncLoop(tickCtx, runner, time.Duration(cfg.Sync.IntervalSeconds)*time.Second)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stopTicker()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
}

// runSyncLoop is the built-in scheduler for deployments without an
// external cron hitting /api/sync/run.
func runSyncLoop(ctx context.Context, runner *pbxsync.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runner.Run(ctx); err != nil {
				slog.Error("scheduled sync failed", "error", err)
			}
		}
	}
}
