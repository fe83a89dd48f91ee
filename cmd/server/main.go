package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/http/router"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/storage/memory"
	redisstorage "github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/storage/redis"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/upstream/openai"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/config"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("[MAIN] Failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, stats, closeFn, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		slog.Error("[MAIN] Failed to init storage", "type", cfg.Storage.Type, "error", err)
		os.Exit(1)
	}
	defer closeFn()

	gate, err := services.NewAdmissionGate(storage, services.GateConfig{Rule: cfg.Quota.Rule})
	if err != nil {
		slog.Error("[MAIN] Failed to create admission gate", "error", err)
		os.Exit(1)
	}

	if cfg.Upstream.APIKey == "" {
		slog.Warn("[MAIN] OPENAI_API_KEY is not set; solve requests will fail")
	}
	upstream, err := openai.New(openai.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		Model:          cfg.Upstream.Model,
		RetryAttempts:  cfg.Upstream.RetryAttempts,
		MaxConcurrency: cfg.Upstream.MaxConcurrency,
		RPS:            cfg.Upstream.RPS,
		Burst:          cfg.Upstream.Burst,
	})
	if err != nil {
		slog.Error("[MAIN] Failed to create upstream client", "error", err)
		os.Exit(1)
	}

	solver, err := services.NewSolverService(upstream, services.SolverConfig{Timeout: cfg.Upstream.Timeout})
	if err != nil {
		slog.Error("[MAIN] Failed to create solver", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router.New(router.Deps{
			Gate:                  gate,
			Solver:                solver,
			Stats:                 stats,
			TrustForwardedHeaders: cfg.Server.TrustForwardedHeaders,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Upstream.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	slog.Info("[MAIN] Server started",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Type,
		"limit", cfg.Quota.Rule.Limit,
		"window", cfg.Quota.Rule.Window,
		"model", cfg.Upstream.Model,
	)

	select {
	case <-ctx.Done():
		slog.Info("[MAIN] Shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[MAIN] Server error", "error", err)
			closeFn()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("[MAIN] Graceful shutdown failed", "error", err)
	}
}

func initStorage(ctx context.Context, cfg config.StorageConfig) (ports.QuotaStorage, ports.StatsStore, func(), error) {
	switch cfg.Type {
	case "redis":
		redisCfg := redisstorage.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		storage, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		stats := redisstorage.NewStatsStore(storage.Client())
		return storage, stats, func() {
			if err := storage.Close(); err != nil {
				slog.Error("[MAIN] Failed to close redis storage", "error", err)
			}
		}, nil
	case "memory":
		storage := memory.New()
		storage.StartJanitor(ctx)
		return storage, memory.NewStatsStore(), func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
