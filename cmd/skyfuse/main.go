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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/skyfuse/skyfuse/internal/adapter/a2a"
	"github.com/skyfuse/skyfuse/internal/adapter/classifier"
	sfhttp "github.com/skyfuse/skyfuse/internal/adapter/http"
	sfmcp "github.com/skyfuse/skyfuse/internal/adapter/mcp"
	sfnats "github.com/skyfuse/skyfuse/internal/adapter/nats"
	skotel "github.com/skyfuse/skyfuse/internal/adapter/otel"
	"github.com/skyfuse/skyfuse/internal/adapter/postgres"
	"github.com/skyfuse/skyfuse/internal/adapter/ristretto"
	"github.com/skyfuse/skyfuse/internal/adapter/webhook"
	"github.com/skyfuse/skyfuse/internal/adapter/ws"
	"github.com/skyfuse/skyfuse/internal/config"
	"github.com/skyfuse/skyfuse/internal/logger"
	"github.com/skyfuse/skyfuse/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"specialists", len(cfg.Discovery.Endpoints),
	)

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := sfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	responseCache, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer responseCache.Close()

	var metrics *skotel.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := skotel.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
		if metrics, err = skotel.NewMetrics(); err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	events := postgres.NewEventStore(pool)

	client := a2a.NewClient(cfg.Router.DispatchTimeout, cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown)
	registry := service.NewRegistry(cfg.Discovery, client, store)
	stopDiscovery := registry.Start(ctx)
	defer stopDiscovery()

	notify, err := webhook.New(cfg.Notify)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	manager := service.NewManager(service.ManagerDeps{
		Store:    store,
		Events:   events,
		Queue:    queue,
		Hub:      hub,
		Notifier: notify,
		Metrics:  metrics,
	})
	routerSvc := service.NewRouter(cfg.Router, registry, client, classifier.NewRules(), responseCache, metrics)
	orch := service.NewOrchestrator(routerSvc, manager)
	auth := service.NewAuthService(cfg.Auth)

	// --- HTTP ---

	handlers := sfhttp.NewHandlers(cfg.Agent, orch, manager, registry, auth, notify)
	handlers.AddHealthCheck("postgres", pool.Ping)
	handlers.AddHealthCheck("nats", queue.Ping)

	r := chi.NewRouter()
	r.Use(sfhttp.RequestID)
	r.Use(sfhttp.Logger)
	r.Use(sfhttp.SecurityHeaders)
	r.Use(sfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Otel.Enabled {
		r.Use(skotel.HTTPMiddleware(cfg.Logging.Service))
	}

	r.Get("/ws", hub.HandleWS)
	sfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: task streams are long-lived SSE connections.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// --- MCP ---

	var mcpSrv *sfmcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = sfmcp.NewServer(sfmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    cfg.Agent.Name,
			Version: cfg.Agent.Version,
		}, sfmcp.ServerDeps{
			Specialists: registry,
			Tasks:       manager,
			Runner:      orch,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Error("mcp shutdown failed", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}
