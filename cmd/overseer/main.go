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

	ovhttp "github.com/revloop/overseer/internal/adapter/http"
	ovnats "github.com/revloop/overseer/internal/adapter/nats"
	"github.com/revloop/overseer/internal/adapter/natskv"
	"github.com/revloop/overseer/internal/adapter/otel"
	"github.com/revloop/overseer/internal/adapter/ristretto"
	"github.com/revloop/overseer/internal/adapter/swarm"
	"github.com/revloop/overseer/internal/adapter/ws"
	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/logger"
	"github.com/revloop/overseer/internal/resilience"
	"github.com/revloop/overseer/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFrom(config.DefaultConfigFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_url", cfg.NATS.URL,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	shutdownTelemetry, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	bus, err := ovnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = bus.Drain() }()

	kv, err := bus.KeyValue(ctx, cfg.NATS.KVBucket)
	if err != nil {
		return fmt.Errorf("nats kv: %w", err)
	}
	store := natskv.New(kv)

	dedup, err := ristretto.NewDedup(cfg.Tracker.DedupCacheMB << 20)
	if err != nil {
		return fmt.Errorf("dedup cache: %w", err)
	}

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services, in dependency order ---

	hub := ws.NewHub()
	alerts := service.NewAlertRegistry(cfg.Supervisor.MaxAlerts, cfg.Supervisor.AlertRetention, bus, hub, metrics)
	coord := swarm.NewCoordinator(bus)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	orch := service.NewOrchestrator(cfg.Orchestrator, store, bus, alerts, hub, metrics)
	deleg := service.NewDelegation(cfg.Delegation, store, bus, alerts, hub, metrics)
	wf, err := service.NewWorkflow(orch, store, bus, alerts, hub, metrics)
	if err != nil {
		return fmt.Errorf("workflow engine: %w", err)
	}
	tracker := service.NewTracker(cfg.Tracker, store, alerts, dedup)
	swarmSvc, err := service.NewSwarm(cfg.Swarm, orch, deleg, wf, tracker, coord, bus, store, alerts, breaker, metrics)
	if err != nil {
		return fmt.Errorf("swarm integration: %w", err)
	}

	sched := service.NewScheduler()
	sup, err := service.NewSupervisor(*cfg, service.Components{
		Orchestrator: orch,
		Delegation:   deleg,
		Workflow:     wf,
		Tracker:      tracker,
		Swarm:        swarmSvc,
	}, sched, alerts, store, hub)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	sup.Start(ctx)

	cancelRequests, err := swarmSvc.Listen(ctx)
	if err != nil {
		return fmt.Errorf("swarm request subscriber: %w", err)
	}
	defer cancelRequests()

	// --- HTTP ---

	handlers := &ovhttp.Handlers{
		Orchestrator: orch,
		Delegation:   deleg,
		Workflow:     wf,
		Tracker:      tracker,
		Swarm:        swarmSvc,
		Supervisor:   sup,
		Alerts:       alerts,
		Hub:          hub,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(ovhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(ovhttp.SecurityHeaders)
	r.Use(ovhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	ovhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sup.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown", "error", err)
	}
	return nil
}
