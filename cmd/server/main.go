// CodeSight server: timed coding assessments with an adaptive intervention
// scheduler, sandboxed code execution, and per-session event streams.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/codesight-dev/codesight/internal/api"
	"github.com/codesight-dev/codesight/internal/config"
	"github.com/codesight-dev/codesight/internal/generator"
	"github.com/codesight-dev/codesight/internal/identity"
	"github.com/codesight-dev/codesight/internal/middleware"
	"github.com/codesight-dev/codesight/internal/sandbox"
	"github.com/codesight-dev/codesight/internal/scheduler"
	"github.com/codesight-dev/codesight/internal/signallog"
	"github.com/codesight-dev/codesight/internal/store"
	"github.com/codesight-dev/codesight/internal/ws"
	"github.com/codesight-dev/codesight/web"
)

func main() {
	// Structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load .env file if present (development convenience).
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize storage.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database ping failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Initialize the execution sandbox. Docker being down is not fatal at
	// startup; /api/health surfaces it and runs fail with 502 until it
	// recovers.
	runner, err := sandbox.NewDockerRunner(cfg.Sandbox, logger)
	if err != nil {
		slog.Error("Failed to initialize sandbox runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Ping(context.Background()); err != nil {
		slog.Warn("Docker unreachable, code execution unavailable", "error", err)
	} else {
		slog.Info("Sandbox ready", "image", cfg.Sandbox.Image, "runtime", cfg.Sandbox.Runtime)
	}

	// Initialize the question/hint generator (optional). Without a key the
	// schedulers still run; dispatches fail soft and release their quota.
	var gen generator.Generator
	var eval generator.Evaluator
	if cfg.Generator.APIKey != "" {
		client, err := generator.NewGeminiClient(context.Background(), cfg.Generator.APIKey, cfg.Generator.Model, logger)
		if err != nil {
			slog.Error("Failed to initialize generator client", "error", err)
			os.Exit(1)
		}
		gen = client
		eval = client
		slog.Info("Generator enabled", "model", cfg.Generator.Model)
	} else {
		slog.Warn("GEMINI_API_KEY not set, interventions will not produce content")
	}

	// Signal ledger.
	recorder, err := signallog.NewRecorder(signallog.Config{
		Enabled:   cfg.SignalLog.Enabled,
		Dir:       cfg.SignalLog.Dir,
		QueueSize: cfg.SignalLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize signal recorder", "error", err)
		os.Exit(1)
	}
	defer recorder.Close()

	// Scheduler registry and event stream hub. The registry notifies the
	// hub; the hub resolves sessions through the registry, so wire the hub
	// first and attach the registry once it exists.
	hub := api.NewStreamHub(logger)
	registry := scheduler.NewRegistry(cfg.Scheduler, scheduler.Deps{
		Generator: gen,
		Evaluator: eval,
		Signals:   recorder,
		Notifier:  hub,
		Logger:    logger,
	})
	defer registry.Close()
	hub.SetRegistry(registry)

	problems := api.NewProblemSet()
	handler := api.NewHandler(registry, runner, repo, problems, logger)
	handler.SetStreamHub(hub)
	editSocket := ws.NewEditSocketHandler(registry, logger)

	// Router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.Health)
		r.Get("/problems", handler.ListProblems)
		r.Post("/sessions", handler.StartSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/edit", handler.RecordEdit)
			r.Post("/run", handler.RunCode)
			r.Post("/hint", handler.RequestHint)
			r.Post("/interventions/{interventionID}/resolve", handler.ResolveIntervention)
			r.Post("/submit", handler.SubmitSession)
			r.Get("/stream", hub.Serve)
			r.Get("/ws", editSocket.Serve)
		})
		r.Get("/submissions/{sessionID}", handler.GetSubmission)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// SSE connections need long write windows; no WriteTimeout, keepalives
	// run every 10s.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
