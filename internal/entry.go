// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notedex/internal/api"
	"github.com/starford/notedex/internal/indexer"
	"github.com/starford/notedex/internal/mcpserver"
	"github.com/starford/notedex/internal/noteservice"
	"github.com/starford/notedex/internal/sse"
	"github.com/starford/notedex/internal/storage"
	"github.com/starford/notedex/internal/watcher"
)

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger, reg, release := app.setup(os.Stdout)
	defer release()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.String("index_driver", cfg.Index.Driver),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	svc := noteservice.NewService(reg, logger)
	if err := svc.InitIndex(ctx, cfg.Index.Path); err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	db, err := reg.Acquire(ctx, cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}

	broker := sse.NewBroker(time.Duration(cfg.Watch.SSEThrottleMS) * time.Millisecond)
	defer broker.Close()

	ix := indexer.New(db, store,
		indexer.WithLogger(logger),
		indexer.WithCallback(broker.PublishNoteEvent),
		indexer.WithReconcileDelay(time.Duration(cfg.Watch.ReconcileDelayMS)*time.Millisecond),
	)

	// Run initial sync.
	if _, err := ix.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(cfg, svc, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher feeding the indexer.
	if cfg.Watch.Enabled {
		n, err := watcher.New(gCtx, store, logger)
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
		g.Go(func() error {
			defer n.Close()
			return ix.Run(gCtx, n.Events())
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher loop stops with the server.
var errShutdown = errors.New("shutdown")

// ServeMCP serves the index tools over stdio. Logs go to stderr, which
// keeps stdout free for the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger, reg, release := app.setup(os.Stderr)
	defer release()

	svc := noteservice.NewService(reg, logger)
	if err := svc.InitIndex(ctx, cfg.Index.Path); err != nil {
		return fmt.Errorf("init index: %w", err)
	}

	logger.Info("MCP server starting", slog.String("index_path", cfg.Index.Path))
	return mcpserver.New(svc, cfg.Index.Path, cfg.Vault.Path).ServeStdio()
}

// newHTTPHandler builds the root router: health probes and metrics outside
// auth, the API and SSE stream under /api.
func newHTTPHandler(cfg *Config, svc *noteservice.Service, broker *sse.Broker) http.Handler {
	h := api.NewHandler(svc, cfg.Index.Path, cfg.Vault.Path)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		st, err := svc.Status(req.Context(), cfg.Index.Path)
		if err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
		if !st.Aligned() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "index": st})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok", "index": st})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	return r
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
