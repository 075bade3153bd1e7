// Package main is the entry point for the docgen API server.
//
// It loads configuration, builds the document generation pipeline (template
// store, renderer, converter, rendering engine), selects the rate-limit and
// usage stores (in-memory by default, Postgres-backed when DATABASE_URL is
// set), assembles the HTTP server with the core chassis, and listens for
// requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"docgen/internal/api/handlers"
	"docgen/internal/billing"
	"docgen/internal/config"
	"docgen/internal/convert"
	"docgen/internal/core"
	"docgen/internal/db"
	"docgen/internal/ratelimit"
	"docgen/internal/render"
	"docgen/internal/usage"
)

// pruneInterval controls how often stale in-memory rate windows are swept.
const pruneInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("docgen API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Identity and plan resolution.
	keys := billing.NewStaticKeyService()
	plans := billing.NewStaticPlanRegistry()

	// Store selection: Postgres-backed stores when DATABASE_URL is set so
	// multiple nodes share rate and usage state, in-memory otherwise.
	var (
		rateStore   ratelimit.Store
		ledger      usage.Ledger
		memoryStore *ratelimit.MemoryStore
		pool        *pgxpool.Pool
	)
	if cfg.Database.URL != "" {
		pool, err = db.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensuring database schema: %w", err)
		}
		rateStore = db.NewRateLimitRepo(pool)
		ledger = db.NewUsageLedgerRepo(pool)
		logger.Info("using postgres-backed stores")
	} else {
		memoryStore = ratelimit.NewMemoryStore()
		rateStore = memoryStore
		ledger = usage.NewMemoryLedger()
		logger.Info("using in-memory stores")
	}

	meter := usage.NewMeter(keys, plans, ledger)

	// Document generation pipeline.
	templates, err := render.NewEmbeddedStore()
	if err != nil {
		return fmt.Errorf("loading sample templates: %w", err)
	}
	renderer := render.NewRenderer()

	engineOpts := []convert.BrowserEngineOption{
		convert.WithLaunchTimeout(cfg.Engine.LaunchTimeout),
		convert.WithSettleTimeout(cfg.Engine.SettleTimeout),
	}
	if cfg.Engine.BrowserBin != "" {
		engineOpts = append(engineOpts, convert.WithBrowserBin(cfg.Engine.BrowserBin))
	}
	engine := convert.NewBrowserEngine(logger, engineOpts...)
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("rendering engine shutdown error", "error", err)
		}
	}()
	converter := convert.NewConverter(engine, logger)

	// Build the server chassis.
	srv, err := core.NewServer(cfg, logger, keys, plans)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.RateLimitStore = rateStore

	docHandler := handlers.NewDocumentHandler(renderer, converter, meter, templates, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, docHandler.RegisterRoutes)

	srv.HealthProbes = append(srv.HealthProbes, engineProbe{engine})
	if pool != nil {
		srv.HealthProbes = append(srv.HealthProbes, databaseProbe{pool})
	}

	srv.MountRoutes()

	return serve(ctx, srv, cfg, memoryStore, logger)
}

// serve runs the HTTP listener plus background maintenance until the context
// is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, memoryStore *ratelimit.MemoryStore, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Writes stay open long enough for a slow PDF conversion to finish.
		WriteTimeout: cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Sweep expired in-memory rate windows so abandoned keys do not
	// accumulate. The Postgres store is pruned by the database instead.
	if memoryStore != nil {
		g.Go(func() error {
			ticker := time.NewTicker(pruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if removed := memoryStore.Prune(2); removed > 0 {
						logger.Debug("pruned stale rate windows", "removed", removed)
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}

// engineProbe reports rendering engine health without forcing a launch: an
// engine that has not been needed yet is healthy.
type engineProbe struct {
	engine *convert.BrowserEngine
}

func (p engineProbe) Name() string { return "engine" }

func (p engineProbe) Check(_ context.Context) error {
	if !p.engine.Healthy() {
		return fmt.Errorf("rendering engine unresponsive")
	}
	return nil
}

// databaseProbe verifies connectivity to the Postgres pool.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p databaseProbe) Name() string { return "database" }

func (p databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

var (
	_ core.HealthProbe = engineProbe{}
	_ core.HealthProbe = databaseProbe{}

	_ handlers.TemplateRenderer  = (*render.Renderer)(nil)
	_ handlers.DocumentConverter = (*convert.Converter)(nil)
	_ handlers.UsageGate         = (*usage.Meter)(nil)
)
