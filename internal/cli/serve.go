package cli

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

	"github.com/spf13/cobra"

	"github.com/leibridge/leibridge/internal/api"
	"github.com/leibridge/leibridge/internal/api/handler"
	mw "github.com/leibridge/leibridge/internal/api/middleware"
	"github.com/leibridge/leibridge/internal/cache"
	"github.com/leibridge/leibridge/internal/config"
	"github.com/leibridge/leibridge/internal/fmr"
	"github.com/leibridge/leibridge/internal/pipeline"
	"github.com/leibridge/leibridge/internal/registry"
	"github.com/leibridge/leibridge/internal/store"
)

const shutdownTimeout = 30 * time.Second

var migrationsDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the validation gateway API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&migrationsDir, "migrations", "migrations", "directory holding SQL migrations")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupServerLogging()

	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "fmr_host", cfg.FMR.Host, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and pipeline collaborators
	pgStore := store.NewPostgresStore(pool)

	validator, err := fmr.NewClient(fmr.Config{
		Host:      cfg.FMR.Host,
		Port:      cfg.FMR.Port,
		UseHTTPS:  cfg.FMR.UseHTTPS,
		Delimiter: cfg.FMR.Delimiter,
		Timeout:   cfg.FMR.HTTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("create fmr client: %w", err)
	}

	reg := registry.NewHTTPClient(cfg.Registry.Endpoint, redisCache, cfg.Registry.Timeout)

	opts := pipelineOptions(cfg, cfg.Pipeline.OutputPath)
	opts.Store = pgStore
	svc := pipeline.NewService(validator, reg, opts)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Server.APIKeyHash),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMin),

		HealthHandler:   handler.NewHealthHandler(pgStore, redisCache),
		ValidateHandler: handler.NewValidateHandler(svc),
		ListRunsHandler: handler.NewListRunsHandler(pgStore),
		GetRunHandler:   handler.NewGetRunHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
