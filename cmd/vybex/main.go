package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/basel-ax/vybex/internal/api"
	"github.com/basel-ax/vybex/internal/config"
	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/infrastructure/kling"
	"github.com/basel-ax/vybex/internal/infrastructure/segmind"
	"github.com/basel-ax/vybex/internal/repository"
	"github.com/basel-ax/vybex/internal/service"
	_ "github.com/lib/pq"
)

func main() {
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(context.Background()); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog.Info("Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.TryOnDir, cfg.Storage.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	provider := newProvider(cfg)
	slog.Info("Try-on provider initialized", "provider", provider.Name())

	temp := service.NewTempFileManager(cfg.Storage.TempDir)
	tryOn := service.NewTryOnService(provider, temp, slog.Default())

	var wardrobe *service.WardrobeService
	if cfg.DatabaseEnabled() {
		slog.Info("Initializing database connection...")
		db, err := sql.Open("postgres", cfg.GetDSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
		db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}
		slog.Info("Database connection established")

		repo := repository.NewPostgresWardrobeRepository(db)
		wardrobe = service.NewWardrobeService(repo, tryOn, temp, cfg.Storage.UploadDir, cfg.Storage.TryOnDir, slog.Default())
	} else {
		slog.Warn("DB_HOST not set, wardrobe routes disabled")
	}

	janitor := service.NewTempJanitor(cfg.Storage.TempDir, cfg.JanitorMaxAge, slog.Default())
	if err := janitor.Start(cfg.JanitorSchedule); err != nil {
		return err
	}
	defer janitor.Stop()

	handler := api.NewHandler(tryOn, wardrobe, cfg.Storage, slog.Default())
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(handler),
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server starting...", "port", cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		slog.Info("Starting graceful shutdown...", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}
		slog.Info("Server stopped")
	}

	return nil
}

// newProvider builds the adapter selected by TRYON_PROVIDER. Both share one
// HTTP client so the request timeout is configured in a single place.
func newProvider(cfg *config.Config) domain.TryOnProvider {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	switch cfg.Provider {
	case config.ProviderSegmind:
		client := segmind.NewClient(cfg.Segmind.BaseURL, cfg.Segmind.APIKey, httpClient)
		return service.NewSyncProvider(client, service.SyncProviderConfig{
			Steps:    cfg.DefaultSteps,
			Guidance: cfg.DefaultGuidance,
			Seed:     cfg.DefaultSeed,
		}, slog.Default())
	default:
		client := kling.NewClient(cfg.Kling.BaseURL, cfg.Kling.APIKey, cfg.Kling.SecretKey, httpClient)
		return service.NewAsyncProvider(client, service.AsyncProviderConfig{
			Model:             cfg.Kling.Model,
			CheckInterval:     cfg.CheckInterval,
			GenerationTimeout: cfg.GenerationTimeout,
		}, slog.Default())
	}
}
