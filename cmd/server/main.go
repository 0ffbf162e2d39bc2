package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tidycsv/internal/auth"
	"github.com/JonMunkholm/tidycsv/internal/config"
	"github.com/JonMunkholm/tidycsv/internal/core"
	"github.com/JonMunkholm/tidycsv/internal/history"
	"github.com/JonMunkholm/tidycsv/internal/logging"
	"github.com/JonMunkholm/tidycsv/internal/storage"
	"github.com/JonMunkholm/tidycsv/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"upload_max_file_size", cfg.Upload.MaxFileSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Upload history
	recorder, err := history.Open(ctx, history.Options{
		Driver:          cfg.Database.Driver,
		Path:            cfg.Database.Path,
		BusyTimeout:     cfg.Database.BusyTimeout,
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	defer recorder.Close()

	// Artifact directories
	store, err := storage.New(cfg.Storage.UploadDir, cfg.Storage.CleanedDir)
	if err != nil {
		return err
	}
	slog.Info("artifact store ready", "upload_dir", store.RawDir(), "cleaned_dir", store.CleanedDir())

	authSvc, err := auth.NewFromConfig(cfg.Auth)
	if err != nil {
		return err
	}

	service := core.NewService(store, recorder, core.Options{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		PreviewRows:   cfg.Upload.PreviewRows,
	})

	server := web.NewServer(cfg, service, authSvc, recorder)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		authSvc.StartSweeper(gctx, cfg.Auth.SweepInterval)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active uploads to complete (with timeout)
		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("server stopped")
	return err
}
