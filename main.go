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

	api "github.com/usemox/mox/cmd/api"
	"github.com/usemox/mox/internal/app"
	"github.com/usemox/mox/internal/migrations"
	"github.com/usemox/mox/pkg/config"
	"github.com/usemox/mox/pkg/database"
	"github.com/usemox/mox/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := migrations.Migrate(db); err != nil {
		return err
	}
	log.Info("Database ready", "driver", cfg.DBDriver)

	container, err := app.New(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	if err := container.Start(ctx); err != nil {
		return err
	}

	srv := api.NewHandler(container).Server(":" + cfg.Port)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	container.Shutdown(shutdownCtx)
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	return err
}
