package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/config"
	"github.com/lexcat/lexcat/internal/database"
	"github.com/lexcat/lexcat/internal/importer"
	"github.com/lexcat/lexcat/internal/logging"
	"github.com/lexcat/lexcat/internal/store"
	"github.com/lexcat/lexcat/internal/web"
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
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Apply pending schema migrations before opening the pool
	if err := database.Migrate(cfg); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	st := store.New(pool)

	validator := catalog.NewValidator(catalog.ValidatorConfig{
		MaxPayloadBytes: int(cfg.Import.MaxPreflightBytes),
		MaxItems:        cfg.Import.MaxItems,
		EnabledLocales:  cfg.Catalog.EnabledLocales,
		DefaultLocale:   cfg.Catalog.DefaultLocale,
	})

	imports := importer.New(st, importer.Config{
		MaxPayloadBytes:  cfg.Import.MaxPayloadBytes,
		MaxItems:         cfg.Import.MaxItems,
		MaxConcurrent:    cfg.Import.MaxConcurrent,
		RateWindow:       cfg.Import.RateWindow,
		RateMaxJobs:      cfg.Import.RateMaxJobs,
		CheckpointEvery:  cfg.Import.CheckpointEvery,
		ForceCancelGrace: cfg.Import.ForceCancelGrace,
		Timeout:          cfg.Import.Timeout,
	}, nil)

	server := web.NewServer(cfg, st, imports, validator)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight import jobs reach a checkpoint or finish
		if err := imports.Drain(shutdownCtx); err != nil {
			slog.Warn("import jobs did not finish in time", "error", err)
		} else {
			slog.Info("import jobs drained")
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
