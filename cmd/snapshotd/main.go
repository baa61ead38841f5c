package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/sitewatch/snapshotd/internal/api"
	"github.com/sitewatch/snapshotd/internal/config"
	"github.com/sitewatch/snapshotd/internal/consumer"
	"github.com/sitewatch/snapshotd/internal/previews"
	"github.com/sitewatch/snapshotd/internal/repository"
	"github.com/sitewatch/snapshotd/internal/resolver"
	"github.com/sitewatch/snapshotd/internal/services"
	"github.com/sitewatch/snapshotd/internal/telemetry"
)

func setupLogging() {
	var log_level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG", "debug":
		log_level = slog.LevelDebug
	case "WARN", "warn":
		log_level = slog.LevelWarn
	case "ERROR", "error":
		log_level = slog.LevelError
	default:
		log_level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     log_level,
		AddSource: false,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {

			// Format time to show only the time (HH:MM:SS)
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("15:04:05"))
			}

			return a
		},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)
}

func prepareAMQPConsumer(
	cfg *config.Config,
	baselinesSvc *services.BaselinesService,
	telemetrySvc *telemetry.TelemetrySvc,
) (consumer.MessageConsumer, error) {
	var amqpCfg consumer.AMQPConfig
	amqpCfg.AMQPUri = cfg.AMQP.URI()
	amqpCfg.Exchange = cfg.AMQP.Exchange
	amqpCfg.SnapshotsQueueName = cfg.AMQP.SnapshotsQueue

	return consumer.NewAMQPConsumer(amqpCfg, baselinesSvc, telemetrySvc)
}

func main() {
	cleanup := flag.Bool(
		"cleanup",
		false,
		"Purge test sites from the database and exit",
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging()

	slog.Info("Starting Snapshotd service...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	sitesRepo := repository.NewPostgresSiteRepository(db)

	if *cleanup {
		purged, err := sitesRepo.PurgeTestData(ctx)
		if err != nil {
			slog.Error("Failed to purge test sites", "error", err)
			os.Exit(1)
		}

		slog.Info("Purged test sites", "count", purged)
		return
	}

	// Init telemetry services
	telemetrySvc, err := telemetry.NewTelemetrySvc(ctx)
	if err != nil {
		slog.Error("Failed to initialize Telemetry services", "error", err)
		os.Exit(1)
	}

	baselinesSvc := services.NewBaselinesService(
		services.BaselinesConfig{
			DirSnapshotsRoot: cfg.DirSnapshotsRoot,
			DirPreviewsRoot:  cfg.DirPreviewsRoot,
			PreviewWidths:    cfg.PreviewWidths,
		},
		sitesRepo,
		resolver.New(resolver.OSFilesystem{Root: cfg.DirSnapshotsRoot}),
		previews.NewLilliputPreviewGenerator(telemetrySvc),
	)

	amqpConsumer, err := prepareAMQPConsumer(cfg, baselinesSvc, telemetrySvc)
	if err != nil {
		slog.Error("Failed to create AMQP consumer", "error", err)
		os.Exit(1)
	}

	if err := amqpConsumer.Start(ctx); err != nil {
		slog.Error("Failed to start AMQP consumer", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(
		baselinesSvc,
		cfg.PlaceholderPath,
		telemetrySvc,
		slog.Default(),
	)
	srv := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: api.NewRouter(handler, slog.Default()),
	}

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPListenAddr)
		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("Snapshotd service is running. Press Ctrl+C to stop.")

	// Graceful shutdown (listen for OS signals)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigChan:
		slog.Info("Received OS signal, shutting down...", "signal", s.String())
	case <-ctx.Done():
		slog.Info(
			"Parent context cancelled, shutting down...",
			"reason",
			ctx.Err(),
		)
	}

	// --- --- --- --- --- --- --- --- --- --- --- ---
	// Perform graceful shutdown operations
	// before cancelling context

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown HTTP server", "error", err)
	}

	amqpConsumer.Stop()
	if err := telemetrySvc.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown telemetry services", "error", err)
	}

	// Trigger context cancellation
	cancel()
	slog.Info("Snapshotd service exited gracefully.")
}
