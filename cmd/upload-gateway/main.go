package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lgulliver/lodestone-upload/cmd/upload-gateway/routes"
	"github.com/lgulliver/lodestone-upload/internal/common"
	"github.com/lgulliver/lodestone-upload/internal/metrics"
	"github.com/lgulliver/lodestone-upload/internal/storage"
	"github.com/lgulliver/lodestone-upload/internal/upload"
	"github.com/lgulliver/lodestone-upload/pkg/config"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	cfg.Logging.SetupLogging()

	log.Info().Msg("Starting upload gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Staging area for in-flight chunks
	staging, err := storage.NewLocalStorage(cfg.Upload.StagingPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize staging storage")
	}

	// Commit target for finalized uploads
	target, err := storage.NewStorageFactory(&cfg.Storage).CreateStorage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	var opts []upload.Option
	var records routes.RecordServiceInterface

	// Initialize database
	if cfg.Database.Enabled {
		db, err := common.NewDatabase(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		ledger := common.NewUploadLedger(db)
		opts = append(opts, upload.WithLedger(ledger))
		records = ledger
	}

	// Initialize cache
	if cfg.Redis.Enabled {
		cache, err := common.NewCache(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer cache.Close()

		opts = append(opts, upload.WithStatusCache(common.NewStatusCache(cache, cfg.Redis.Prefix, cfg.Redis.StatusTTL)))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, upload.WithMetrics(m))
	}

	manager := upload.NewManager(staging, target, &cfg.Upload, opts...)
	go manager.RunReaper(ctx)

	// Setup HTTP server
	router := setupRouter(cfg, manager, records, m)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}

	if n := manager.Sessions(); n > 0 {
		log.Warn().Int("sessions", n).Msg("Upload sessions dropped at shutdown, clients must start over")
	}
}
