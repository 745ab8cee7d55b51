package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/topology/admin"
	"github.com/maxpert/topology/cfg"
	"github.com/maxpert/topology/coordinator"
	"github.com/maxpert/topology/db"
	"github.com/maxpert/topology/hlc"
	"github.com/maxpert/topology/notify"
	"github.com/maxpert/topology/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const metricsCollectInterval = 15 * time.Second

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Topology - cluster configuration service")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry(cfg.Config.NodeID, cfg.Config.Prometheus.Enabled)
	telemetry.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Topology stopped with error")
	}
	log.Info().Msg("Topology stopped")
}

func run(ctx context.Context) error {
	// Phase 1: Open the configuration store
	log.Info().Str("path", cfg.GetStorePath()).Msg("Opening configuration store")
	store, err := db.Open(cfg.GetStorePath(), db.Options{
		CacheSizeMB:    cfg.Config.Storage.CacheSizeMB,
		MemTableSizeMB: cfg.Config.Storage.MemTableSizeMB,
		Sync:           cfg.Config.Storage.Sync,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// Phase 2: Recover the configuration from the namespace and its log
	hub := notify.NewHub()
	coord, err := coordinator.New(
		store,
		hlc.NewClock(cfg.Config.NodeID),
		hub,
		cfg.DatabaseKnobs(),
		coordinator.Options{PolicyCacheSize: cfg.Config.Knobs.PolicyCacheSize},
	)
	if err != nil {
		return err
	}
	if err := coord.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover configuration: %w", err)
	}

	signals, unsubscribe := hub.Subscribe(notify.Filter{})
	defer unsubscribe()
	go logSignals(signals)

	collector := telemetry.NewMetricsCollector(coord, metricsCollectInterval)
	collector.Start()
	defer collector.Stop()

	if interval := cfg.CheckpointInterval(); interval > 0 {
		go checkpointLoop(ctx, coord, interval)
	}

	// Phase 3: Admin API and metrics
	var server *http.Server
	if cfg.Config.Admin.Enabled {
		mux := http.NewServeMux()
		admin.RegisterRoutes(mux, admin.NewAdminHandlers(coord, cfg.Config.Admin.Secret))
		if cfg.Config.Prometheus.Enabled {
			mux.Handle("/metrics", telemetry.GetMetricsHandler())
		}

		server = &http.Server{
			Addr:              cfg.AdminAddress(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Admin server failed")
			}
		}()
	}

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Uint64("version", coord.Version()).
		Bool("valid", coord.IsValid()).
		Str("data_dir", cfg.Config.DataDir).
		Msg("Node is operational")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Admin server shutdown failed")
		}
	}

	if err := coord.Checkpoint(); err != nil {
		log.Warn().Err(err).Msg("Final checkpoint failed")
	}
	return nil
}

func logSignals(signals <-chan notify.Signal) {
	for s := range signals {
		log.Debug().
			Uint64("version", s.Version).
			Bool("valid", s.Valid).
			Str("mode", s.Mode).
			Msg("Configuration changed")
	}
}

func checkpointLoop(ctx context.Context, coord *coordinator.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := coord.Checkpoint(); err != nil {
				log.Warn().Err(err).Msg("Checkpoint failed")
			}
		}
	}
}
