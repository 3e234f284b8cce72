package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/forecast-monitor/internal/api"
	"github.com/trogers1052/forecast-monitor/internal/config"
	"github.com/trogers1052/forecast-monitor/internal/database"
	"github.com/trogers1052/forecast-monitor/internal/drift"
	"github.com/trogers1052/forecast-monitor/internal/kafka"
	"github.com/trogers1052/forecast-monitor/internal/marketdata"
	"github.com/trogers1052/forecast-monitor/internal/performance"
)

const migrationsPath = "db/migrations"

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "forecast-monitor").Logger()

	cfg := config.Load()

	// Durable store
	durable, err := database.NewPostgres(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to durable store")
	}
	defer durable.Close()

	if err := database.RunMigrations(durable, migrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Local mirror
	local, err := database.NewLocal(cfg.LocalStore.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer local.Close()

	store := database.NewStore(durable, local)

	// Market data acquisition chain
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	snapshots := marketdata.NewSnapshotStore(redisClient, 0)
	primary := marketdata.NewPrimaryClient(marketdata.PrimaryOptions{
		BaseURL: cfg.MarketData.PrimaryBaseURL,
		Timeout: cfg.MarketData.AttemptTimeout,
	})
	fallback := marketdata.NewFallbackClient(cfg.MarketData.FallbackBaseURL, cfg.MarketData.AttemptTimeout)

	source := marketdata.NewSource(
		[]marketdata.Provider{primary, fallback, snapshots},
		snapshots,
		cfg.MarketData.AttemptTimeout,
	)

	// Drift detection
	reference, err := drift.LoadReference(cfg.Drift.ReferencePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load reference statistics")
	}

	detector := drift.NewDetector(source, drift.Options{
		Symbol:            cfg.MarketData.Symbol,
		WindowDays:        cfg.MarketData.WindowDays,
		SignificanceLevel: cfg.Drift.SignificanceLevel,
		SnapshotMaxAge:    cfg.MarketData.SnapshotMaxAge,
	})
	driftJob := drift.NewJob(detector, "close", reference)

	// Performance reconciliation
	reconciler := performance.NewReconciler(store, source, cfg.MarketData.Symbol)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Kafka is optional: without brokers the service runs with event
	// publishing and ground-truth consumption disabled
	var publisher api.EventPublisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		publisher = producer

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroundTruthTopic, cfg.Kafka.ConsumerGroup, store, producer)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Ground-truth consumer stopped")
			}
		}()
	} else {
		log.Info().Msg("No Kafka brokers configured, events disabled")
	}

	// Push back rows written while the durable store was down
	if synced, err := store.SyncLocal(ctx); err != nil {
		log.Warn().Err(err).Msg("Startup sync incomplete")
	} else if synced > 0 {
		log.Info().Int("synced", synced).Msg("Startup sync completed")
	}

	// Catch up on predictions whose horizon passed while the service was down
	if validated, remaining, err := reconciler.ValidatePending(ctx, cfg.MarketData.WindowDays); err != nil {
		log.Warn().Err(err).Msg("Startup pending validation incomplete")
	} else if validated > 0 {
		log.Info().Int("validated", validated).Int("remaining", remaining).Msg("Startup pending validation completed")
	}

	// HTTP API
	handler := api.NewHandler(store, driftJob, reconciler, publisher)
	router := api.SetupRoutes(handler)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		os.Exit(1)
	}
}
