// Package main provides the entrypoint for the RoomCommute geocode worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roomcommute/roomcommute/internal/api/response"
	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/internal/config"
	"github.com/roomcommute/roomcommute/internal/database"
	"github.com/roomcommute/roomcommute/internal/geocode"
	"github.com/roomcommute/roomcommute/internal/provider"
	"github.com/roomcommute/roomcommute/internal/provider/resilience"
	"github.com/roomcommute/roomcommute/internal/telemetry"
	"github.com/roomcommute/roomcommute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "roomcommute-worker"

	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
	if cfg.LogFormat == "console" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RoomCommute worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	var repo candidate.Repository
	if cfg.Store == config.StorePostgres {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		repo = candidate.NewPostgresRepository(pool)
	} else {
		log.Warn().Msg("using in-memory candidate store, data is lost on restart")
		repo = candidate.NewInMemoryRepository()
	}

	providers, err := provider.Build(cfg.Providers, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build providers")
	}

	backfill := geocode.NewBackfill(geocode.Config{
		Repository:  repo,
		Geocoder:    providers.Geocoder,
		MaxAttempts: cfg.Geocode.MaxAttempts,
		SweepDelay:  cfg.Geocode.SweepDelay,
		FlushEvery:  cfg.Geocode.FlushEvery,
		Retry: resilience.RetryPolicy{
			MaxAttempts: cfg.Geocode.RetryAttempts,
			Backoff:     cfg.Geocode.RetryBackoff,
		},
		Logger: log,
	})

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Backfill: backfill,
		Interval: cfg.Geocode.TickInterval,
		Logger:   log,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := scheduler.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	dispatcher := worker.NewDispatcher(backfill, scheduler.Metrics(), log)

	if cfg.PubSub.Subscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if err := handler.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}()
		g.Go(func() error {
			return handler.Start(gctx)
		})
	} else {
		log.Info().Msg("PUBSUB_SUBSCRIPTION not set, sweeps run via POST /jobs/geocode-sweep")
	}

	// The worker exposes health, backfill stats and manual job triggers.
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "healthy", "version": Version})
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, scheduler.Metrics().Snapshot())
	})
	r.Route("/jobs", worker.JobRoutes(gctx, dispatcher))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		return
	}

	log.Info().Msg("worker stopped")
}
