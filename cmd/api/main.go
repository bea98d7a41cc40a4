// Package main provides the entrypoint for the RoomCommute API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/api"
	"github.com/roomcommute/roomcommute/internal/api/middleware"
	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/internal/config"
	"github.com/roomcommute/roomcommute/internal/database"
	"github.com/roomcommute/roomcommute/internal/provider"
	"github.com/roomcommute/roomcommute/internal/ranking"
	"github.com/roomcommute/roomcommute/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "roomcommute-api"

	// .env.local is optional; real environment variables win.
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := newLogger(cfg, serviceName)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting RoomCommute API")

	ctx := context.Background()

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

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Float64("sample_ratio", cfg.Telemetry.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	var repo candidate.Repository
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
		repo = candidate.NewPostgresRepository(pool)
	default:
		log.Warn().Msg("using in-memory candidate store, data is lost on restart")
		repo = candidate.NewInMemoryRepository()
	}

	providers, err := provider.Build(cfg.Providers, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build providers")
	}
	if err := providers.EnableTransitCache(ctx, cfg.Cache, log); err != nil {
		log.Fatal().Err(err).Msg("failed to enable transit cache")
	}
	defer func() {
		if err := providers.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close provider connections")
		}
	}()
	log.Info().
		Str("routing", cfg.Providers.Routing).
		Str("transit", cfg.Providers.Transit).
		Msg("providers initialized")

	engine := commute.NewEngine(commute.Config{
		Driving: providers.Driving,
		Transit: providers.Transit,
		Policy:  cfg.Policy,
		Logger:  log,
	})

	rankingService := ranking.NewService(ranking.ServiceConfig{
		Repository: repo,
		Estimator:  engine,
		Policy:     engine.Policy(),
		Logger:     log,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequireTLS:         cfg.IsProduction(),
		Recommender:        rankingService,
		Details:            engine,
		Providers:          providers.Registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config, serviceName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := zerolog.New(os.Stdout)
	if cfg.LogFormat == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return out.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}
