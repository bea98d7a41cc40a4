// Package api provides the HTTP API for RoomCommute.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/api/handler"
	"github.com/roomcommute/roomcommute/internal/api/middleware"
	"github.com/roomcommute/roomcommute/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// RateLimitPerMinute caps requests per client IP on the /v1 routes other
	// than health and readiness (default: 60).
	RateLimitPerMinute int
	RequireTLS         bool

	Recommender handler.Recommender
	Details     handler.DetailProvider
	Providers   handler.ProviderHealthSource
}

// NewRouter creates a chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "roomcommute-api"
	}

	// Order matters: the request id must exist before tracing and logging,
	// and RealIP must run before the rate limiter keys on it.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Providers)
	recommendationHandler := handler.NewRecommendationHandler(cfg.Recommender, cfg.Logger)
	detailHandler := handler.NewDetailHandler(cfg.Details)

	rateLimit := middleware.RateLimitByIP(middleware.PerMinute(cfg.RateLimitPerMinute))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.Method+" "+r.URL.Path)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit)

			r.Route("/recommendations", func(r chi.Router) {
				r.Use(middleware.RequireJSON)
				r.Post("/", recommendationHandler.Recommend)
				r.Post("/paged", recommendationHandler.RecommendPage)
			})

			r.Get("/commute/detail", detailHandler.GetDetail)
		})
	})

	return r
}
