// Package provider builds the configured map provider clients and registers
// them for readiness reporting.
package provider

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/config"
	"github.com/roomcommute/roomcommute/internal/geocode"
	"github.com/roomcommute/roomcommute/internal/provider/googlemaps"
	"github.com/roomcommute/roomcommute/internal/provider/resilience"
	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/internal/routing/kakao"
	"github.com/roomcommute/roomcommute/internal/transit"
	"github.com/roomcommute/roomcommute/internal/transit/odsay"
)

// redisKeyPrefix namespaces transit cache keys.
const redisKeyPrefix = "roomcommute:"

// Set holds the providers selected by configuration.
type Set struct {
	Driving  routing.DrivingProvider
	Transit  transit.Provider
	Geocoder geocode.Geocoder
	Registry *resilience.Registry

	closers []func() error
}

// Build creates the routing, transit and geocoding providers named in cfg.
// The routing provider also serves geocoding. A single Google client is
// shared when both slots select it.
func Build(cfg config.ProvidersConfig, logger zerolog.Logger) (*Set, error) {
	set := &Set{Registry: resilience.NewRegistry()}

	var google *googlemaps.Client
	if cfg.Routing == config.ProviderGoogle || cfg.Transit == config.ProviderGoogle {
		c, err := googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:   cfg.GoogleMapsAPIKey,
			Region:   cfg.GoogleRegion,
			Timeout:  cfg.Timeout,
			Registry: set.Registry,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("building google maps provider: %w", err)
		}
		google = c
	}

	switch cfg.Routing {
	case config.ProviderKakao:
		k := kakao.NewClient(kakao.ClientConfig{
			APIKey:            cfg.KakaoAPIKey,
			MobilityURL:       cfg.KakaoMobilityURL,
			LocalURL:          cfg.KakaoLocalURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Registry:          set.Registry,
			Logger:            logger,
		})
		set.Driving, set.Geocoder = k, k
	case config.ProviderGoogle:
		set.Driving, set.Geocoder = google, google
	default:
		return nil, fmt.Errorf("unknown routing provider %q", cfg.Routing)
	}

	switch cfg.Transit {
	case config.ProviderODsay:
		set.Transit = odsay.NewClient(odsay.ClientConfig{
			APIKey:   cfg.ODsayAPIKey,
			BaseURL:  cfg.ODsayBaseURL,
			Timeout:  cfg.Timeout,
			Registry: set.Registry,
			Logger:   logger,
		})
	case config.ProviderGoogle:
		set.Transit = google
	default:
		return nil, fmt.Errorf("unknown transit provider %q", cfg.Transit)
	}

	return set, nil
}

// EnableTransitCache wraps the transit provider with a duration cache. With
// a Redis address the cache is shared across replicas and the connection is
// checked before use; otherwise it lives in process memory.
func (s *Set) EnableTransitCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	var store transit.DurationStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		s.closers = append(s.closers, client.Close)
		store = transit.NewRedisStore(client, redisKeyPrefix)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("transit cache using redis")
	} else {
		store = transit.NewMemoryStore()
		logger.Info().Msg("transit cache using process memory")
	}

	s.Transit = transit.NewCachedProvider(s.Transit, store, transit.CacheConfig{
		TTL:    cfg.TTL,
		Logger: logger.With().Str("component", "transit_cache").Logger(),
	})
	return nil
}

// Close releases connections opened by EnableTransitCache.
func (s *Set) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
