// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/internal/database"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Provider names.
const (
	ProviderKakao  = "kakao"
	ProviderODsay  = "odsay"
	ProviderGoogle = "google"
)

// Config is the configuration shared by the api and worker binaries.
type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	// RateLimitPerMinute caps requests per client IP.
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration

	Store    string
	Database database.Config

	Telemetry TelemetryConfig

	Providers ProvidersConfig
	Cache     CacheConfig

	// Policy holds commute thresholds, overridden by COMMUTE_POLICY_FILE.
	Policy     commute.Policy
	PolicyFile string

	Geocode GeocodeConfig
	PubSub  PubSubConfig
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

// ProvidersConfig selects and configures the external map providers.
type ProvidersConfig struct {
	// Routing is "kakao" or "google"; it also serves geocoding.
	Routing string
	// Transit is "odsay" or "google".
	Transit string

	KakaoAPIKey      string
	KakaoMobilityURL string
	KakaoLocalURL    string

	ODsayAPIKey  string
	ODsayBaseURL string

	GoogleMapsAPIKey string
	GoogleRegion     string

	Timeout           time.Duration
	RequestsPerSecond float64
}

// CacheConfig configures the transit duration cache. An empty RedisAddr
// keeps the cache in process memory.
type CacheConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// GeocodeConfig configures the coordinate backfill.
type GeocodeConfig struct {
	TickInterval  time.Duration
	MaxAttempts   int
	SweepDelay    time.Duration
	FlushEvery    int
	RetryAttempts int
	RetryBackoff  time.Duration
}

// PubSubConfig configures the worker's job subscription. An empty
// Subscription disables it.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// Load reads the configuration from the environment, applies the policy
// file when one is named, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Env:                getEnvOrDefault("APP_ENV", "development"),
		Port:               getEnvOrDefault("APP_PORT", "8080"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "json"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		Store:              strings.ToLower(getEnvOrDefault("STORE", StorePostgres)),
		Database:           database.ConfigFromEnv(),
		Telemetry: TelemetryConfig{
			Enabled:      getEnvBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
		Providers: ProvidersConfig{
			Routing:           strings.ToLower(getEnvOrDefault("ROUTING_PROVIDER", ProviderKakao)),
			Transit:           strings.ToLower(getEnvOrDefault("TRANSIT_PROVIDER", ProviderODsay)),
			KakaoAPIKey:       os.Getenv("KAKAO_REST_API_KEY"),
			KakaoMobilityURL:  os.Getenv("KAKAO_MOBILITY_URL"),
			KakaoLocalURL:     os.Getenv("KAKAO_LOCAL_URL"),
			ODsayAPIKey:       os.Getenv("ODSAY_API_KEY"),
			ODsayBaseURL:      os.Getenv("ODSAY_BASE_URL"),
			GoogleMapsAPIKey:  os.Getenv("GOOGLE_MAPS_API_KEY"),
			GoogleRegion:      getEnvOrDefault("GOOGLE_MAPS_REGION", "kr"),
			Timeout:           getEnvDuration("PROVIDER_TIMEOUT", 5*time.Second),
			RequestsPerSecond: getEnvFloat("PROVIDER_REQUESTS_PER_SECOND", 0),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("TRANSIT_CACHE_ENABLED", true),
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvDuration("TRANSIT_CACHE_TTL", 6*time.Hour),
		},
		Policy:     commute.DefaultPolicy(),
		PolicyFile: os.Getenv("COMMUTE_POLICY_FILE"),
		Geocode: GeocodeConfig{
			TickInterval:  getEnvDuration("GEOCODE_TICK_INTERVAL", time.Second),
			MaxAttempts:   getEnvInt("GEOCODE_MAX_ATTEMPTS", 3),
			SweepDelay:    getEnvDuration("GEOCODE_SWEEP_DELAY", 100*time.Millisecond),
			FlushEvery:    getEnvInt("GEOCODE_FLUSH_EVERY", 500),
			RetryAttempts: getEnvInt("GEOCODE_RETRY_ATTEMPTS", 1),
			RetryBackoff:  getEnvDuration("GEOCODE_RETRY_BACKOFF", 500*time.Millisecond),
		},
		PubSub: PubSubConfig{
			ProjectID:    os.Getenv("GCP_PROJECT_ID"),
			Subscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		},
	}

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}

	switch c.Providers.Routing {
	case ProviderKakao:
		if c.Providers.KakaoAPIKey == "" {
			errs = append(errs, errors.New("KAKAO_REST_API_KEY is required for the kakao routing provider"))
		}
	case ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("ROUTING_PROVIDER must be %q or %q, got %q", ProviderKakao, ProviderGoogle, c.Providers.Routing))
	}

	switch c.Providers.Transit {
	case ProviderODsay:
		if c.Providers.ODsayAPIKey == "" {
			errs = append(errs, errors.New("ODSAY_API_KEY is required for the odsay transit provider"))
		}
	case ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("TRANSIT_PROVIDER must be %q or %q, got %q", ProviderODsay, ProviderGoogle, c.Providers.Transit))
	}

	if c.UsesGoogle() && c.Providers.GoogleMapsAPIKey == "" {
		errs = append(errs, errors.New("GOOGLE_MAPS_API_KEY is required for the google provider"))
	}

	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.Geocode.TickInterval <= 0 {
		errs = append(errs, errors.New("GEOCODE_TICK_INTERVAL must be positive"))
	}
	if c.Geocode.MaxAttempts <= 0 {
		errs = append(errs, errors.New("GEOCODE_MAX_ATTEMPTS must be positive"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLE_RATIO must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// UsesGoogle reports whether any provider slot is served by Google Maps.
func (c *Config) UsesGoogle() bool {
	return c.Providers.Routing == ProviderGoogle || c.Providers.Transit == ProviderGoogle
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
