package commute

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/internal/transit"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

// Config holds configuration for the Engine.
type Config struct {
	// Driving answers single and batched driving queries. Required.
	Driving routing.DrivingProvider

	// Transit answers transit queries. Required.
	Transit transit.Provider

	// Policy thresholds. Zero fields take their defaults.
	Policy Policy

	Logger zerolog.Logger
}

// Engine selects an EstimationStrategy per mode and builds route details.
// Provider errors never reach callers: Estimate and Detail always return a
// value.
type Engine struct {
	driving  *Driving
	transit  *Transit
	fallback *Fallback
	provider transit.Provider
	policy   Policy
	metrics  *metrics
	logger   zerolog.Logger
}

// NewEngine creates an Engine. Metric instrument errors are logged and
// metrics are disabled.
func NewEngine(cfg Config) *Engine {
	policy := cfg.Policy.WithDefaults()
	logger := cfg.Logger.With().Str("component", "commute").Logger()

	m, err := newMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("commute metrics disabled")
	}

	fallback := NewFallback(cfg.Driving, policy, logger)
	tr := NewTransit(cfg.Transit, fallback, policy, logger)
	tr.metrics = m

	return &Engine{
		driving:  NewDriving(cfg.Driving, logger),
		transit:  tr,
		fallback: fallback,
		provider: cfg.Transit,
		policy:   policy,
		metrics:  m,
		logger:   logger,
	}
}

// Policy returns the effective thresholds.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Strategy returns the strategy used for mode.
func (e *Engine) Strategy(mode Mode) EstimationStrategy {
	if mode == ModeDriving {
		return e.driving
	}
	return e.transit
}

// Estimate runs the strategy for mode over origins.
func (e *Engine) Estimate(ctx context.Context, mode Mode, origins []Origin, dest geo.Point) []Result {
	if len(origins) == 0 {
		return []Result{}
	}
	results := e.Strategy(mode).Estimate(ctx, origins, dest)
	e.metrics.recordResults(ctx, mode, results)
	return results
}

// Detail returns the route to show for origin → dest. A pair that was
// estimated as WALK_FALLBACK gets a walking detail without a transit call.
// Otherwise the fastest transit path is returned, and when transit has
// nothing the walking fallback decides between walking and no path.
func (e *Engine) Detail(ctx context.Context, origin, dest geo.Point, recorded Method) *Detail {
	o := Origin{Point: origin}

	if recorded != MethodWalkFallback {
		paths, err := e.provider.Paths(ctx, origin, dest)
		if best, ok := transit.Fastest(paths); err == nil && ok {
			return transitDetail(best)
		}
		e.logger.Debug().Err(err).Msg("no transit detail, using walking fallback")
	}

	w := e.fallback.walk(ctx, o, dest)
	if !w.ok {
		return noPathDetail()
	}
	return walkingDetail(w.minutes, w.meters)
}
