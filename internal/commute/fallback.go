package commute

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

// Fallback estimates a walking commute when transit gives no answer. It is
// shared by the provider-failure path, the task-timeout path and Detail.
type Fallback struct {
	driving routing.DrivingProvider
	policy  Policy
	logger  zerolog.Logger
}

// NewFallback creates a Fallback. driving supplies the road distance proxy;
// a nil provider means straight-line distance is always used.
func NewFallback(driving routing.DrivingProvider, policy Policy, logger zerolog.Logger) *Fallback {
	return &Fallback{driving: driving, policy: policy.WithDefaults(), logger: logger}
}

// walk is a walking estimate between two points.
type walk struct {
	meters  int
	minutes int
	ok      bool
}

// Estimate returns WALK_FALLBACK when origin is inside the walking gate and
// the walk fits under the limit, and NO_PATH otherwise.
func (f *Fallback) Estimate(ctx context.Context, origin Origin, dest geo.Point) Result {
	w := f.walk(ctx, origin, dest)
	if !w.ok {
		return noPath(origin.ID)
	}
	return Result{OriginID: origin.ID, DurationMin: w.minutes, Method: MethodWalkFallback}
}

// walk applies the straight-line gate, then the road distance proxy.
// Beyond the gate no provider call is made.
func (f *Fallback) walk(ctx context.Context, origin Origin, dest geo.Point) walk {
	km := geo.DistanceKm(origin.Point, dest)
	if km > f.policy.WalkGateKm {
		return walk{meters: int(math.Round(km * 1000))}
	}

	meters := f.roadMeters(ctx, origin, dest, km)
	minutes := int(math.Round(float64(meters) / f.policy.WalkSpeedMPerMin))
	if minutes > f.policy.MaxWalkMin {
		return walk{meters: meters}
	}
	return walk{meters: meters, minutes: minutes, ok: true}
}

// roadMeters asks the batched driving call for a one-origin distance. Any
// failure falls back to the straight-line distance.
func (f *Fallback) roadMeters(ctx context.Context, origin Origin, dest geo.Point, km float64) int {
	straight := int(math.Round(km * 1000))
	if f.driving == nil {
		return straight
	}

	summaries, err := f.driving.RouteMany(ctx, []routing.Origin{origin}, dest)
	if err != nil {
		f.logger.Debug().Err(err).Int64("origin_id", origin.ID).Msg("walking distance proxy failed")
		return straight
	}
	s, ok := summaries[origin.ID]
	if !ok {
		return straight
	}
	return s.DistanceMeters
}
