package commute

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/internal/transit"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

// EstimationStrategy computes commute results for many origins.
//
// The two implementations differ in cardinality. Driving returns
// at most one result per origin and drops origins without a route. Transit
// returns exactly one result per origin.
type EstimationStrategy interface {
	Estimate(ctx context.Context, origins []Origin, dest geo.Point) []Result
	Mode() Mode
}

// Driving queries the driving provider once per origin, in order.
type Driving struct {
	provider routing.DrivingProvider
	logger   zerolog.Logger
}

// NewDriving creates a Driving strategy.
func NewDriving(provider routing.DrivingProvider, logger zerolog.Logger) *Driving {
	return &Driving{provider: provider, logger: logger}
}

// Mode returns ModeDriving.
func (d *Driving) Mode() Mode { return ModeDriving }

// Estimate returns a DRIVING result for each origin the provider routed.
// Durations are whole minutes, rounded down.
func (d *Driving) Estimate(ctx context.Context, origins []Origin, dest geo.Point) []Result {
	results := make([]Result, 0, len(origins))
	for _, o := range origins {
		s, err := d.provider.Route(ctx, o.Point, dest)
		if err != nil || s == nil {
			d.logger.Debug().Err(err).Int64("origin_id", o.ID).Msg("driving route unavailable, origin dropped")
			continue
		}
		results = append(results, Result{
			OriginID:    o.ID,
			DurationMin: s.DurationSeconds / 60,
			Method:      MethodDriving,
		})
	}
	return results
}

// Transit queries the transit provider for all origins concurrently with a
// bounded pool. A call that fails or outlives TaskTimeout is replaced by the
// walking fallback.
type Transit struct {
	provider    transit.Provider
	fallback    *Fallback
	poolSize    int
	taskTimeout time.Duration
	metrics     *metrics
	logger      zerolog.Logger
}

// NewTransit creates a Transit strategy.
func NewTransit(provider transit.Provider, fallback *Fallback, policy Policy, logger zerolog.Logger) *Transit {
	policy = policy.WithDefaults()
	return &Transit{
		provider:    provider,
		fallback:    fallback,
		poolSize:    policy.PoolSize,
		taskTimeout: policy.TaskTimeout,
		logger:      logger,
	}
}

// Mode returns ModeTransit.
func (t *Transit) Mode() Mode { return ModeTransit }

// Estimate returns one result per origin, in input order. The pool lives for
// this call only. Origins whose provider call timed out get their fallback
// after the pool drains, on the calling goroutine.
func (t *Transit) Estimate(ctx context.Context, origins []Origin, dest geo.Point) []Result {
	results := make([]Result, len(origins))
	timedOut := make([]bool, len(origins))

	var g errgroup.Group
	g.SetLimit(t.poolSize)
	for i, o := range origins {
		g.Go(func() error {
			results[i], timedOut[i] = t.estimateOne(ctx, o, dest)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range origins {
		if timedOut[i] {
			results[i] = t.fallback.Estimate(ctx, o, dest)
		}
	}

	return results
}

type transitAnswer struct {
	minutes int
	err     error
}

// estimateOne waits up to taskTimeout for the provider and reports whether
// the deadline fired first. The provider call keeps its own context and is
// not cancelled on timeout; a late answer lands in the buffered channel and
// is discarded.
func (t *Transit) estimateOne(ctx context.Context, o Origin, dest geo.Point) (Result, bool) {
	answer := make(chan transitAnswer, 1)
	go func() {
		minutes, err := t.provider.MinDuration(ctx, o.Point, dest)
		answer <- transitAnswer{minutes: minutes, err: err}
	}()

	timer := time.NewTimer(t.taskTimeout)
	defer timer.Stop()

	select {
	case a := <-answer:
		if a.err == nil && a.minutes >= 0 {
			return Result{OriginID: o.ID, DurationMin: a.minutes, Method: MethodTransit}, false
		}
		t.logger.Debug().Err(a.err).Int64("origin_id", o.ID).Msg("transit provider gave no path, using fallback")
		return t.fallback.Estimate(ctx, o, dest), false
	case <-timer.C:
		t.metrics.recordTimeout(ctx)
		t.logger.Debug().
			Int64("origin_id", o.ID).
			Dur("timeout", t.taskTimeout).
			Msg("transit provider timed out, using fallback")
		return Result{}, true
	}
}
