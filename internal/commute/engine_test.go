package commute_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/internal/transit"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

var (
	dest = geo.Point{Lat: 37.56, Lng: 126.97}

	// farOrigin is about 8.5 km from dest.
	farOrigin = geo.Point{Lat: 37.50, Lng: 127.03}

	// nearOrigin is about 0.3 km north of dest.
	nearOrigin = geo.Point{Lat: 37.5627, Lng: 126.97}
)

type mockDriving struct {
	route      func(origin geo.Point) (*routing.Summary, error)
	routeMany  func(origins []routing.Origin) (map[int64]routing.Summary, error)
	routeCalls atomic.Int32
	manyCalls  atomic.Int32
}

func (m *mockDriving) Route(_ context.Context, origin, _ geo.Point) (*routing.Summary, error) {
	m.routeCalls.Add(1)
	if m.route == nil {
		return nil, routing.ErrNoRoute
	}
	return m.route(origin)
}

func (m *mockDriving) RouteMany(_ context.Context, origins []routing.Origin, _ geo.Point) (map[int64]routing.Summary, error) {
	m.manyCalls.Add(1)
	if m.routeMany == nil {
		return nil, routing.ErrProviderUnavailable
	}
	return m.routeMany(origins)
}

func (m *mockDriving) Name() string { return "mock-driving" }

type mockTransit struct {
	minDuration func(origin geo.Point) (int, error)
	paths       func() ([]transit.Path, error)
	delay       time.Duration
	calls       atomic.Int32
	pathCalls   atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *mockTransit) MinDuration(_ context.Context, origin, _ geo.Point) (int, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxInFlight.Load()
		if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.minDuration == nil {
		return 0, transit.ErrNoPath
	}
	return m.minDuration(origin)
}

func (m *mockTransit) Paths(_ context.Context, _, _ geo.Point) ([]transit.Path, error) {
	m.pathCalls.Add(1)
	if m.paths == nil {
		return nil, transit.ErrNoPath
	}
	return m.paths()
}

func (m *mockTransit) Name() string { return "mock-transit" }

func walkingProxy(meters int) func([]routing.Origin) (map[int64]routing.Summary, error) {
	return func(origins []routing.Origin) (map[int64]routing.Summary, error) {
		out := make(map[int64]routing.Summary, len(origins))
		for _, o := range origins {
			out[o.ID] = routing.Summary{DistanceMeters: meters, DurationSeconds: 60}
		}
		return out, nil
	}
}

func newEngine(d *mockDriving, tr *mockTransit, policy commute.Policy) *commute.Engine {
	return commute.NewEngine(commute.Config{
		Driving: d,
		Transit: tr,
		Policy:  policy,
		Logger:  zerolog.Nop(),
	})
}

func origins(points ...geo.Point) []commute.Origin {
	out := make([]commute.Origin, len(points))
	for i, p := range points {
		out[i] = commute.Origin{ID: int64(i + 1), Point: p}
	}
	return out
}

func byID(results []commute.Result) map[int64]commute.Result {
	out := make(map[int64]commute.Result, len(results))
	for _, r := range results {
		out[r.OriginID] = r
	}
	return out
}

func TestDistanceFixtures(t *testing.T) {
	assert.Greater(t, geo.DistanceKm(farOrigin, dest), 1.5)
	assert.InDelta(t, 0.3, geo.DistanceKm(nearOrigin, dest), 0.02)
}

func TestDriving_DropsUnroutedOrigins(t *testing.T) {
	d := &mockDriving{route: func(origin geo.Point) (*routing.Summary, error) {
		if origin == nearOrigin {
			return nil, routing.ErrNoRoute
		}
		return &routing.Summary{DistanceMeters: 10000, DurationSeconds: 1799}, nil
	}}
	tr := &mockTransit{}

	results := newEngine(d, tr, commute.Policy{}).Estimate(context.Background(), commute.ModeDriving,
		origins(farOrigin, nearOrigin, farOrigin), dest)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, commute.MethodDriving, r.Method)
		assert.Equal(t, 29, r.DurationMin, "seconds are floored to minutes")
	}
	assert.Equal(t, int32(3), d.routeCalls.Load())
	assert.Equal(t, int32(0), d.manyCalls.Load(), "driving mode has no fallback")
	assert.Equal(t, int32(0), tr.calls.Load())
}

func TestDriving_NilSummaryDropped(t *testing.T) {
	d := &mockDriving{route: func(geo.Point) (*routing.Summary, error) { return nil, nil }}

	results := newEngine(d, &mockTransit{}, commute.Policy{}).Estimate(context.Background(), commute.ModeDriving,
		origins(farOrigin), dest)

	assert.Empty(t, results)
}

func TestTransit_OneResultPerOrigin(t *testing.T) {
	tr := &mockTransit{minDuration: func(origin geo.Point) (int, error) {
		if origin == farOrigin {
			return 0, errors.New("upstream 500")
		}
		return 12, nil
	}}
	d := &mockDriving{routeMany: walkingProxy(240)}

	points := make([]geo.Point, 0, 40)
	for i := 0; i < 20; i++ {
		points = append(points, farOrigin, geo.Point{Lat: 37.55, Lng: 126.99})
	}

	results := newEngine(d, tr, commute.Policy{}).Estimate(context.Background(), commute.ModeTransit, origins(points...), dest)

	require.Len(t, results, len(points))
	got := byID(results)
	require.Len(t, got, len(points))
	for i := range points {
		r := got[int64(i+1)]
		if points[i] == farOrigin {
			assert.Equal(t, commute.MethodNoPath, r.Method)
		} else {
			assert.Equal(t, commute.MethodTransit, r.Method)
			assert.Equal(t, 12, r.DurationMin)
		}
	}
}

func TestTransit_PoolIsBounded(t *testing.T) {
	tr := &mockTransit{
		delay:       10 * time.Millisecond,
		minDuration: func(geo.Point) (int, error) { return 30, nil },
	}

	points := make([]geo.Point, 25)
	for i := range points {
		points[i] = farOrigin
	}

	results := newEngine(&mockDriving{}, tr, commute.Policy{PoolSize: 4}).Estimate(context.Background(),
		commute.ModeTransit, origins(points...), dest)

	require.Len(t, results, 25)
	assert.LessOrEqual(t, tr.maxInFlight.Load(), int32(4))
	assert.Equal(t, int32(25), tr.calls.Load())
}

func TestTransit_FarFailureIsNoPathWithoutProxyCall(t *testing.T) {
	d := &mockDriving{routeMany: walkingProxy(240)}

	results := newEngine(d, &mockTransit{}, commute.Policy{}).Estimate(context.Background(), commute.ModeTransit,
		origins(farOrigin), dest)

	require.Len(t, results, 1)
	assert.Equal(t, commute.MethodNoPath, results[0].Method)
	assert.GreaterOrEqual(t, results[0].DurationMin, 10000)
	assert.Equal(t, commute.Unreachable, results[0].DurationMin)
	assert.False(t, results[0].Reachable())
	assert.Equal(t, int32(0), d.manyCalls.Load())
}

func TestTransit_NearFailureWalks(t *testing.T) {
	d := &mockDriving{routeMany: walkingProxy(240)}

	results := newEngine(d, &mockTransit{}, commute.Policy{}).Estimate(context.Background(), commute.ModeTransit,
		origins(nearOrigin), dest)

	require.Len(t, results, 1)
	assert.Equal(t, commute.Result{OriginID: 1, DurationMin: 3, Method: commute.MethodWalkFallback}, results[0])
	assert.Equal(t, int32(1), d.manyCalls.Load())
}

func TestTransit_ProxyFailureUsesStraightLine(t *testing.T) {
	d := &mockDriving{}

	results := newEngine(d, &mockTransit{}, commute.Policy{}).Estimate(context.Background(), commute.ModeTransit,
		origins(nearOrigin), dest)

	require.Len(t, results, 1)
	assert.Equal(t, commute.MethodWalkFallback, results[0].Method)
	// About 300 m at 80 m/min.
	assert.Equal(t, 4, results[0].DurationMin)
}

func TestTransit_ProxyMissingKeyUsesStraightLine(t *testing.T) {
	d := &mockDriving{routeMany: func([]routing.Origin) (map[int64]routing.Summary, error) {
		return map[int64]routing.Summary{}, nil
	}}

	results := newEngine(d, &mockTransit{}, commute.Policy{}).Estimate(context.Background(), commute.ModeTransit,
		origins(nearOrigin), dest)

	require.Len(t, results, 1)
	assert.Equal(t, 4, results[0].DurationMin)
}

func TestTransit_LongWalkIsNoPath(t *testing.T) {
	d := &mockDriving{routeMany: walkingProxy(1700)}

	results := newEngine(d, &mockTransit{}, commute.Policy{}).Estimate(context.Background(), commute.ModeTransit,
		origins(nearOrigin), dest)

	require.Len(t, results, 1)
	assert.Equal(t, commute.MethodNoPath, results[0].Method)
	assert.Equal(t, commute.Unreachable, results[0].DurationMin)
}

func TestTransit_WalkAtLimitIsKept(t *testing.T) {
	// 1630 m / 80 = 20.375, rounds to 20.
	d := &mockDriving{routeMany: walkingProxy(1630)}

	results := newEngine(d, &mockTransit{}, commute.Policy{}).Estimate(context.Background(), commute.ModeTransit,
		origins(nearOrigin), dest)

	require.Len(t, results, 1)
	assert.Equal(t, commute.MethodWalkFallback, results[0].Method)
	assert.Equal(t, 20, results[0].DurationMin)
}

func TestTransit_TimeoutUsesFallback(t *testing.T) {
	tr := &mockTransit{
		delay:       300 * time.Millisecond,
		minDuration: func(geo.Point) (int, error) { return 5, nil },
	}
	d := &mockDriving{routeMany: walkingProxy(240)}
	e := newEngine(d, tr, commute.Policy{TaskTimeout: 20 * time.Millisecond})

	start := time.Now()
	results := e.Estimate(context.Background(), commute.ModeTransit, origins(nearOrigin, farOrigin), dest)
	elapsed := time.Since(start)

	require.Len(t, results, 2)
	got := byID(results)
	assert.Equal(t, commute.MethodWalkFallback, got[1].Method, "late transit answer is discarded")
	assert.Equal(t, 3, got[1].DurationMin)
	assert.Equal(t, commute.MethodNoPath, got[2].Method)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestTransit_TimeoutIsPerTask(t *testing.T) {
	tr := &mockTransit{minDuration: func(origin geo.Point) (int, error) {
		if origin == farOrigin {
			time.Sleep(200 * time.Millisecond)
		}
		return 17, nil
	}}
	e := newEngine(&mockDriving{}, tr, commute.Policy{TaskTimeout: 50 * time.Millisecond})

	results := e.Estimate(context.Background(), commute.ModeTransit,
		origins(farOrigin, geo.Point{Lat: 37.55, Lng: 126.99}), dest)

	got := byID(results)
	assert.Equal(t, commute.MethodNoPath, got[1].Method)
	assert.Equal(t, commute.Result{OriginID: 2, DurationMin: 17, Method: commute.MethodTransit}, got[2])
}

func TestTransit_TimeoutFallbackRunsAfterPoolDrains(t *testing.T) {
	tr := &mockTransit{
		delay:       200 * time.Millisecond,
		minDuration: func(geo.Point) (int, error) { return 5, nil },
	}
	var startedAtFirstFallback atomic.Int32
	d := &mockDriving{routeMany: func(origins []routing.Origin) (map[int64]routing.Summary, error) {
		startedAtFirstFallback.CompareAndSwap(0, tr.calls.Load())
		return walkingProxy(240)(origins)
	}}
	e := newEngine(d, tr, commute.Policy{PoolSize: 1, TaskTimeout: 10 * time.Millisecond})

	results := e.Estimate(context.Background(), commute.ModeTransit, origins(nearOrigin, nearOrigin, nearOrigin), dest)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, commute.MethodWalkFallback, r.Method)
	}
	assert.Equal(t, int32(3), startedAtFirstFallback.Load(), "every task ran before any fallback")
	assert.Equal(t, int32(3), d.manyCalls.Load())
}

func TestEngine_EmptyOrigins(t *testing.T) {
	e := newEngine(&mockDriving{}, &mockTransit{}, commute.Policy{})

	results := e.Estimate(context.Background(), commute.ModeTransit, nil, dest)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestEngine_Strategy(t *testing.T) {
	e := newEngine(&mockDriving{}, &mockTransit{}, commute.Policy{})

	assert.Equal(t, commute.ModeDriving, e.Strategy(commute.ModeDriving).Mode())
	assert.Equal(t, commute.ModeTransit, e.Strategy(commute.ModeTransit).Mode())
}

func path(totalTime int, firstStation string) transit.Path {
	return transit.Path{
		PathType: 1,
		Info:     transit.PathInfo{TotalTime: totalTime, TotalDistance: 9800.4, FirstStartStation: firstStation},
	}
}

func TestDetail_FastestTransitPath(t *testing.T) {
	tr := &mockTransit{paths: func() ([]transit.Path, error) {
		return []transit.Path{path(42, "a"), path(31, "b"), path(31, "c")}, nil
	}}
	e := newEngine(&mockDriving{}, tr, commute.Policy{})

	d := e.Detail(context.Background(), farOrigin, dest, commute.MethodTransit)

	require.NotNil(t, d)
	assert.Equal(t, commute.DetailModeTransit, d.Mode)
	require.NotNil(t, d.Path)
	assert.Equal(t, "b", d.Path.Info.FirstStartStation, "first path wins ties")
	assert.Equal(t, 31, d.TotalTime)
	assert.Equal(t, 31*60, d.TotalTimeSec)
	assert.Equal(t, 9800, d.Distance)
}

func TestDetail_WalkFallbackSkipsTransit(t *testing.T) {
	tr := &mockTransit{}
	d := &mockDriving{routeMany: walkingProxy(240)}
	e := newEngine(d, tr, commute.Policy{})

	got := e.Detail(context.Background(), nearOrigin, dest, commute.MethodWalkFallback)

	assert.Equal(t, int32(0), tr.pathCalls.Load())
	assert.Equal(t, &commute.Detail{
		Mode:         commute.DetailModeWalking,
		TrafficType:  transit.TrafficWalk,
		TotalTime:    3,
		TotalTimeSec: 180,
		Distance:     240,
	}, got)
}

func TestDetail_NoTransitNearWalks(t *testing.T) {
	tr := &mockTransit{paths: func() ([]transit.Path, error) { return nil, nil }}
	e := newEngine(&mockDriving{}, tr, commute.Policy{})

	got := e.Detail(context.Background(), nearOrigin, dest, "")

	assert.Equal(t, int32(1), tr.pathCalls.Load())
	assert.Equal(t, commute.DetailModeWalking, got.Mode)
	assert.Equal(t, 4, got.TotalTime)
	assert.InDelta(t, 300, got.Distance, 20)
}

func TestDetail_NoTransitFarIsNoPath(t *testing.T) {
	d := &mockDriving{routeMany: walkingProxy(240)}
	e := newEngine(d, &mockTransit{}, commute.Policy{})

	got := e.Detail(context.Background(), farOrigin, dest, commute.MethodTransit)

	assert.Equal(t, commute.DetailModeNoPath, got.Mode)
	assert.Equal(t, -1, got.TrafficType)
	assert.Equal(t, commute.CodeTooFarToWalk, got.Code)
	assert.Nil(t, got.Path)
	assert.Equal(t, int32(0), d.manyCalls.Load())
}

func TestParseMode(t *testing.T) {
	tests := map[string]commute.Mode{
		"driving": commute.ModeDriving,
		"DRIVING": commute.ModeDriving,
		"자차":      commute.ModeDriving,
		"transit": commute.ModeTransit,
		"대중교통":    commute.ModeTransit,
		"":        commute.ModeTransit,
	}
	for in, want := range tests {
		assert.Equal(t, want, commute.ParseMode(in), in)
	}
}

func TestParseMethod(t *testing.T) {
	assert.Equal(t, commute.MethodWalkFallback, commute.ParseMethod("walk_fallback"))
	assert.Equal(t, commute.MethodTransit, commute.ParseMethod("TRANSIT"))
	assert.Equal(t, commute.Method(""), commute.ParseMethod("bike"))
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := commute.Policy{MaxWalkMin: 15}.WithDefaults()

	assert.Equal(t, 15, p.MaxWalkMin)
	assert.Equal(t, commute.DefaultWalkGateKm, p.WalkGateKm)
	assert.Equal(t, commute.DefaultTaskTimeout, p.TaskTimeout)
	assert.Equal(t, commute.DefaultDrivingCap, p.CandidateCap(commute.ModeDriving))
	assert.Equal(t, commute.DefaultTransitCap, p.CandidateCap(commute.ModeTransit))
}
