package ranking_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/internal/ranking"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

var dest = geo.Point{Lat: 37.56, Lng: 126.97}

const (
	district    = "마포구"
	subdistrict = "서교동"
)

// mockEstimator returns a result per origin from durations, defaulting to
// 10 minutes of transit, and records every batch it receives.
type mockEstimator struct {
	mu        sync.Mutex
	durations map[int64]commute.Result
	batches   [][]int64
}

func (m *mockEstimator) Estimate(_ context.Context, mode commute.Mode, origins []commute.Origin, _ geo.Point) []commute.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, len(origins))
	out := make([]commute.Result, 0, len(origins))
	// Reverse order: callers must join by id, not position.
	for i := len(origins) - 1; i >= 0; i-- {
		o := origins[i]
		ids[i] = o.ID
		if r, ok := m.durations[o.ID]; ok {
			out = append(out, r)
			continue
		}
		method := commute.MethodTransit
		if mode == commute.ModeDriving {
			method = commute.MethodDriving
		}
		out = append(out, commute.Result{OriginID: o.ID, DurationMin: 10, Method: method})
	}
	m.batches = append(m.batches, ids)
	return out
}

func (m *mockEstimator) lastBatch() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.batches) == 0 {
		return nil
	}
	return m.batches[len(m.batches)-1]
}

type failingRepository struct {
	*candidate.InMemoryRepository
}

func (failingRepository) FindByArea(context.Context, string, string) ([]*candidate.Candidate, error) {
	return nil, errors.New("connection refused")
}

// north returns a point km kilometres north of dest.
func north(km float64) geo.Point {
	return geo.Point{Lat: dest.Lat + km/111.195, Lng: dest.Lng}
}

func jeonse(id int64, deposit int64, at geo.Point) *candidate.Candidate {
	return &candidate.Candidate{
		ID:            id,
		District:      district,
		Subdistrict:   subdistrict,
		RentType:      candidate.RentTypeDepositOnly,
		Deposit:       deposit,
		Location:      at,
		GeocodeStatus: candidate.GeocodeStatusSuccess,
	}
}

func wolse(id int64, deposit, monthly int64, at geo.Point) *candidate.Candidate {
	c := jeonse(id, deposit, at)
	c.RentType = candidate.RentTypeMonthly
	c.MonthlyFee = monthly
	return c
}

func newService(t *testing.T, est ranking.Estimator, cs ...*candidate.Candidate) *ranking.Service {
	t.Helper()
	repo := candidate.NewInMemoryRepository()
	for _, c := range cs {
		require.NoError(t, repo.Create(context.Background(), c))
	}
	return ranking.NewService(ranking.ServiceConfig{
		Repository: repo,
		Estimator:  est,
		Logger:     zerolog.Nop(),
	})
}

func jeonseRequest(mode commute.Mode) ranking.Request {
	return ranking.Request{
		District:        district,
		Subdistrict:     subdistrict,
		RentType:        candidate.RentTypeDepositOnly,
		DepositMax:      50000,
		Destination:     dest,
		CommuteLimitMin: 30,
		Mode:            mode,
	}
}

// pool73 creates 73 affordable candidates whose ids run opposite to their
// distance: id 1 is farthest.
func pool73() []*candidate.Candidate {
	cs := make([]*candidate.Candidate, 0, 73)
	for i := 1; i <= 73; i++ {
		cs = append(cs, jeonse(int64(i), 30000, north(float64(74-i)*0.1)))
	}
	return cs
}

func TestRecommendPage_CursorWindows(t *testing.T) {
	est := &mockEstimator{}
	svc := newService(t, est, pool73()...)
	req := jeonseRequest(commute.ModeTransit)

	first, err := svc.RecommendPage(context.Background(), req, 0, 30)
	require.NoError(t, err)
	assert.Equal(t, 73, first.TotalCandidates)
	assert.Equal(t, 0, first.ScannedFrom)
	assert.Equal(t, 30, first.ScannedTo)
	assert.True(t, first.HasNext)
	assert.Equal(t, 30, first.NextCursor)
	assert.Equal(t, 30, first.ComputedCount)
	assert.Equal(t, 30, first.Returned)
	assert.Len(t, est.lastBatch(), 30)

	last, err := svc.RecommendPage(context.Background(), req, 60, 30)
	require.NoError(t, err)
	assert.Equal(t, 73, last.TotalCandidates)
	assert.Equal(t, 60, last.ScannedFrom)
	assert.Equal(t, 73, last.ScannedTo)
	assert.False(t, last.HasNext)
	assert.Equal(t, 73, last.NextCursor)
	assert.Equal(t, 13, last.ComputedCount)
}

func TestRecommendPage_PagesCoverPoolOnce(t *testing.T) {
	svc := newService(t, &mockEstimator{}, pool73()...)
	req := jeonseRequest(commute.ModeTransit)

	var seen []int64
	cursor := 0
	for {
		page, err := svc.RecommendPage(context.Background(), req, cursor, 20)
		require.NoError(t, err)
		assert.Equal(t, 73, page.TotalCandidates)
		seen = append(seen, page.ComputedIDs...)
		if !page.HasNext {
			break
		}
		cursor = page.NextCursor
	}

	require.Len(t, seen, 73)
	for i, id := range seen {
		// Closest first, and the closest candidate has the highest id.
		assert.Equal(t, int64(73-i), id)
	}
}

func TestRecommendPage_CursorPastEnd(t *testing.T) {
	est := &mockEstimator{}
	svc := newService(t, est, pool73()...)

	page, err := svc.RecommendPage(context.Background(), jeonseRequest(commute.ModeTransit), 100, 30)
	require.NoError(t, err)
	assert.Equal(t, 73, page.ScannedFrom)
	assert.Equal(t, 73, page.ScannedTo)
	assert.False(t, page.HasNext)
	assert.Equal(t, 0, page.ComputedCount)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Empty(t, est.batches, "empty window makes no estimate")
}

func TestRecommendPage_HugeBatchSize(t *testing.T) {
	svc := newService(t, &mockEstimator{}, pool73()...)

	page, err := svc.RecommendPage(context.Background(), jeonseRequest(commute.ModeTransit), 5, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 5, page.ScannedFrom)
	assert.Equal(t, 73, page.ScannedTo)
	assert.Equal(t, 68, page.ComputedCount)
	assert.False(t, page.HasNext)
	assert.Equal(t, math.MaxInt, page.BatchSize)
}

func TestRecommendPage_ClampsCursorAndDefaultsBatchSize(t *testing.T) {
	svc := newService(t, &mockEstimator{}, pool73()...)

	page, err := svc.RecommendPage(context.Background(), jeonseRequest(commute.ModeTransit), -5, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Cursor)
	assert.Equal(t, commute.DefaultBatchSize, page.BatchSize)
	assert.Equal(t, 0, page.ScannedFrom)
	assert.Equal(t, commute.DefaultBatchSize, page.ScannedTo)
}

func TestRecommendPage_SortedByDurationAndFiltered(t *testing.T) {
	est := &mockEstimator{durations: map[int64]commute.Result{
		73: {OriginID: 73, DurationMin: 25, Method: commute.MethodTransit},
		72: {OriginID: 72, DurationMin: 5, Method: commute.MethodWalkFallback},
		71: {OriginID: 71, DurationMin: commute.Unreachable, Method: commute.MethodNoPath},
		70: {OriginID: 70, DurationMin: 31, Method: commute.MethodTransit},
		69: {OriginID: 69, DurationMin: 25, Method: commute.MethodTransit},
	}}
	svc := newService(t, est, pool73()...)

	page, err := svc.RecommendPage(context.Background(), jeonseRequest(commute.ModeTransit), 0, 5)
	require.NoError(t, err)

	assert.Equal(t, 5, page.ComputedCount)
	require.Equal(t, 3, page.Returned)
	require.Len(t, page.Items, 3)
	assert.Equal(t, int64(72), page.Items[0].ID)
	assert.Equal(t, commute.MethodWalkFallback, page.Items[0].Method)
	// Equal durations keep distance order: 73 is closer than 69.
	assert.Equal(t, int64(73), page.Items[1].ID)
	assert.Equal(t, int64(69), page.Items[2].ID)
	for _, item := range page.Items {
		assert.LessOrEqual(t, item.DurationMin, 30)
	}
}

func TestRecommend_CapsByMode(t *testing.T) {
	cs := make([]*candidate.Candidate, 0, 160)
	for i := 1; i <= 160; i++ {
		cs = append(cs, jeonse(int64(i), 1000, north(float64(i)*0.05)))
	}

	tests := []struct {
		mode commute.Mode
		want int
	}{
		{commute.ModeDriving, commute.DefaultDrivingCap},
		{commute.ModeTransit, commute.DefaultTransitCap},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			est := &mockEstimator{}
			svc := newService(t, est, cs...)

			items, err := svc.Recommend(context.Background(), jeonseRequest(tt.mode))
			require.NoError(t, err)
			assert.Len(t, items, tt.want)

			batch := est.lastBatch()
			require.Len(t, batch, tt.want)
			assert.Equal(t, int64(1), batch[0], "closest candidates are estimated")
			assert.Equal(t, int64(tt.want), batch[len(batch)-1])
		})
	}
}

func TestRecommend_SortedByDuration(t *testing.T) {
	est := &mockEstimator{durations: map[int64]commute.Result{
		1: {OriginID: 1, DurationMin: 28, Method: commute.MethodDriving},
		2: {OriginID: 2, DurationMin: 12, Method: commute.MethodDriving},
		3: {OriginID: 3, DurationMin: 19, Method: commute.MethodDriving},
	}}
	svc := newService(t, est,
		jeonse(1, 1000, north(0.5)),
		jeonse(2, 1000, north(1.0)),
		jeonse(3, 1000, north(2.0)),
	)

	items, err := svc.Recommend(context.Background(), jeonseRequest(commute.ModeDriving))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []int64{2, 3, 1}, []int64{items[0].ID, items[1].ID, items[2].ID})
	assert.InDelta(t, 1.0, items[0].DistanceKm, 0.01)
	assert.Equal(t, dest.Lng, items[0].X)
}

func TestRecommend_DrivingDropsAreNotReturned(t *testing.T) {
	est := &droppingEstimator{drop: 2}
	svc := newService(t, est, jeonse(1, 1000, north(0.5)), jeonse(2, 1000, north(1.0)))

	items, err := svc.Recommend(context.Background(), jeonseRequest(commute.ModeDriving))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
}

type droppingEstimator struct {
	drop int64
}

func (d *droppingEstimator) Estimate(_ context.Context, _ commute.Mode, origins []commute.Origin, _ geo.Point) []commute.Result {
	out := make([]commute.Result, 0, len(origins))
	for _, o := range origins {
		if o.ID != d.drop {
			out = append(out, commute.Result{OriginID: o.ID, DurationMin: 7, Method: commute.MethodDriving})
		}
	}
	return out
}

func TestRanking_RequiresCoordinatesInBothVariants(t *testing.T) {
	missing := jeonse(2, 1000, geo.Point{})
	missing.GeocodeStatus = candidate.GeocodeStatusPending
	partial := jeonse(3, 1000, geo.Point{Lat: 37.5})
	partial.GeocodeStatus = candidate.GeocodeStatusFailed

	est := &mockEstimator{}
	svc := newService(t, est, jeonse(1, 1000, north(0.5)), missing, partial)
	req := jeonseRequest(commute.ModeTransit)

	items, err := svc.Recommend(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []int64{1}, est.lastBatch())

	page, err := svc.RecommendPage(context.Background(), req, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCandidates)
	assert.Equal(t, []int64{1}, page.ComputedIDs)
}

func TestRanking_DepositOnlyBudget(t *testing.T) {
	svc := newService(t, &mockEstimator{},
		jeonse(1, 50000, north(0.5)),
		jeonse(2, 50001, north(0.6)),
		wolse(3, 1000, 50, north(0.7)),
	)

	items, err := svc.Recommend(context.Background(), jeonseRequest(commute.ModeTransit))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
	for _, item := range items {
		assert.LessOrEqual(t, item.Deposit, int64(50000))
	}
}

func TestRanking_MonthlyBudget(t *testing.T) {
	cs := []*candidate.Candidate{
		wolse(1, 1000, 60, north(0.5)),
		wolse(2, 1000, 80, north(0.6)),
		wolse(3, 3000, 50, north(0.7)),
		jeonse(4, 1000, north(0.8)),
	}
	monthlyMax := int64(70)

	tests := []struct {
		name       string
		monthlyMax *int64
		want       []int64
	}{
		{"with monthly ceiling", &monthlyMax, []int64{1}},
		{"without monthly ceiling", nil, []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, &mockEstimator{}, cs...)
			req := jeonseRequest(commute.ModeTransit)
			req.RentType = candidate.RentTypeMonthly
			req.DepositMax = 2000
			req.MonthlyMax = tt.monthlyMax

			page, err := svc.RecommendPage(context.Background(), req, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.ComputedIDs)
		})
	}
}

func TestRanking_UnknownRentTypeIsEmpty(t *testing.T) {
	est := &mockEstimator{}
	svc := newService(t, est, pool73()...)
	req := jeonseRequest(commute.ModeTransit)
	req.RentType = candidate.RentTypeUnknown

	items, err := svc.Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, items)

	page, err := svc.RecommendPage(context.Background(), req, 0, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCandidates)
	assert.False(t, page.HasNext)
	assert.Empty(t, est.batches)
}

func TestRanking_OtherAreaExcluded(t *testing.T) {
	other := jeonse(2, 1000, north(0.1))
	other.Subdistrict = "합정동"
	svc := newService(t, &mockEstimator{}, jeonse(1, 1000, north(0.5)), other)

	page, err := svc.RecommendPage(context.Background(), jeonseRequest(commute.ModeTransit), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, page.ComputedIDs)
}

func TestRanking_RepositoryErrorReturned(t *testing.T) {
	svc := ranking.NewService(ranking.ServiceConfig{
		Repository: failingRepository{candidate.NewInMemoryRepository()},
		Estimator:  &mockEstimator{},
		Logger:     zerolog.Nop(),
	})

	_, err := svc.Recommend(context.Background(), jeonseRequest(commute.ModeTransit))
	assert.Error(t, err)

	_, err = svc.RecommendPage(context.Background(), jeonseRequest(commute.ModeTransit), 0, 10)
	assert.Error(t, err)
}
