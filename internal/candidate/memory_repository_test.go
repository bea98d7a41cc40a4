package candidate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

func seed(t *testing.T, repo *candidate.InMemoryRepository, cs ...*candidate.Candidate) {
	t.Helper()
	for _, c := range cs {
		require.NoError(t, repo.Create(context.Background(), c))
	}
}

func TestInMemoryRepository_FindByAreaInIDOrder(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	seed(t, repo,
		&candidate.Candidate{ID: 3, District: "강남구", Subdistrict: "역삼동"},
		&candidate.Candidate{ID: 1, District: "강남구", Subdistrict: "역삼동"},
		&candidate.Candidate{ID: 2, District: "강남구", Subdistrict: "논현동"},
	)

	got, err := repo.FindByArea(context.Background(), "강남구", "역삼동")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestInMemoryRepository_NextPendingGeocode(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	seed(t, repo,
		&candidate.Candidate{ID: 1, GeocodeStatus: candidate.GeocodeStatusPending, GeocodeAttempts: 3},
		&candidate.Candidate{ID: 2, GeocodeStatus: candidate.GeocodeStatusSuccess},
		&candidate.Candidate{ID: 3, GeocodeStatus: candidate.GeocodeStatusPending, GeocodeAttempts: 2},
		&candidate.Candidate{ID: 4, GeocodeStatus: candidate.GeocodeStatusPending},
	)

	got, err := repo.NextPendingGeocode(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
}

func TestInMemoryRepository_NextPendingGeocodeNone(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	_, err := repo.NextPendingGeocode(context.Background(), 3)
	assert.ErrorIs(t, err, candidate.ErrNotFound)
}

func TestInMemoryRepository_FindMissingCoordinates(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	seed(t, repo,
		&candidate.Candidate{ID: 1, Location: geo.Point{Lat: 37.5, Lng: 127.0}},
		&candidate.Candidate{ID: 2},
		&candidate.Candidate{ID: 3, Location: geo.Point{Lat: 37.5}},
	)

	got, err := repo.FindMissingCoordinates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestInMemoryRepository_FallbackStatusIsSweptNotTicked(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	seed(t, repo, &candidate.Candidate{ID: 1, GeocodeStatus: candidate.GeocodeStatusFallback})
	ctx := context.Background()

	_, err := repo.NextPendingGeocode(ctx, 3)
	assert.ErrorIs(t, err, candidate.ErrNotFound)

	missing, err := repo.FindMissingCoordinates(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, candidate.GeocodeStatusFallback, missing[0].GeocodeStatus)

	missing[0].MarkGeocoded(geo.Point{Lat: 37.5, Lng: 127.0}, "kakao", time.Now())
	require.NoError(t, repo.UpdateGeocode(ctx, missing[0]))

	stored, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, candidate.GeocodeStatusSuccess, stored.GeocodeStatus)
}

func TestInMemoryRepository_UpdateGeocodeBatchIsAllOrNothing(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	seed(t, repo, &candidate.Candidate{ID: 1})

	now := time.Now()
	ok := &candidate.Candidate{ID: 1}
	ok.MarkGeocoded(geo.Point{Lat: 37.5, Lng: 127.0}, "kakao", now)

	err := repo.UpdateGeocodeBatch(context.Background(), []*candidate.Candidate{ok, {ID: 99}})
	assert.ErrorIs(t, err, candidate.ErrNotFound)

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, candidate.GeocodeStatusPending, stored.GeocodeStatus)
	assert.False(t, stored.HasLocation())
}

func TestInMemoryRepository_UpdateGeocodeKeepsSuccess(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	seed(t, repo, &candidate.Candidate{ID: 1})
	ctx := context.Background()

	// Both writers start from the same PENDING snapshot.
	fresh, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	stale, err := repo.Get(ctx, 1)
	require.NoError(t, err)

	fresh.MarkGeocoded(geo.Point{Lat: 37.5, Lng: 127.0}, "kakao", time.Now())
	require.NoError(t, repo.UpdateGeocode(ctx, fresh))

	stale.MarkGeocodeFailed()
	require.NoError(t, repo.UpdateGeocodeBatch(ctx, []*candidate.Candidate{stale}))
	require.NoError(t, repo.UpdateGeocode(ctx, stale))

	stored, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, candidate.GeocodeStatusSuccess, stored.GeocodeStatus)
	assert.Equal(t, geo.Point{Lat: 37.5, Lng: 127.0}, stored.Location)
	assert.Equal(t, "kakao", stored.GeocodeSource)
	assert.Equal(t, 1, stored.GeocodeAttempts)
}

func TestInMemoryRepository_UpdateGeocodeCountsEveryAttempt(t *testing.T) {
	repo := candidate.NewInMemoryRepository()
	seed(t, repo, &candidate.Candidate{ID: 1})
	ctx := context.Background()

	a, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	b, err := repo.Get(ctx, 1)
	require.NoError(t, err)

	a.MarkAttemptFailed()
	b.MarkGeocodeFailed()
	require.NoError(t, repo.UpdateGeocode(ctx, a))
	require.NoError(t, repo.UpdateGeocodeBatch(ctx, []*candidate.Candidate{b}))

	stored, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, candidate.GeocodeStatusFailed, stored.GeocodeStatus)
	assert.Equal(t, 2, stored.GeocodeAttempts)

	assert.ErrorIs(t, repo.UpdateGeocode(ctx, &candidate.Candidate{ID: 42}), candidate.ErrNotFound)
}

func TestParseRentType(t *testing.T) {
	assert.Equal(t, candidate.RentTypeDepositOnly, candidate.ParseRentType("전세"))
	assert.Equal(t, candidate.RentTypeDepositOnly, candidate.ParseRentType("deposit-only"))
	assert.Equal(t, candidate.RentTypeMonthly, candidate.ParseRentType("월세"))
	assert.Equal(t, candidate.RentTypeMonthly, candidate.ParseRentType("deposit+monthly"))
	assert.Equal(t, candidate.RentTypeUnknown, candidate.ParseRentType("매매"))
}

func TestCandidate_FullAddress(t *testing.T) {
	c := &candidate.Candidate{District: "강남구", Subdistrict: "역삼동", LotNumber: "123-4"}
	assert.Equal(t, "서울특별시 강남구 역삼동 123-4", c.FullAddress())

	c.Address = "서울특별시 강남구 테헤란로 1"
	assert.Equal(t, "서울특별시 강남구 테헤란로 1", c.FullAddress())

	assert.Empty(t, (&candidate.Candidate{}).FullAddress())
}

func TestCandidate_MarkTransitions(t *testing.T) {
	c := &candidate.Candidate{GeocodeStatus: candidate.GeocodeStatusPending}

	c.MarkAttemptFailed()
	assert.Equal(t, 1, c.GeocodeAttempts)
	assert.Equal(t, candidate.GeocodeStatusPending, c.GeocodeStatus)

	c.MarkGeocodeFailed()
	assert.Equal(t, 2, c.GeocodeAttempts)
	assert.Equal(t, candidate.GeocodeStatusFailed, c.GeocodeStatus)

	at := time.Now()
	c.MarkGeocoded(geo.Point{Lat: 37.5, Lng: 127.0}, "kakao", at)
	assert.Equal(t, 3, c.GeocodeAttempts)
	assert.Equal(t, candidate.GeocodeStatusSuccess, c.GeocodeStatus)
	assert.True(t, c.HasLocation())
	require.NotNil(t, c.GeocodedAt)
}
