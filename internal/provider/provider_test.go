package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcommute/roomcommute/internal/config"
	"github.com/roomcommute/roomcommute/internal/provider"
	"github.com/roomcommute/roomcommute/internal/provider/googlemaps"
	"github.com/roomcommute/roomcommute/internal/routing/kakao"
	"github.com/roomcommute/roomcommute/internal/transit"
	"github.com/roomcommute/roomcommute/internal/transit/odsay"
)

func TestBuild_KakaoAndODsay(t *testing.T) {
	set, err := provider.Build(config.ProvidersConfig{
		Routing:     config.ProviderKakao,
		Transit:     config.ProviderODsay,
		KakaoAPIKey: "kakao-key",
		ODsayAPIKey: "odsay-key",
		Timeout:     time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)

	assert.IsType(t, &kakao.Client{}, set.Driving)
	assert.IsType(t, &kakao.Client{}, set.Geocoder)
	assert.IsType(t, &odsay.Client{}, set.Transit)

	names := map[string]bool{}
	for _, h := range set.Registry.All() {
		names[h.Name] = true
	}
	assert.True(t, names[kakao.ProviderName])
	assert.True(t, names[odsay.ProviderName])
}

func TestBuild_GoogleServesBothSlots(t *testing.T) {
	set, err := provider.Build(config.ProvidersConfig{
		Routing:          config.ProviderGoogle,
		Transit:          config.ProviderGoogle,
		GoogleMapsAPIKey: "AIza-test",
		GoogleRegion:     "kr",
	}, zerolog.Nop())
	require.NoError(t, err)

	g, ok := set.Driving.(*googlemaps.Client)
	require.True(t, ok)
	assert.Same(t, g, set.Transit)
	assert.Same(t, g, set.Geocoder)
	assert.Equal(t, 1, set.Registry.ProviderCount())
}

func TestBuild_UnknownProvider(t *testing.T) {
	_, err := provider.Build(config.ProvidersConfig{Routing: "naver", Transit: config.ProviderODsay}, zerolog.Nop())
	assert.ErrorContains(t, err, "naver")

	_, err = provider.Build(config.ProvidersConfig{Routing: config.ProviderKakao, Transit: "tmap"}, zerolog.Nop())
	assert.ErrorContains(t, err, "tmap")
}

func TestEnableTransitCache(t *testing.T) {
	build := func(t *testing.T) *provider.Set {
		t.Helper()
		set, err := provider.Build(config.ProvidersConfig{
			Routing:     config.ProviderKakao,
			Transit:     config.ProviderODsay,
			KakaoAPIKey: "k",
			ODsayAPIKey: "o",
		}, zerolog.Nop())
		require.NoError(t, err)
		return set
	}

	t.Run("memory", func(t *testing.T) {
		set := build(t)
		require.NoError(t, set.EnableTransitCache(context.Background(), config.CacheConfig{Enabled: true, TTL: time.Hour}, zerolog.Nop()))
		assert.IsType(t, &transit.CachedProvider{}, set.Transit)
		assert.NoError(t, set.Close())
	})

	t.Run("disabled", func(t *testing.T) {
		set := build(t)
		require.NoError(t, set.EnableTransitCache(context.Background(), config.CacheConfig{}, zerolog.Nop()))
		assert.IsType(t, &odsay.Client{}, set.Transit)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		set := build(t)
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		err := set.EnableTransitCache(ctx, config.CacheConfig{Enabled: true, RedisAddr: "127.0.0.1:1"}, zerolog.Nop())
		assert.Error(t, err)
		assert.IsType(t, &odsay.Client{}, set.Transit)
	})
}
