package openweather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingProvider struct {
	calls  int
	result *domain.WeatherSnapshot
	err    error
}

func (m *countingProvider) CurrentWeather(_ context.Context, _ domain.Coordinate) (*domain.WeatherSnapshot, error) {
	m.calls++
	return m.result, m.err
}

var bogota = domain.Coordinate{Lat: 4.586, Lon: -74.225}

// --- CachedProvider tests ---

func TestCachedProvider_CacheHit(t *testing.T) {
	inner := &countingProvider{result: &domain.WeatherSnapshot{Temperature: domain.Float64(14)}}
	cached := NewCachedProvider(inner, 10, time.Minute, clockwork.NewFakeClock(), testMetrics())

	w1, err := cached.CurrentWeather(context.Background(), bogota)
	require.NoError(t, err)
	assert.Equal(t, 14.0, *w1.Temperature)

	w2, err := cached.CurrentWeather(context.Background(), domain.Coordinate{Lat: 4.5861, Lon: -74.2249})
	require.NoError(t, err)
	assert.Same(t, w1, w2, "nearby coordinates share an entry")

	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedProvider_Expiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	inner := &countingProvider{result: &domain.WeatherSnapshot{}}
	cached := NewCachedProvider(inner, 10, time.Minute, fc, testMetrics())

	_, _ = cached.CurrentWeather(context.Background(), bogota)
	fc.Advance(59 * time.Second)
	_, _ = cached.CurrentWeather(context.Background(), bogota)
	assert.Equal(t, 1, inner.calls)

	fc.Advance(time.Second)
	_, _ = cached.CurrentWeather(context.Background(), bogota)
	assert.Equal(t, 2, inner.calls, "expired entries are fetched again")
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	cached := NewCachedProvider(inner, 10, time.Minute, clockwork.NewFakeClock(), testMetrics())

	_, err := cached.CurrentWeather(context.Background(), bogota)
	require.Error(t, err)
	_, err = cached.CurrentWeather(context.Background(), bogota)
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2, time.Minute, clockwork.NewFakeClock())
	a, b, d := &domain.WeatherSnapshot{}, &domain.WeatherSnapshot{}, &domain.WeatherSnapshot{}

	c.put("a", a)
	c.put("b", b)
	_, _ = c.get("a") // a becomes most recent
	c.put("d", d)     // evicts b

	_, ok := c.get("b")
	assert.False(t, ok)
	got, ok := c.get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_UpdateRefreshesExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := newLRUCache(2, time.Minute, fc)
	first, second := &domain.WeatherSnapshot{}, &domain.WeatherSnapshot{}

	c.put("k", first)
	fc.Advance(50 * time.Second)
	c.put("k", second)
	fc.Advance(50 * time.Second)

	got, ok := c.get("k")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, c.size())
}
