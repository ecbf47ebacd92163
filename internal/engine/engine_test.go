package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/cache"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/pipeline"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/registry"
)

type fakeFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	weather []*domain.WeatherSnapshot
	mu      sync.Mutex
	result  domain.PredictionResult
}

func (f *fakeFetcher) FetchPrediction(_ context.Context, _ domain.Zone, w *domain.WeatherSnapshot) domain.PredictionResult {
	f.calls.Add(1)
	f.mu.Lock()
	f.weather = append(f.weather, w)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.result
}

type fakeWeather struct {
	snap *domain.WeatherSnapshot
	err  error
}

func (f fakeWeather) CurrentWeather(context.Context, domain.Coordinate) (*domain.WeatherSnapshot, error) {
	return f.snap, f.err
}

type fakeLocator struct {
	coord domain.Coordinate
	err   error
	block bool
}

func (f fakeLocator) Locate(ctx context.Context, _ net.IP) (domain.Coordinate, error) {
	if f.block {
		<-ctx.Done()
		return domain.Coordinate{}, ctx.Err()
	}
	return f.coord, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, fetcher domain.PredictionFetcher, weather domain.WeatherProvider, locator domain.IPLocator) (*Engine, *cache.Cache) {
	t.Helper()
	c := cache.New(cache.NewMemoryStore(), discardLogger(), observability.NewMetricsForTesting())
	e := New(registry.Default(), c, fetcher, weather, locator, Options{GeolocationTimeout: 20 * time.Millisecond}, discardLogger())
	return e, c
}

func aiResult(p float64) domain.PredictionResult {
	return domain.PredictionResult{Probability: domain.Float64(p), Explanation: "lluvias", Source: domain.SourceAI}
}

func TestAssess_StaticWithoutPrediction(t *testing.T) {
	e, _ := newTestEngine(t, &fakeFetcher{}, nil, nil)

	a, err := e.Assess("la-maria")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthorityStatic, a.Authority)
	assert.Equal(t, "Alto", a.Level)
	assert.Equal(t, "#E60000", a.Hex)

	_, err = e.Assess("nowhere")
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)
}

func TestApplyEvent_ReconcilesWithThreshold(t *testing.T) {
	e, _ := newTestEngine(t, &fakeFetcher{}, nil, nil)
	ctx := context.Background()

	_, err := e.ApplyEvent(ctx, domain.PredictionEvent{ZoneID: "la-maria", Probability: domain.Float64(80)})
	require.NoError(t, err)
	a, _ := e.Assess("la-maria")
	assert.Equal(t, domain.AuthorityAI, a.Authority)
	assert.Equal(t, "Alta", a.Level)

	_, err = e.ApplyEvent(ctx, domain.PredictionEvent{ZoneID: "la-maria", Probability: domain.Float64(20)})
	require.NoError(t, err)
	a, _ = e.Assess("la-maria")
	assert.Equal(t, domain.AuthorityStatic, a.Authority)
	assert.True(t, a.FallbackUsed)
	assert.Equal(t, "IA sugirió 20%, pero se usó AVCD como fallback", a.Explanation)

	_, err = e.ApplyEvent(ctx, domain.PredictionEvent{ZoneID: "nowhere", Probability: domain.Float64(20)})
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)
}

func TestAssessments(t *testing.T) {
	e, _ := newTestEngine(t, &fakeFetcher{}, nil, nil)
	_, err := e.ApplyEvent(context.Background(), domain.PredictionEvent{ZoneID: "el-danubio", Probability: domain.Float64(50)})
	require.NoError(t, err)

	ov := e.Assessments()
	require.Len(t, ov.Assessments, 2)
	assert.Equal(t, "la-maria", ov.Assessments[0].ZoneID)
	assert.Equal(t, domain.AuthorityStatic, ov.Assessments[0].Authority)
	assert.Equal(t, domain.AuthorityAI, ov.Assessments[1].Authority)
	assert.Equal(t, "Media", ov.Assessments[1].Level)
	assert.Equal(t, 2, ov.Summary.Zones)
}

func TestLocate(t *testing.T) {
	e, _ := newTestEngine(t, &fakeFetcher{}, nil, nil)

	loc, err := e.Locate(context.Background(), registry.MapCenter)
	require.NoError(t, err)
	assert.Equal(t, "la-maria", loc.Zone.ID)
	assert.Equal(t, "la-maria", loc.Assessment.ZoneID)

	_, err = e.Locate(context.Background(), domain.Coordinate{Lat: 0, Lon: 0})
	assert.ErrorIs(t, err, domain.ErrOutsideZones)
}

func TestLocateIP(t *testing.T) {
	ip := net.ParseIP("181.49.1.1")

	t.Run("found", func(t *testing.T) {
		e, _ := newTestEngine(t, &fakeFetcher{}, nil, fakeLocator{coord: registry.MapCenter})
		loc, err := e.LocateIP(context.Background(), ip)
		require.NoError(t, err)
		assert.Equal(t, "la-maria", loc.Zone.ID)
	})

	t.Run("outside zones", func(t *testing.T) {
		e, _ := newTestEngine(t, &fakeFetcher{}, nil, fakeLocator{coord: domain.Coordinate{Lat: 40, Lon: -3}})
		_, err := e.LocateIP(context.Background(), ip)
		assert.ErrorIs(t, err, domain.ErrOutsideZones)
	})

	tests := []struct {
		name    string
		locator domain.IPLocator
	}{
		{"no locator", nil},
		{"locator error", fakeLocator{err: errors.New("db closed")}},
		{"timeout", fakeLocator{block: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, &fakeFetcher{}, nil, tt.locator)
			_, err := e.LocateIP(context.Background(), ip)
			assert.ErrorIs(t, err, domain.ErrGeolocationUnavailable)
		})
	}
}

func TestPredictZone_StoresResult(t *testing.T) {
	snap := &domain.WeatherSnapshot{Precipitation: domain.Float64(3)}
	f := &fakeFetcher{result: aiResult(72)}
	e, c := newTestEngine(t, f, fakeWeather{snap: snap}, nil)

	zp, err := e.PredictZone(context.Background(), "la-maria")
	require.NoError(t, err)
	assert.Equal(t, domain.ColorRed, zp.Color)

	cached, ok := c.Get("la-maria")
	require.True(t, ok)
	assert.Equal(t, 72.0, *cached.Probability)
	assert.Same(t, snap, f.weather[0])
}

func TestPredictZone_WeatherFailureIsBestEffort(t *testing.T) {
	f := &fakeFetcher{result: aiResult(30)}
	e, _ := newTestEngine(t, f, fakeWeather{err: errors.New("owm down")}, nil)

	_, err := e.PredictZone(context.Background(), "el-danubio")
	require.NoError(t, err)
	require.Len(t, f.weather, 1)
	assert.Nil(t, f.weather[0])
}

func TestPredictZone_UnknownZone(t *testing.T) {
	f := &fakeFetcher{}
	e, _ := newTestEngine(t, f, nil, nil)
	_, err := e.PredictZone(context.Background(), "nowhere")
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestPredictZone_DeduplicatesInFlight(t *testing.T) {
	f := &fakeFetcher{
		result:  aiResult(55),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	e, _ := newTestEngine(t, f, nil, nil)
	ctx := context.Background()

	results := make(chan domain.ZonePrediction, 2)
	go func() {
		zp, _ := e.PredictZone(ctx, "la-maria")
		results <- zp
	}()
	<-f.started

	go func() {
		zp, _ := e.PredictZone(ctx, "la-maria")
		results <- zp
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.release)

	first, second := <-results, <-results
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, first, second)
}

func TestPredictZone_JoinsInFlightBulkRefresh(t *testing.T) {
	f := &fakeFetcher{
		result:  aiResult(55),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	e, c := newTestEngine(t, f, nil, nil)
	r := pipeline.New(e.Registry(), nil, e.Fetcher(), c, pipeline.Options{}, discardLogger(), observability.NewMetricsForTesting())
	ctx := context.Background()

	refreshed := make(chan []domain.ZonePrediction, 1)
	go func() {
		preds, _ := r.Refresh(ctx, []string{"la-maria"})
		refreshed <- preds
	}()
	<-f.started

	predicted := make(chan domain.ZonePrediction, 1)
	go func() {
		zp, _ := e.PredictZone(ctx, "la-maria")
		predicted <- zp
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.release)

	preds := <-refreshed
	zp := <-predicted
	assert.Equal(t, int32(1), f.calls.Load(), "one upstream fetch for both paths")
	require.Len(t, preds, 1)
	assert.Equal(t, 55.0, *preds[0].Probability)
	assert.Equal(t, 55.0, *zp.Probability)

	got, ok := c.Get("la-maria")
	require.True(t, ok)
	assert.Equal(t, 55.0, *got.Probability)
}

func TestFetcher_CallerDeadlineFallsBackToHeuristic(t *testing.T) {
	f := &fakeFetcher{
		result:  aiResult(90),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	e, _ := newTestEngine(t, f, nil, nil)
	zone, err := e.Registry().ByID("la-maria")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan domain.PredictionResult, 1)
	go func() { results <- e.Fetcher().FetchPrediction(ctx, zone, nil) }()
	<-f.started
	cancel()

	res := <-results
	assert.Equal(t, domain.SourceHeuristic, res.Source)
	assert.Equal(t, domain.ClientHeuristic(zone, nil), res)
	close(f.release)
}

func TestPredictZone_CallerCancelDoesNotAbortFetch(t *testing.T) {
	f := &fakeFetcher{
		result:  aiResult(65),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	e, c := newTestEngine(t, f, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := e.PredictZone(ctx, "la-maria")
		errs <- err
	}()
	<-f.started
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	close(f.release)
	assert.Eventually(t, func() bool {
		_, ok := c.Get("la-maria")
		return ok
	}, time.Second, 5*time.Millisecond)
}
