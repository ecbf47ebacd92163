// Package engine ties the zone registry, prediction cache, weather provider,
// and prediction fetcher together behind the operations the dashboard uses.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/cache"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/registry"
)

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	ConfidenceThreshold float64
	GeolocationTimeout  time.Duration
}

// Location is the result of placing a point on the map.
type Location struct {
	Point      domain.Coordinate `json:"point"`
	Zone       domain.Zone       `json:"zone"`
	Assessment domain.Assessment `json:"assessment"`
}

// Overview is every zone's assessment plus dashboard totals.
type Overview struct {
	Assessments []domain.Assessment `json:"assessments"`
	Summary     registry.Summary    `json:"summary"`
}

// Engine is built once at startup and shared by all handlers.
type Engine struct {
	registry *registry.Registry
	cache    *cache.Cache
	fetcher  domain.PredictionFetcher
	weather  domain.WeatherProvider
	locator  domain.IPLocator

	threshold  float64
	geoTimeout time.Duration

	inflight singleflight.Group
	logger   *slog.Logger
}

// New creates an Engine. weather and locator may be nil: predictions then run
// without weather context and IP lookups report domain.ErrGeolocationUnavailable.
func New(reg *registry.Registry, c *cache.Cache, fetcher domain.PredictionFetcher, weather domain.WeatherProvider, locator domain.IPLocator, opts Options, logger *slog.Logger) *Engine {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = domain.DefaultConfidenceThreshold
	}
	if opts.GeolocationTimeout <= 0 {
		opts.GeolocationTimeout = 5 * time.Second
	}
	return &Engine{
		registry:   reg,
		cache:      c,
		fetcher:    newSharedFetcher(fetcher),
		weather:    weather,
		locator:    locator,
		threshold:  opts.ConfidenceThreshold,
		geoTimeout: opts.GeolocationTimeout,
		logger:     logger,
	}
}

// Fetcher returns the engine's prediction fetcher. Fetches through it join
// any in-flight fetch for the same zone, so bulk refreshes should use it
// rather than the raw fetcher.
func (e *Engine) Fetcher() domain.PredictionFetcher { return e.fetcher }

// Registry returns the zone registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Assess reconciles the cached prediction for a zone with its static level.
func (e *Engine) Assess(zoneID string) (domain.Assessment, error) {
	zone, err := e.registry.ByID(zoneID)
	if err != nil {
		return domain.Assessment{}, err
	}
	return e.assess(zone), nil
}

func (e *Engine) assess(zone domain.Zone) domain.Assessment {
	var pred *domain.ZonePrediction
	if zp, ok := e.cache.Get(zone.ID); ok {
		pred = &zp
	}
	return domain.Reconcile(zone, pred, e.threshold)
}

// Assessments reconciles every zone in registry order.
func (e *Engine) Assessments() Overview {
	zones := e.registry.All()
	out := Overview{
		Assessments: make([]domain.Assessment, 0, len(zones)),
		Summary:     e.registry.Summary(),
	}
	for _, z := range zones {
		out.Assessments = append(out.Assessments, e.assess(z))
	}
	return out
}

// Locate finds the zone containing p and its current assessment.
func (e *Engine) Locate(_ context.Context, p domain.Coordinate) (Location, error) {
	zone, err := e.registry.Locate(p)
	if err != nil {
		return Location{}, err
	}
	return Location{Point: p, Zone: zone, Assessment: e.assess(zone)}, nil
}

// LocateIP geolocates ip and then locates the resulting point. The lookup is
// bounded by the geolocation timeout and is not retried.
func (e *Engine) LocateIP(ctx context.Context, ip net.IP) (Location, error) {
	if e.locator == nil {
		return Location{}, fmt.Errorf("%w: no geolocation database configured", domain.ErrGeolocationUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, e.geoTimeout)
	defer cancel()

	p, err := e.locator.Locate(ctx, ip)
	if err != nil {
		if !errors.Is(err, domain.ErrGeolocationUnavailable) {
			err = errors.Join(domain.ErrGeolocationUnavailable, err)
		}
		return Location{}, err
	}
	return e.Locate(ctx, p)
}

// Weather looks up current weather at the zone's first vertex. A nil
// provider yields no weather and no error.
func (e *Engine) Weather(ctx context.Context, zone domain.Zone) (*domain.WeatherSnapshot, error) {
	if e.weather == nil {
		return nil, nil
	}
	return e.weather.CurrentWeather(ctx, zone.WeatherPoint())
}

// Predict fetches a fresh prediction for zone without touching the cache.
// Weather is best effort.
func (e *Engine) Predict(ctx context.Context, zone domain.Zone) domain.ZonePrediction {
	w, err := e.Weather(ctx, zone)
	if err != nil {
		e.logger.Warn("weather unavailable, predicting without it", "zone_id", zone.ID, "error", err)
		w = nil
	}
	return domain.FromResult(zone.ID, e.fetcher.FetchPrediction(ctx, zone, w))
}

// PredictZone fetches a prediction for one zone and stores it. Concurrent
// calls for the same zone share one fetch, and so do overlapping bulk
// refreshes using Fetcher; a caller whose ctx ends stops waiting but the
// shared fetch still completes and is cached.
func (e *Engine) PredictZone(ctx context.Context, zoneID string) (domain.ZonePrediction, error) {
	zone, err := e.registry.ByID(zoneID)
	if err != nil {
		return domain.ZonePrediction{}, err
	}

	ch := e.inflight.DoChan(zone.ID, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		zp := e.Predict(fetchCtx, zone)
		e.cache.Put(fetchCtx, zp)
		e.logger.Info("zone prediction updated", "zone_id", zone.ID, "source", zp.Source, "color", zp.Color)
		return zp, nil
	})

	select {
	case res := <-ch:
		return res.Val.(domain.ZonePrediction), nil
	case <-ctx.Done():
		return domain.ZonePrediction{}, ctx.Err()
	}
}

// ApplyEvent stores a single-zone prediction pushed by a caller.
func (e *Engine) ApplyEvent(ctx context.Context, ev domain.PredictionEvent) (domain.ZonePrediction, error) {
	if _, err := e.registry.ByID(ev.ZoneID); err != nil {
		return domain.ZonePrediction{}, err
	}
	return e.cache.Apply(ctx, ev), nil
}
