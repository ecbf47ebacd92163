// Package geoip resolves client IP addresses to coordinates with a local
// MaxMind GeoLite2/GeoIP2 City database.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Locator implements domain.IPLocator.
type Locator struct {
	reader  cityReader
	metrics *observability.Metrics
}

// Open loads the database at path.
func Open(path string, metrics *observability.Metrics) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &Locator{reader: r, metrics: metrics}, nil
}

// Locate returns the city-level position of ip. Every failure, including an
// address the database does not know, is reported as
// domain.ErrGeolocationUnavailable.
func (l *Locator) Locate(ctx context.Context, ip net.IP) (domain.Coordinate, error) {
	coord, err := l.locate(ctx, ip)
	if err != nil {
		l.metrics.GeolocationRequests.WithLabelValues("error").Inc()
		return domain.Coordinate{}, err
	}
	l.metrics.GeolocationRequests.WithLabelValues("success").Inc()
	return coord, nil
}

func (l *Locator) locate(ctx context.Context, ip net.IP) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, errors.Join(domain.ErrGeolocationUnavailable, err)
	}
	if ip == nil {
		return domain.Coordinate{}, fmt.Errorf("%w: no client address", domain.ErrGeolocationUnavailable)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return domain.Coordinate{}, fmt.Errorf("%w: %s is not routable", domain.ErrGeolocationUnavailable, ip)
	}

	rec, err := l.reader.City(ip)
	if err != nil {
		return domain.Coordinate{}, errors.Join(domain.ErrGeolocationUnavailable, err)
	}
	loc := rec.Location
	if loc.Latitude == 0 && loc.Longitude == 0 && loc.AccuracyRadius == 0 {
		return domain.Coordinate{}, fmt.Errorf("%w: no location for %s", domain.ErrGeolocationUnavailable, ip)
	}
	return domain.Coordinate{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}

// Close releases the database.
func (l *Locator) Close() error {
	return l.reader.Close()
}
