package geoip

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

type fakeReader struct {
	city *geoip2.City
	err  error
}

func (f *fakeReader) City(net.IP) (*geoip2.City, error) { return f.city, f.err }
func (f *fakeReader) Close() error                      { return nil }

func cityAt(lat, lon float64, radius uint16) *geoip2.City {
	c := &geoip2.City{}
	c.Location.Latitude = lat
	c.Location.Longitude = lon
	c.Location.AccuracyRadius = radius
	return c
}

func TestLocate(t *testing.T) {
	m := observability.NewMetricsForTesting()
	l := &Locator{reader: &fakeReader{city: cityAt(4.5865, -74.2142, 20)}, metrics: m}

	got, err := l.Locate(context.Background(), net.ParseIP("181.49.1.1"))
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinate{Lat: 4.5865, Lon: -74.2142}, got)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GeolocationRequests.WithLabelValues("success")), 0)
}

func TestLocate_Unavailable(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		reader *fakeReader
		ip     net.IP
	}{
		{"nil ip", context.Background(), &fakeReader{city: cityAt(1, 1, 1)}, nil},
		{"loopback", context.Background(), &fakeReader{city: cityAt(1, 1, 1)}, net.ParseIP("127.0.0.1")},
		{"private", context.Background(), &fakeReader{city: cityAt(1, 1, 1)}, net.ParseIP("10.0.0.4")},
		{"lookup error", context.Background(), &fakeReader{err: errors.New("corrupt")}, net.ParseIP("181.49.1.1")},
		{"unknown address", context.Background(), &fakeReader{city: cityAt(0, 0, 0)}, net.ParseIP("181.49.1.1")},
		{"canceled", canceled, &fakeReader{city: cityAt(1, 1, 1)}, net.ParseIP("181.49.1.1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := observability.NewMetricsForTesting()
			l := &Locator{reader: tt.reader, metrics: m}

			_, err := l.Locate(tt.ctx, tt.ip)
			assert.ErrorIs(t, err, domain.ErrGeolocationUnavailable)
			assert.InDelta(t, 1, testutil.ToFloat64(m.GeolocationRequests.WithLabelValues("error")), 0)
		})
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open("/nonexistent/GeoLite2-City.mmdb", observability.NewMetricsForTesting())
	require.Error(t, err)
}
