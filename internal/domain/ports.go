package domain

import (
	"context"
	"net"
)

// WeatherProvider looks up current weather at a coordinate. Implementations
// return an error when the lookup fails; callers treat that as "no weather
// context" rather than a failed prediction.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, at Coordinate) (*WeatherSnapshot, error)
}

// PredictionFetcher obtains a probability for a zone. It never fails: every
// error path resolves to a heuristic result.
type PredictionFetcher interface {
	FetchPrediction(ctx context.Context, zone Zone, weather *WeatherSnapshot) PredictionResult
}

// IPLocator resolves an IP address to an approximate coordinate.
type IPLocator interface {
	Locate(ctx context.Context, ip net.IP) (Coordinate, error)
}
