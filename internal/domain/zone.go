package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrZoneNotFound is returned when a zone id is not in the registry.
	ErrZoneNotFound = errors.New("zone not found")
	// ErrOutsideZones is returned when a point falls outside every zone.
	ErrOutsideZones = errors.New("point is outside all known zones")
	// ErrGeolocationUnavailable is returned when a position could not be
	// determined. It is terminal for the request and never retried.
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")
)

// Coordinate is a (latitude, longitude) pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MeetingPoint is a designated gathering place inside or near a zone.
type MeetingPoint struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Coord       Coordinate `json:"coord"`
	Description string     `json:"description,omitempty"`
}

// Zone is a named risk region. Zones are reference data and are never
// mutated after the registry is built.
type Zone struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Coords           []Coordinate   `json:"coords"`
	AVCD             float64        `json:"avcd"`
	CMSR             float64        `json:"cmsr"`
	Population       int            `json:"population"`
	EvacuationRoutes [][]Coordinate `json:"evacuationRoutes,omitempty"`
	MeetingPoints    []MeetingPoint `json:"meetingPoints,omitempty"`
}

// Validate checks the structural invariants of a zone.
func (z Zone) Validate() error {
	if z.ID == "" {
		return errors.New("zone id is required")
	}
	if len(z.Coords) < 3 {
		return fmt.Errorf("zone %q: polygon needs at least 3 vertices, got %d", z.ID, len(z.Coords))
	}
	if z.Population < 0 {
		return fmt.Errorf("zone %q: population must be non-negative", z.ID)
	}
	return nil
}

// Contains reports whether the point lies inside the zone polygon.
func (z Zone) Contains(p Coordinate) bool {
	return PointInPolygon(p, z.Coords)
}

// Center returns the representative display point of the zone.
func (z Zone) Center() Coordinate {
	return Centroid(z.Coords)
}

// WeatherPoint is where current weather is sampled: the first vertex.
func (z Zone) WeatherPoint() Coordinate {
	if len(z.Coords) == 0 {
		return Coordinate{}
	}
	return z.Coords[0]
}

// EstimatedAffected is the dashboard's rough count of residents likely to be
// affected, scaling population by AVCD.
func (z Zone) EstimatedAffected() int {
	return int(roundHalfUp(float64(z.Population) * (z.AVCD / 100) * 0.12))
}

// RouteColor is the display color for the zone's evacuation routes.
func (z Zone) RouteColor() string {
	if z.AVCD >= 75 {
		return "red"
	}
	return "blue"
}
