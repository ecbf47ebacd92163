package registry

import "github.com/Cybert47/sistema-resilencia-climatica/internal/domain"

// MapCenter is the default map focus for the built-in zones.
var MapCenter = domain.Coordinate{Lat: 4.587, Lon: -74.210}

// DefaultZones returns the built-in zones of the pilot area.
func DefaultZones() []domain.Zone {
	return []domain.Zone{
		{
			ID:   "la-maria",
			Name: "La María",
			Coords: []domain.Coordinate{
				{Lat: 4.586, Lon: -74.225},
				{Lat: 4.58, Lon: -74.215},
				{Lat: 4.587, Lon: -74.205},
				{Lat: 4.593, Lon: -74.212},
			},
			AVCD:       78,
			CMSR:       45,
			Population: 4200,
			EvacuationRoutes: [][]domain.Coordinate{
				{{Lat: 4.587, Lon: -74.223}, {Lat: 4.585, Lon: -74.216}, {Lat: 4.59, Lon: -74.208}},
				{{Lat: 4.589, Lon: -74.22}, {Lat: 4.592, Lon: -74.212}},
			},
			MeetingPoints: []domain.MeetingPoint{
				{ID: "lm-p1", Name: "Punto de encuentro 1", Coord: domain.Coordinate{Lat: 4.589, Lon: -74.219}, Description: "Parque central"},
				{ID: "lm-p2", Name: "Punto de encuentro 2", Coord: domain.Coordinate{Lat: 4.591, Lon: -74.21}, Description: "Iglesia principal"},
			},
		},
		{
			ID:   "el-danubio",
			Name: "El Danubio",
			Coords: []domain.Coordinate{
				{Lat: 4.595, Lon: -74.198},
				{Lat: 4.588, Lon: -74.19},
				{Lat: 4.58, Lon: -74.195},
				{Lat: 4.586, Lon: -74.205},
			},
			AVCD:       66,
			CMSR:       55,
			Population: 3800,
			MeetingPoints: []domain.MeetingPoint{
				{ID: "ed-p1", Name: "Punto de encuentro A", Coord: domain.Coordinate{Lat: 4.5895, Lon: -74.197}, Description: "Cancha comunal"},
			},
		},
	}
}
