package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	laMaria = []Coordinate{
		{Lat: 4.586, Lon: -74.225},
		{Lat: 4.58, Lon: -74.215},
		{Lat: 4.587, Lon: -74.205},
		{Lat: 4.593, Lon: -74.212},
	}
	square = []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 10},
		{Lat: 10, Lon: 10},
		{Lat: 10, Lon: 0},
	}
	// U shape open towards high latitude.
	concave = []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 9},
		{Lat: 9, Lon: 9},
		{Lat: 9, Lon: 6},
		{Lat: 3, Lon: 6},
		{Lat: 3, Lon: 3},
		{Lat: 9, Lon: 3},
		{Lat: 9, Lon: 0},
	}
)

func TestPointInPolygon(t *testing.T) {
	tests := []struct {
		name    string
		point   Coordinate
		polygon []Coordinate
		want    bool
	}{
		{"square center", Coordinate{5, 5}, square, true},
		{"square outside", Coordinate{15, 5}, square, false},
		{"square negative", Coordinate{-1, -1}, square, false},
		{"concave arm", Coordinate{6, 1.5}, concave, true},
		{"concave notch", Coordinate{6, 4.5}, concave, false},
		{"concave base", Coordinate{1.5, 4.5}, concave, true},
		{"la maria meeting point", Coordinate{4.589, -74.219}, laMaria, true},
		{"la maria far away", Coordinate{4.60, -74.30}, laMaria, false},
		{"el danubio point not in la maria", Coordinate{4.5895, -74.197}, laMaria, false},
		{"degenerate polygon", Coordinate{0, 0}, square[:2], false},
		{"empty polygon", Coordinate{0, 0}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInPolygon(tt.point, tt.polygon))
		})
	}
}

func TestPointInPolygon_BoundaryIsDocumented(t *testing.T) {
	// Low-x and low-y edges count as inside, the opposite edges as outside.
	assert.True(t, PointInPolygon(Coordinate{0, 5}, square))
	assert.True(t, PointInPolygon(Coordinate{5, 0}, square))
	assert.False(t, PointInPolygon(Coordinate{10, 5}, square))
	assert.False(t, PointInPolygon(Coordinate{5, 10}, square))
}

func TestPointInPolygon_RotationInvariant(t *testing.T) {
	for name, polygon := range map[string][]Coordinate{"square": square, "concave": concave, "la maria": laMaria} {
		t.Run(name, func(t *testing.T) {
			minLat, maxLat := polygon[0].Lat, polygon[0].Lat
			minLon, maxLon := polygon[0].Lon, polygon[0].Lon
			for _, c := range polygon {
				minLat, maxLat = min(minLat, c.Lat), max(maxLat, c.Lat)
				minLon, maxLon = min(minLon, c.Lon), max(maxLon, c.Lon)
			}
			const steps = 20
			for shift := 1; shift < len(polygon); shift++ {
				rotated := append(append([]Coordinate{}, polygon[shift:]...), polygon[:shift]...)
				for i := -2; i <= steps+2; i++ {
					for j := -2; j <= steps+2; j++ {
						p := Coordinate{
							Lat: minLat + (maxLat-minLat)*float64(i)/steps,
							Lon: minLon + (maxLon-minLon)*float64(j)/steps,
						}
						assert.Equal(t, PointInPolygon(p, polygon), PointInPolygon(p, rotated),
							"shift=%d point=%v", shift, p)
					}
				}
			}
		})
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid(laMaria)
	assert.InDelta(t, 4.5865, c.Lat, 1e-9)
	assert.InDelta(t, -74.21425, c.Lon, 1e-9)
	assert.True(t, PointInPolygon(c, laMaria))

	assert.Equal(t, Coordinate{Lat: 5, Lon: 5}, Centroid(square))
	assert.Equal(t, Coordinate{}, Centroid(nil))
}

func TestCentroid_IsVertexMeanNotAreaCentroid(t *testing.T) {
	// Extra vertices along one edge pull the mean but not the area centroid.
	skewed := []Coordinate{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {7.5, 0}, {5, 0}, {2.5, 0}}
	c := Centroid(skewed)
	assert.InDelta(t, 5.0, c.Lat, 1e-9)
	assert.InDelta(t, 20.0/7.0, c.Lon, 1e-9)
}
