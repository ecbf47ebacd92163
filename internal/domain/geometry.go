package domain

// PointInPolygon reports whether p lies inside polygon using a ray-casting
// parity test. Latitude is treated as x and longitude as y. Edges wrap from
// the last vertex back to the first, and horizontal edges are skipped by the
// strict comparison on y.
//
// The result for a point exactly on an edge or vertex is not specified: with
// this crossing rule, points on edges facing lower y and lower x tend to count
// as inside and points on the opposite edges as outside. Callers must not
// depend on either outcome.
func PointInPolygon(p Coordinate, polygon []Coordinate) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	x, y := p.Lat, p.Lon
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := polygon[i].Lat, polygon[i].Lon
		xj, yj := polygon[j].Lat, polygon[j].Lon

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Centroid returns the arithmetic mean of the polygon's vertices. It is a
// display anchor, not the area-weighted centroid.
func Centroid(polygon []Coordinate) Coordinate {
	if len(polygon) == 0 {
		return Coordinate{}
	}
	var lat, lon float64
	for _, c := range polygon {
		lat += c.Lat
		lon += c.Lon
	}
	n := float64(len(polygon))
	return Coordinate{Lat: lat / n, Lon: lon / n}
}
