package registry

import (
	"fmt"
	"io"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds written to and read from the "kind" property.
const (
	kindZone            = "zone"
	kindEvacuationRoute = "evacuationRoute"
	kindMeetingPoint    = "meetingPoint"
)

// GeoJSON exports the registry as a FeatureCollection: one Polygon per zone,
// a LineString per evacuation route and a Point per meeting point.
func (r *Registry) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, z := range r.zones {
		danger := domain.DangerFromAVCD(z.AVCD)

		f := geojson.NewFeature(orb.Polygon{toRing(z.Coords)})
		f.ID = z.ID
		f.Properties = geojson.Properties{
			"kind":       kindZone,
			"id":         z.ID,
			"name":       z.Name,
			"avcd":       z.AVCD,
			"cmsr":       z.CMSR,
			"population": z.Population,
			"level":      string(danger.Level),
			"color":      danger.Hex,
		}
		fc.Append(f)

		for i, route := range z.EvacuationRoutes {
			line := make(orb.LineString, 0, len(route))
			for _, c := range route {
				line = append(line, orb.Point{c.Lon, c.Lat})
			}
			rf := geojson.NewFeature(line)
			rf.ID = fmt.Sprintf("%s-route-%d", z.ID, i+1)
			rf.Properties = geojson.Properties{
				"kind":   kindEvacuationRoute,
				"zoneId": z.ID,
				"color":  z.RouteColor(),
			}
			fc.Append(rf)
		}

		for _, mp := range z.MeetingPoints {
			pf := geojson.NewFeature(orb.Point{mp.Coord.Lon, mp.Coord.Lat})
			pf.ID = mp.ID
			pf.Properties = geojson.Properties{
				"kind":        kindMeetingPoint,
				"zoneId":      z.ID,
				"id":          mp.ID,
				"name":        mp.Name,
				"description": mp.Description,
			}
			fc.Append(pf)
		}
	}
	return fc
}

// LoadGeoJSON builds a registry from a FeatureCollection in the format written
// by GeoJSON. Polygon features without a "kind" property are taken as zones.
func LoadGeoJSON(rd io.Reader) (*Registry, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	var zones []domain.Zone
	index := make(map[string]int)
	var extras []*geojson.Feature

	for _, f := range fc.Features {
		kind := f.Properties.MustString("kind", kindZone)
		if kind != kindZone {
			extras = append(extras, f)
			continue
		}
		z, err := zoneFromFeature(f)
		if err != nil {
			return nil, err
		}
		index[z.ID] = len(zones)
		zones = append(zones, z)
	}

	for _, f := range extras {
		zoneID := f.Properties.MustString("zoneId", "")
		i, ok := index[zoneID]
		if !ok {
			return nil, fmt.Errorf("feature %v references unknown zone %q", f.ID, zoneID)
		}
		switch g := f.Geometry.(type) {
		case orb.LineString:
			route := make([]domain.Coordinate, 0, len(g))
			for _, p := range g {
				route = append(route, domain.Coordinate{Lat: p.Lat(), Lon: p.Lon()})
			}
			zones[i].EvacuationRoutes = append(zones[i].EvacuationRoutes, route)
		case orb.Point:
			zones[i].MeetingPoints = append(zones[i].MeetingPoints, domain.MeetingPoint{
				ID:          f.Properties.MustString("id", featureID(f)),
				Name:        f.Properties.MustString("name", ""),
				Coord:       domain.Coordinate{Lat: g.Lat(), Lon: g.Lon()},
				Description: f.Properties.MustString("description", ""),
			})
		default:
			return nil, fmt.Errorf("feature %v: unsupported geometry %T", f.ID, f.Geometry)
		}
	}

	return New(zones)
}

func zoneFromFeature(f *geojson.Feature) (domain.Zone, error) {
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok || len(poly) == 0 {
		return domain.Zone{}, fmt.Errorf("zone feature %v: geometry must be a Polygon", f.ID)
	}
	ring := poly[0]
	if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}
	coords := make([]domain.Coordinate, 0, len(ring))
	for _, p := range ring {
		coords = append(coords, domain.Coordinate{Lat: p.Lat(), Lon: p.Lon()})
	}

	id := f.Properties.MustString("id", featureID(f))
	return domain.Zone{
		ID:         id,
		Name:       f.Properties.MustString("name", id),
		Coords:     coords,
		AVCD:       f.Properties.MustFloat64("avcd", 0),
		CMSR:       f.Properties.MustFloat64("cmsr", 0),
		Population: f.Properties.MustInt("population", 0),
	}, nil
}

func featureID(f *geojson.Feature) string {
	if s, ok := f.ID.(string); ok {
		return s
	}
	return ""
}
