// Package registry holds the read-only set of risk zones and resolves
// coordinates to zones.
package registry

import (
	"fmt"
	"os"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/paulmach/orb"
)

// Registry is an immutable collection of zones. It is safe for concurrent
// reads without locking.
type Registry struct {
	zones  []domain.Zone
	byID   map[string]int
	bounds []orb.Bound
}

// New validates the zones and builds a registry. Zone ids must be unique.
func New(zones []domain.Zone) (*Registry, error) {
	r := &Registry{
		zones:  make([]domain.Zone, 0, len(zones)),
		byID:   make(map[string]int, len(zones)),
		bounds: make([]orb.Bound, 0, len(zones)),
	}
	for _, z := range zones {
		if err := z.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[z.ID]; dup {
			return nil, fmt.Errorf("duplicate zone id %q", z.ID)
		}
		r.byID[z.ID] = len(r.zones)
		r.zones = append(r.zones, z)
		r.bounds = append(r.bounds, toRing(z.Coords).Bound())
	}
	return r, nil
}

// Default returns a registry of the built-in zones.
func Default() *Registry {
	r, err := New(DefaultZones())
	if err != nil {
		panic(fmt.Sprintf("built-in zones are invalid: %v", err))
	}
	return r
}

// Load returns the zones from a GeoJSON file, or the built-in zones when
// path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zones file: %w", err)
	}
	defer f.Close()
	return LoadGeoJSON(f)
}

// All returns every zone in registration order.
func (r *Registry) All() []domain.Zone {
	out := make([]domain.Zone, len(r.zones))
	copy(out, r.zones)
	return out
}

// IDs returns every zone id in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.zones))
	for i, z := range r.zones {
		ids[i] = z.ID
	}
	return ids
}

// Len returns the number of zones.
func (r *Registry) Len() int { return len(r.zones) }

// ByID returns the zone with the given id.
func (r *Registry) ByID(id string) (domain.Zone, error) {
	i, ok := r.byID[id]
	if !ok {
		return domain.Zone{}, fmt.Errorf("%w: %s", domain.ErrZoneNotFound, id)
	}
	return r.zones[i], nil
}

// Locate returns the first zone containing p. Bounding boxes are checked
// before the exact polygon test.
func (r *Registry) Locate(p domain.Coordinate) (domain.Zone, error) {
	pt := orb.Point{p.Lon, p.Lat}
	for i, z := range r.zones {
		if !r.bounds[i].Contains(pt) {
			continue
		}
		if z.Contains(p) {
			return z, nil
		}
	}
	return domain.Zone{}, domain.ErrOutsideZones
}

// Summary aggregates population figures across all zones.
type Summary struct {
	Zones             int                  `json:"zones"`
	Population        int                  `json:"population"`
	EstimatedAffected int                  `json:"estimatedAffected"`
	ByLevel           map[domain.Level]int `json:"byLevel"`
}

// Summary returns dashboard totals by static danger level.
func (r *Registry) Summary() Summary {
	s := Summary{
		Zones: len(r.zones),
		ByLevel: map[domain.Level]int{
			domain.LevelBajo:  0,
			domain.LevelMedio: 0,
			domain.LevelAlto:  0,
		},
	}
	for _, z := range r.zones {
		s.Population += z.Population
		s.EstimatedAffected += z.EstimatedAffected()
		s.ByLevel[domain.DangerFromAVCD(z.AVCD).Level]++
	}
	return s
}

func toRing(coords []domain.Coordinate) orb.Ring {
	ring := make(orb.Ring, 0, len(coords)+1)
	for _, c := range coords {
		ring = append(ring, orb.Point{c.Lon, c.Lat})
	}
	if len(ring) > 0 && !ring[0].Equal(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return ring
}
