package cache

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
)

// persistedEntry is the lenient on-disk shape. Probability may have been
// written as a number, a numeric string, or nothing at all.
type persistedEntry struct {
	Probability any           `json:"probability"`
	Explanation any           `json:"explanation"`
	Source      domain.Source `json:"source"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func decode(data []byte) (map[string]domain.ZonePrediction, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]domain.ZonePrediction, len(raw))
	for zoneID, msg := range raw {
		var pe persistedEntry
		if err := json.Unmarshal(msg, &pe); err != nil {
			// Unreadable entries degrade like a missing probability.
			pe = persistedEntry{}
		}
		out[zoneID] = normalize(zoneID, pe)
	}
	return out, nil
}

// normalize rebuilds an entry from what can be trusted: the color is always
// derived from the probability, never read back.
func normalize(zoneID string, pe persistedEntry) domain.ZonePrediction {
	explanation, _ := pe.Explanation.(string)
	source := pe.Source
	if source == "" {
		source = domain.SourcePersisted
	}

	zp := domain.NewZonePrediction(zoneID, probability(pe.Probability), explanation, source)
	if !pe.UpdatedAt.IsZero() {
		zp.UpdatedAt = pe.UpdatedAt
	}
	return zp
}

func probability(v any) *float64 {
	switch t := v.(type) {
	case float64:
		if domain.IsFinite(t) {
			return &t
		}
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil && domain.IsFinite(f) {
			return &f
		}
	}
	return nil
}
