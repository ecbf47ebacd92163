package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrUnstructured is returned when model output carries no usable
// {probability, explanation} object.
var ErrUnstructured = errors.New("no structured prediction in model output")

// Source records where a prediction's probability came from.
type Source string

const (
	SourceAI        Source = "ai"
	SourceHeuristic Source = "heuristic"
	SourceEvent     Source = "event"
	SourcePersisted Source = "persisted"
)

// PredictionResult is what the prediction fetcher hands back for one zone.
// Probability is nil only when nothing could be computed, which is a defect.
type PredictionResult struct {
	Probability *float64 `json:"probability"`
	Explanation string   `json:"explanation"`
	Source      Source   `json:"source,omitempty"`
}

// Heuristic reports whether the value is a local estimate rather than model
// output.
func (r PredictionResult) Heuristic() bool {
	return r.Source == SourceHeuristic
}

// PredictionEvent is a single-zone update pushed by a caller.
type PredictionEvent struct {
	ZoneID      string   `json:"zoneId"`
	Probability *float64 `json:"probability"`
	Explanation string   `json:"explanation"`
}

// ZonePrediction is the cached prediction for one zone. Entries are replaced
// whole and never patched in place.
type ZonePrediction struct {
	ZoneID        string     `json:"zoneId"`
	Probability   *float64   `json:"probability"`
	Explanation   string     `json:"explanation"`
	Color         ColorToken `json:"color"`
	Source        Source     `json:"source,omitempty"`
	Authoritative bool       `json:"authoritative"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewZonePrediction builds a cache entry, deriving the color from the
// probability. A nil or non-finite probability yields a green,
// non-authoritative entry.
func NewZonePrediction(zoneID string, probability *float64, explanation string, source Source) ZonePrediction {
	zp := ZonePrediction{
		ZoneID:      zoneID,
		Explanation: explanation,
		Color:       ColorGreen,
		Source:      source,
		UpdatedAt:   clock.Now().UTC(),
	}
	if probability != nil && IsFinite(*probability) {
		p := clamp(*probability, 0, 100)
		zp.Probability = &p
		zp.Color = ColorFromProbability(p)
		zp.Authoritative = true
	}
	return zp
}

// FromResult converts a fetcher result into a cache entry.
func FromResult(zoneID string, r PredictionResult) ZonePrediction {
	return NewZonePrediction(zoneID, r.Probability, r.Explanation, r.Source)
}

// FromEvent converts a single-zone event into a cache entry.
func FromEvent(e PredictionEvent) ZonePrediction {
	return NewZonePrediction(e.ZoneID, e.Probability, e.Explanation, SourceEvent)
}

// ParsePrediction extracts {probability, explanation} from model output. The
// whole text is tried as JSON first, then each balanced {...} substring in
// order. Probability may be a JSON number or a numeric string.
func ParsePrediction(text string) (PredictionResult, error) {
	text = strings.TrimSpace(text)
	if r, ok := decodePrediction(text); ok {
		return r, nil
	}
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchBrace(text, start)
		if end < 0 {
			break
		}
		if r, ok := decodePrediction(text[start : end+1]); ok {
			return r, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return PredictionResult{}, ErrUnstructured
}

func decodePrediction(s string) (PredictionResult, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return PredictionResult{}, false
	}
	p, ok := numberValue(obj["probability"])
	if !ok {
		return PredictionResult{}, false
	}
	explanation, _ := obj["explanation"].(string)
	return PredictionResult{Probability: &p, Explanation: explanation, Source: SourceAI}, true
}

// matchBrace returns the index of the brace closing the one at start, skipping
// braces inside JSON strings, or -1 if it is never closed.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
