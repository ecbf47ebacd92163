package domain

import (
	"encoding/json"
	"strconv"
)

// WeatherSnapshot is best-effort weather context for a zone. The engine only
// inspects a few optional numeric fields; the raw payload is passed through to
// the AI request untouched.
type WeatherSnapshot struct {
	Precipitation *float64
	Temperature   *float64
	Humidity      *float64
	Description   string
	Raw           json.RawMessage
}

// UnmarshalJSON accepts either a flat object ({"precipitation", "temperature",
// "humidity"} or the short "precip"/"temp" keys) or an OpenWeatherMap current
// weather payload (main.temp, main.humidity, rain.1h, rain.3h). Fields of an
// unexpected type are ignored rather than rejected.
func (w *WeatherSnapshot) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*w = WeatherSnapshot{Raw: append(json.RawMessage(nil), data...)}

	mainBlock, _ := m["main"].(map[string]any)
	rain, _ := m["rain"].(map[string]any)

	w.Precipitation = firstNumber(m["precipitation"], m["precip"], rain["1h"], rain["3h"])
	w.Temperature = firstNumber(m["temperature"], m["temp"], mainBlock["temp"])
	w.Humidity = firstNumber(m["humidity"], mainBlock["humidity"])

	if list, ok := m["weather"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			w.Description, _ = first["description"].(string)
		}
	}
	if w.Description == "" {
		w.Description, _ = m["description"].(string)
	}
	return nil
}

// MarshalJSON returns the original payload when there is one, otherwise the
// flat representation.
func (w WeatherSnapshot) MarshalJSON() ([]byte, error) {
	if len(w.Raw) > 0 {
		return w.Raw, nil
	}
	flat := struct {
		Precipitation *float64 `json:"precipitation,omitempty"`
		Temperature   *float64 `json:"temperature,omitempty"`
		Humidity      *float64 `json:"humidity,omitempty"`
		Description   string   `json:"description,omitempty"`
	}{w.Precipitation, w.Temperature, w.Humidity, w.Description}
	return json.Marshal(flat)
}

// Float64 returns a pointer to v, for building snapshots by hand.
func Float64(v float64) *float64 {
	return &v
}

func firstNumber(values ...any) *float64 {
	for _, v := range values {
		if f, ok := v.(float64); ok {
			return &f
		}
	}
	return nil
}

// numberValue accepts a JSON number or a numeric string.
func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, IsFinite(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil || !IsFinite(f) {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && IsFinite(f)
	}
	return 0, false
}
