package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const weatherExcerptLen = 200

// ClientHeuristic is the local estimate used when the AI proxy cannot be
// reached or answers with something unusable. It starts from AVCD, adds rain
// and humidity terms, and adds a resilience term that grows as CMSR falls.
// The result is deterministic for identical inputs.
func ClientHeuristic(zone Zone, w *WeatherSnapshot) PredictionResult {
	base := clamp(zone.AVCD, 0, 100)

	var weatherFactor float64
	if w != nil {
		if w.Precipitation != nil {
			switch rain := *w.Precipitation; {
			case rain > 5:
				weatherFactor += 12
			case rain > 1:
				weatherFactor += 6
			}
		}
		if w.Humidity != nil && *w.Humidity > 80 {
			weatherFactor += 6
		}
	}

	cmsrFactor := (100 - clamp(zone.CMSR, 0, 100)) * 0.2
	p := clamp(roundHalfUp(base+cmsrFactor+weatherFactor), 0, 100)

	return PredictionResult{
		Probability: &p,
		Explanation: fmt.Sprintf("Fallback heurístico local: AVCD=%s, CMSR=%s, weather=%s",
			formatNumber(zone.AVCD), formatNumber(zone.CMSR), weatherExcerpt(w)),
		Source: SourceHeuristic,
	}
}

// ProxyHeuristic is the estimate the AI proxy returns when the upstream model
// fails or answers without structure. AVCD and CMSR count only when present
// and non-zero.
func ProxyHeuristic(w *WeatherSnapshot, avcd, cmsr *float64) PredictionResult {
	p := 0.05
	var precip, temp *float64
	if w != nil {
		precip, temp = w.Precipitation, w.Temperature
	}
	if precip != nil {
		p += min(0.5, *precip*0.03)
	}
	if temp != nil {
		switch {
		case *temp > 30:
			p += 0.08
		case *temp > 25:
			p += 0.04
		}
	}
	if avcd != nil && *avcd != 0 {
		p += 0.18
	}
	if cmsr != nil && *cmsr != 0 {
		p += 0.12
	}
	p = clamp(p, 0, 0.99)
	probability := roundHalfUp(p * 100)

	return PredictionResult{
		Probability: &probability,
		Explanation: fmt.Sprintf("Heurística local: riesgo estimado en base a precip(%s), temp(%s), AVCD=%s, CMSR=%s",
			formatOptional(precip), formatOptional(temp), formatOptional(avcd), formatOptional(cmsr)),
		Source: SourceHeuristic,
	}
}

func weatherExcerpt(w *WeatherSnapshot) string {
	if w == nil {
		return "{}"
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "{}"
	}
	if r := []rune(string(data)); len(r) > weatherExcerptLen {
		return string(r[:weatherExcerptLen])
	}
	return string(data)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/d"
	}
	return formatNumber(*v)
}
