package domain

import "fmt"

// DefaultConfidenceThreshold is the AI probability at or above which the AI
// estimate is trusted outright.
const DefaultConfidenceThreshold = 45

// Authority names which source decided the displayed level.
type Authority string

const (
	AuthorityAI     Authority = "AI"
	AuthorityStatic Authority = "STATIC"
)

// Assessment is the reconciled, display-ready risk for a zone. It is computed
// on read and never stored.
type Assessment struct {
	ZoneID       string     `json:"zoneId"`
	ZoneName     string     `json:"zoneName"`
	Authority    Authority  `json:"authority"`
	Level        string     `json:"level"`
	Color        ColorToken `json:"color"`
	Hex          string     `json:"hex"`
	Label        string     `json:"label"`
	Explanation  string     `json:"explanation,omitempty"`
	Probability  *float64   `json:"probability,omitempty"`
	FallbackUsed bool       `json:"fallbackUsed"`
	Static       Danger     `json:"static"`
}

// Reconcile decides whether the static AVCD level or the AI prediction is
// shown for a zone. A prediction below threshold never replaces a static
// Medio or Alto level; that case is reported with FallbackUsed set.
func Reconcile(zone Zone, prediction *ZonePrediction, threshold float64) Assessment {
	static := DangerFromAVCD(zone.AVCD)
	a := Assessment{
		ZoneID:    zone.ID,
		ZoneName:  zone.Name,
		Authority: AuthorityStatic,
		Level:     string(static.Level),
		Color:     static.Color,
		Hex:       static.Hex,
		Label:     static.Label,
		Static:    static,
	}

	if prediction == nil || prediction.Probability == nil || !prediction.Authoritative || !IsFinite(*prediction.Probability) {
		return a
	}

	p := *prediction.Probability
	a.Probability = &p

	if p < threshold && static.Level.Elevated() {
		a.FallbackUsed = true
		a.Explanation = fmt.Sprintf("IA sugirió %s%%, pero se usó AVCD como fallback", formatNumber(p))
		return a
	}

	color := ColorFromProbability(p)
	a.Authority = AuthorityAI
	a.Level = LevelFromProbability(p)
	a.Color = color
	a.Hex = ProbabilityHex(color)
	a.Label = "IA"
	if prediction.Source == SourceHeuristic {
		a.Label = "IA · fallback"
	}
	a.Explanation = prediction.Explanation
	return a
}
