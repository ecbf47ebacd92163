package domain

import "math"

// Level is a discrete static danger level.
type Level string

const (
	LevelBajo  Level = "Bajo"
	LevelMedio Level = "Medio"
	LevelAlto  Level = "Alto"
)

// Elevated reports whether the level is Medio or Alto.
func (l Level) Elevated() bool {
	return l == LevelMedio || l == LevelAlto
}

// ColorToken is the three-way risk color shared by both scales.
type ColorToken string

const (
	ColorGreen ColorToken = "green"
	ColorAmber ColorToken = "amber"
	ColorRed   ColorToken = "red"
)

// Danger is the static classification derived from AVCD.
type Danger struct {
	Level Level      `json:"level"`
	Color ColorToken `json:"color"`
	Label string     `json:"label"`
	Hex   string     `json:"hex"`
}

// AVCD thresholds. Lower bounds are inclusive.
const (
	avcdAlto  = 75
	avcdMedio = 60
)

// Probability thresholds. Lower bounds are inclusive.
const (
	probRed   = 70
	probAmber = 40
)

// DangerFromAVCD maps a vulnerability score to its static danger level.
func DangerFromAVCD(avcd float64) Danger {
	switch {
	case avcd >= avcdAlto:
		return Danger{Level: LevelAlto, Color: ColorRed, Label: "Rojo", Hex: "#E60000"}
	case avcd >= avcdMedio:
		return Danger{Level: LevelMedio, Color: ColorAmber, Label: "Amarillo", Hex: "#FF8A00"}
	default:
		return Danger{Level: LevelBajo, Color: ColorGreen, Label: "Verde", Hex: "#2EA043"}
	}
}

// ColorFromProbability maps an AI probability (0-100) to a color token.
func ColorFromProbability(p float64) ColorToken {
	switch {
	case p >= probRed:
		return ColorRed
	case p >= probAmber:
		return ColorAmber
	default:
		return ColorGreen
	}
}

// LevelFromProbability returns the display wording for an AI probability.
func LevelFromProbability(p float64) string {
	switch ColorFromProbability(p) {
	case ColorRed:
		return "Alta"
	case ColorAmber:
		return "Media"
	default:
		return "Baja"
	}
}

// ProbabilityHex is the map fill for an AI color token.
func ProbabilityHex(c ColorToken) string {
	switch c {
	case ColorRed:
		return "#E00000"
	case ColorAmber:
		return "#F59E0B"
	default:
		return "#10B981"
	}
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// IsFinite reports whether x is neither NaN nor an infinity. Non-finite
// probabilities are treated as missing.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
