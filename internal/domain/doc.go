// Package domain models community disaster-risk zones and the rules that turn
// a zone's static indices and an optional AI estimate into a displayed risk.
//
// # Indices
//
// Every zone carries two curated scores on a 0-100+ scale:
//
//	AVCD  vulnerability / damage capacity. Higher means more exposed.
//	CMSR  community resilience. Higher means better prepared.
//
// The static danger level is a step function of AVCD alone:
//
//	AVCD >= 75        Alto   (red)
//	60 <= AVCD < 75   Medio  (amber)
//	AVCD < 60         Bajo   (green)
//
// AI probabilities (0-100) use a different step function:
//
//	p >= 70        red
//	40 <= p < 70   amber
//	p < 40         green
//
// The scales are deliberately distinct and must not be merged.
//
// # Coordinates
//
// Coordinates are (latitude, longitude) pairs in decimal degrees. Polygons
// are implicitly closed: the last vertex connects back to the first and need
// not repeat it.
//
// # Predictions
//
// A ZonePrediction is replaced whole on every update. A probability that is
// absent after normalization marks the entry as non-authoritative, and the
// reconciliation rules then fall back to the static level.
//
// # Reconciliation
//
// An AI probability at or above the confidence threshold always wins. Below
// the threshold it only wins when the static level is Bajo; a zone that is
// statically Medio or Alto keeps its static level and the result is flagged
// as a fallback, so a weak AI reading never silently downgrades it.
//
// # User-facing text
//
// Labels and explanations are produced in Spanish because they are rendered
// verbatim by the dashboard.
package domain
