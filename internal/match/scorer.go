package match

import (
	"log/slog"

	"salom/internal/models"
)

// DefaultThreshold is the confidence floor below which no intent is accepted
// and the caller applies the global fallback.
const DefaultThreshold = 0.4

// Scorer is the thin acceptance policy over the matcher's ranking: it applies
// the configured threshold and leaves the raw confidence untouched for
// observability.
type Scorer struct {
	threshold float64
}

// NewScorer creates a scorer with the given threshold. Non-positive values
// fall back to the default.
func NewScorer(threshold float64) *Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scorer{threshold: threshold}
}

// Pick returns the top-ranked result when it clears the threshold. ok=false
// means no intent matched well enough and the fallback applies; the returned
// confidence is still the raw top value (zero when nothing matched at all).
func (s *Scorer) Pick(results []models.MatchResult) (models.MatchResult, bool) {
	if len(results) == 0 {
		return models.MatchResult{}, false
	}
	top := results[0]
	if top.Confidence < s.threshold {
		slog.Debug("Scorer.Pick: top confidence below threshold", "intent", top.Intent, "confidence", top.Confidence, "threshold", s.threshold)
		return models.MatchResult{Confidence: top.Confidence}, false
	}
	return top, true
}

// Threshold exposes the configured floor.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}
