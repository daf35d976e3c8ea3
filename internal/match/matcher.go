// Package match scores intent patterns against a normalized token sequence.
//
// This is a deterministic multi-pattern classifier, not a statistical model:
// its behavior is fully defined by the alignment formula below and the
// declaration-order tie-break.
package match

import (
	"sort"

	"salom/internal/models"
)

// DefaultContiguityBonus is the multiplicative bonus applied when a pattern
// matches as a contiguous, order-preserving subsequence. Tunable via
// settings; this constant is only the fallback.
const DefaultContiguityBonus = 0.15

// Matcher scores every intent's patterns against an input.
type Matcher struct {
	bonus float64
}

// NewMatcher creates a matcher with the given contiguity bonus. A negative
// bonus falls back to the default.
func NewMatcher(bonus float64) *Matcher {
	if bonus < 0 {
		bonus = DefaultContiguityBonus
	}
	return &Matcher{bonus: bonus}
}

// Match computes a ranked result list over the given intents. Intents with
// zero patterns are never directly matchable and are skipped. Ranking is by
// confidence descending, ties broken by declaration order (stable sort over
// the declaration-ordered input).
func (m *Matcher) Match(tokens []string, entities []models.Entity, intents []*models.IntentDefinition) []models.MatchResult {
	var results []models.MatchResult
	for _, def := range intents {
		if len(def.Patterns) == 0 {
			continue
		}
		best := 0.0
		var bestPattern *models.Pattern
		for i := range def.Patterns {
			score := m.scorePattern(def.Patterns[i], tokens, entities)
			if score > best {
				best = score
				bestPattern = &def.Patterns[i]
			}
		}
		if best <= 0 {
			continue
		}
		results = append(results, models.MatchResult{
			Intent:     def.ID,
			Confidence: best,
			Pattern:    bestPattern,
			Entities:   entities,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// scorePattern computes the alignment score of one pattern:
//
//	score = matched pattern tokens / pattern length
//
// multiplied by (1 + bonus) and capped at 1.0 when the matched tokens appear
// in the input as a contiguous, order-preserving run rather than a scattered
// bag-of-words match.
func (m *Matcher) scorePattern(p models.Pattern, tokens []string, entities []models.Entity) float64 {
	n := len(p.Tokens)
	if n == 0 || len(tokens) == 0 {
		return 0
	}

	var matched []models.PatternToken
	for _, pt := range p.Tokens {
		if matchesAnywhere(pt, tokens, entities) {
			matched = append(matched, pt)
		}
	}
	if len(matched) == 0 {
		return 0
	}

	score := float64(len(matched)) / float64(n)
	if contiguousAt(matched, tokens, entities) {
		score *= 1 + m.bonus
		if score > 1 {
			score = 1
		}
	}
	return score
}

// matchesAnywhere reports whether the pattern token matches at any input
// position: literal string equality, or any extracted entity of the
// placeholder's type covering the position.
func matchesAnywhere(pt models.PatternToken, tokens []string, entities []models.Entity) bool {
	for pos := range tokens {
		if matchesAt(pt, pos, tokens, entities) {
			return true
		}
	}
	return false
}

// matchesAt reports whether the pattern token matches input position pos.
func matchesAt(pt models.PatternToken, pos int, tokens []string, entities []models.Entity) bool {
	if pt.IsPlaceholder() {
		for _, e := range entities {
			if e.Type == pt.Entity && e.Covers(pos) {
				return true
			}
		}
		return false
	}
	return tokens[pos] == pt.Literal
}

// contiguousAt reports whether the token sequence aligns to some contiguous
// input window in order.
func contiguousAt(seq []models.PatternToken, tokens []string, entities []models.Entity) bool {
	n := len(seq)
	for start := 0; start+n <= len(tokens); start++ {
		all := true
		for i, pt := range seq {
			if !matchesAt(pt, start+i, tokens, entities) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
