// Package extract identifies typed entity spans in a token sequence.
//
// Two strategies cooperate: a deterministic gazetteer lookup and a delegated
// external tagger. Their results are unioned and conflicts resolved by span
// length (longer wins) with earlier start index breaking ties. The delegated
// tagger is optional: when it is unavailable or times out, extraction
// degrades to gazetteer-only results instead of failing the request.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"salom/internal/models"
)

// ErrExtractionDegraded signals that the delegated tagger did not contribute
// and the returned entities are gazetteer-only. Non-fatal: callers log a
// warning and proceed with the partial result.
var ErrExtractionDegraded = errors.New("entity extraction degraded to gazetteer-only results")

// Extractor is the entity extraction capability.
type Extractor interface {
	Extract(ctx context.Context, tokens []string, language string) ([]models.Entity, error)
}

// Composite unions the gazetteer and delegated strategies.
type Composite struct {
	gazetteer Extractor
	delegated Extractor
}

// NewComposite builds the combined extractor. delegated may be nil, in which
// case every extraction is gazetteer-only and reported as degraded.
func NewComposite(gazetteer, delegated Extractor) *Composite {
	return &Composite{gazetteer: gazetteer, delegated: delegated}
}

// Extract runs both strategies and resolves overlaps. When the delegated
// strategy fails the gazetteer entities are still returned together with
// ErrExtractionDegraded.
func (c *Composite) Extract(ctx context.Context, tokens []string, language string) ([]models.Entity, error) {
	base, err := c.gazetteer.Extract(ctx, tokens, language)
	if err != nil {
		return nil, err
	}

	if c.delegated == nil {
		return ResolveOverlaps(base), ErrExtractionDegraded
	}

	tagged, err := c.delegated.Extract(ctx, tokens, language)
	if err != nil {
		slog.Warn("Composite.Extract: delegated tagger unavailable, degrading", "language", language, "error", err)
		return ResolveOverlaps(base), ErrExtractionDegraded
	}
	return ResolveOverlaps(append(base, tagged...)), nil
}

// ResolveOverlaps drops entities whose spans collide with a better candidate.
// Longer spans win; equal lengths go to the earlier start index; remaining
// ties go to the higher confidence.
func ResolveOverlaps(entities []models.Entity) []models.Entity {
	if len(entities) <= 1 {
		return entities
	}
	ranked := make([]models.Entity, len(entities))
	copy(ranked, entities)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Len() != ranked[j].Len() {
			return ranked[i].Len() > ranked[j].Len()
		}
		if ranked[i].Start != ranked[j].Start {
			return ranked[i].Start < ranked[j].Start
		}
		return ranked[i].Confidence > ranked[j].Confidence
	})

	var kept []models.Entity
	for _, cand := range ranked {
		conflict := false
		for _, k := range kept {
			if cand.Overlaps(k) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, cand)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// FindType returns the first entity of the given type, in span order.
func FindType(entities []models.Entity, t models.EntityType) (models.Entity, bool) {
	for _, e := range entities {
		if e.Type == t {
			return e, true
		}
	}
	return models.Entity{}, false
}
