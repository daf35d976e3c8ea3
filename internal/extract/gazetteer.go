package extract

import (
	"context"
	"strings"

	"salom/internal/models"
	"salom/internal/registry"
)

// maxGazetteerSpan is the longest multi-token surface form looked up.
const maxGazetteerSpan = 3

// gazetteerConfidence is assigned to literal table hits.
const gazetteerConfidence = 1.0

// Gazetteer extracts entities by literal lookup against the value tables of
// one language: city names, date words and recognized followup keywords.
// Deterministic and language-independent once the tables are built.
type Gazetteer struct {
	cities   map[string]string
	dates    map[string]string
	keywords map[string]string
}

// NewGazetteer builds the lookup tables from a loaded language config.
func NewGazetteer(cfg *registry.LanguageConfig) *Gazetteer {
	keywords := make(map[string]string)
	for _, kw := range cfg.FollowupKeywords() {
		keywords[kw] = kw
	}
	return &Gazetteer{
		cities:   cfg.Cities,
		dates:    cfg.Dates,
		keywords: keywords,
	}
}

// Extract scans the token sequence for table hits, preferring the longest
// surface form at each position. Never fails.
func (g *Gazetteer) Extract(ctx context.Context, tokens []string, language string) ([]models.Entity, error) {
	_ = ctx
	_ = language
	var out []models.Entity
	for start := 0; start < len(tokens); start++ {
		limit := start + maxGazetteerSpan
		if limit > len(tokens) {
			limit = len(tokens)
		}
		for end := limit; end > start; end-- {
			surface := strings.Join(tokens[start:end], " ")
			if value, ok := g.cities[surface]; ok {
				out = append(out, models.Entity{Type: models.EntityCity, Value: value, Start: start, End: end, Confidence: gazetteerConfidence})
				break
			}
			if value, ok := g.dates[surface]; ok {
				out = append(out, models.Entity{Type: models.EntityDate, Value: value, Start: start, End: end, Confidence: gazetteerConfidence})
				break
			}
			if value, ok := g.keywords[surface]; ok {
				out = append(out, models.Entity{Type: models.EntityKeyword, Value: value, Start: start, End: end, Confidence: gazetteerConfidence})
				break
			}
		}
	}
	return out, nil
}
