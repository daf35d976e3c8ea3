package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"salom/internal/models"
)

// Tagger is the delegated entity-tagging capability. It is injected, never
// instantiated by this package, so tests can substitute a deterministic stub.
type Tagger interface {
	Tag(ctx context.Context, tokens []string, language string) ([]models.Entity, error)
}

// DefaultTaggerTimeout bounds the only network call in the request path.
const DefaultTaggerTimeout = 2 * time.Second

// Delegated wraps a Tagger with a bounded timeout and result sanitation.
type Delegated struct {
	tagger  Tagger
	timeout time.Duration
}

// NewDelegated wraps tagger. A non-positive timeout falls back to
// DefaultTaggerTimeout.
func NewDelegated(tagger Tagger, timeout time.Duration) *Delegated {
	if timeout <= 0 {
		timeout = DefaultTaggerTimeout
	}
	return &Delegated{tagger: tagger, timeout: timeout}
}

// Extract calls the external tagger with a deadline. Entities with unknown
// types or out-of-range spans are dropped rather than propagated.
func (d *Delegated) Extract(ctx context.Context, tokens []string, language string) ([]models.Entity, error) {
	tagCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	entities, err := d.tagger.Tag(tagCtx, tokens, language)
	if err != nil {
		return nil, fmt.Errorf("delegated tagger failed: %w", err)
	}

	var out []models.Entity
	for _, e := range entities {
		if !models.KnownEntityType(e.Type) {
			slog.Debug("Delegated.Extract: dropping entity with unknown type", "type", e.Type, "value", e.Value)
			continue
		}
		if e.Start < 0 || e.End <= e.Start || e.End > len(tokens) {
			slog.Debug("Delegated.Extract: dropping entity with invalid span", "start", e.Start, "end", e.End, "tokens", len(tokens))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
