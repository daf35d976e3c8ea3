// Package engine orchestrates the request pipeline: language resolution,
// normalization, entity extraction, intent matching, dialogue state
// transition, and response rendering.
//
// Requests from distinct users run fully in parallel; requests for the same
// user are serialized by a keyed mutex, with the store's compare-and-set as
// the cross-instance safety net.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"salom/internal/dialogue"
	"salom/internal/extract"
	"salom/internal/langdetect"
	"salom/internal/match"
	"salom/internal/models"
	"salom/internal/normalize"
	"salom/internal/registry"
	"salom/internal/respond"
	"salom/internal/settings"
	"salom/internal/store"
)

// ErrUnknownLanguage is returned when neither the requested language nor the
// configured default language is loaded.
var ErrUnknownLanguage = errors.New("unknown language")

// conflictRetryResponse is the generic reply after the read-modify-write
// conflicted twice in a row.
const conflictRetryResponse = "Sorry, something went wrong. Please try again."

// Engine is the conversational core. Safe for concurrent use.
type Engine struct {
	registry   *registry.Registry
	extractors map[string]extract.Extractor
	matcher    *match.Matcher
	scorer     *match.Scorer
	manager    *dialogue.Manager
	renderer   *respond.Generator
	sessions   store.SessionStore
	locks      *dialogue.KeyedMutex
	settings   *settings.Settings
}

// New assembles an engine over the loaded registry. tagger may be nil, in
// which case entity extraction always degrades to gazetteer-only results.
func New(reg *registry.Registry, sessions store.SessionStore, tagger extract.Tagger, cfg *settings.Settings) *Engine {
	extractors := make(map[string]extract.Extractor)
	for _, lang := range reg.Languages() {
		langCfg, _ := reg.Language(lang)
		var delegated extract.Extractor
		if tagger != nil {
			delegated = extract.NewDelegated(tagger, cfg.TaggerTimeout)
		}
		extractors[lang] = extract.NewComposite(extract.NewGazetteer(langCfg), delegated)
	}

	return &Engine{
		registry:   reg,
		extractors: extractors,
		matcher:    match.NewMatcher(cfg.ContiguityBonus),
		scorer:     match.NewScorer(cfg.Threshold),
		manager:    dialogue.NewManager(cfg.MaxTurns, cfg.OverrideConfidence, cfg.FallbackIntent),
		renderer:   respond.NewGenerator(),
		sessions:   sessions,
		locks:      dialogue.NewKeyedMutex(),
		settings:   cfg,
	}
}

// HandleMessage processes one inbound message end to end and returns the
// reply. Conversational irregularities (no match, missing slot, ambiguous
// followup) degrade to polite responses; only store and configuration faults
// surface as errors.
func (e *Engine) HandleMessage(ctx context.Context, req models.Request) (models.Result, error) {
	if req.UserID == "" {
		return models.Result{}, fmt.Errorf("request without user id")
	}

	lang, cfg, err := e.resolveLanguage(req)
	if err != nil {
		return models.Result{}, err
	}

	tokens := normalize.Tokens(req.Text, lang)

	entities, degraded, err := e.extract(ctx, tokens, lang)
	if err != nil {
		return models.Result{}, err
	}

	ranked := e.matcher.Match(tokens, entities, cfg.Intents)
	top, matched := e.scorer.Pick(ranked)
	input := dialogue.Input{
		Tokens:        tokens,
		Entities:      entities,
		TopConfidence: top.Confidence,
		Config:        cfg,
	}
	if matched {
		input.Match = &top
	}

	e.locks.Lock(req.UserID)
	defer e.locks.Unlock(req.UserID)

	// One conflict retry covers the multi-instance race; a second conflict in
	// a row means the user is hammering the session from elsewhere.
	for attempt := 0; attempt < 2; attempt++ {
		result, err := e.advanceSession(ctx, req, lang, cfg, input, degraded)
		if errors.Is(err, store.ErrSessionConflict) {
			slog.Warn("Engine.HandleMessage: session write conflicted, retrying", "userID", req.UserID, "attempt", attempt)
			continue
		}
		return result, err
	}

	slog.Error("Engine.HandleMessage: session write conflicted twice", "userID", req.UserID)
	return models.Result{
		Response:   conflictRetryResponse,
		Language:   lang,
		Degraded:   degraded,
		Confidence: 0,
	}, nil
}

// resolveLanguage picks the language for this request: the explicit request
// language, then script detection over the text, then the configured default.
func (e *Engine) resolveLanguage(req models.Request) (string, *registry.LanguageConfig, error) {
	lang := registry.NormalizeLanguage(req.Language)
	if lang == "" {
		lang = langdetect.Detect(req.Text, e.settings.DefaultLanguage)
	}

	if cfg, ok := e.registry.Language(lang); ok {
		return lang, cfg, nil
	}

	slog.Warn("Engine.resolveLanguage: language not loaded, using default", "requested", lang, "default", e.settings.DefaultLanguage)
	fallback := registry.NormalizeLanguage(e.settings.DefaultLanguage)
	if cfg, ok := e.registry.Language(fallback); ok {
		return fallback, cfg, nil
	}
	return "", nil, fmt.Errorf("%w: %q (default %q not loaded)", ErrUnknownLanguage, lang, fallback)
}

// extract runs entity extraction, translating the degraded condition into a
// flag instead of an error.
func (e *Engine) extract(ctx context.Context, tokens []string, lang string) ([]models.Entity, bool, error) {
	extractor, ok := e.extractors[lang]
	if !ok {
		return nil, true, nil
	}
	entities, err := extractor.Extract(ctx, tokens, lang)
	if err != nil {
		if errors.Is(err, extract.ErrExtractionDegraded) {
			return entities, true, nil
		}
		return nil, false, fmt.Errorf("entity extraction failed: %w", err)
	}
	return entities, false, nil
}

// advanceSession performs one read-modify-write cycle over the session.
func (e *Engine) advanceSession(ctx context.Context, req models.Request, lang string, cfg *registry.LanguageConfig, input dialogue.Input, degraded bool) (models.Result, error) {
	session, version, err := e.sessions.Get(ctx, req.UserID)
	if errors.Is(err, store.ErrSessionNotFound) {
		session = models.NewSession(req.UserID)
		version = 0
	} else if err != nil {
		return models.Result{}, fmt.Errorf("failed to load session: %w", err)
	}
	session.Language = lang

	outcome, err := e.manager.Advance(&session, input)
	if err != nil {
		return models.Result{}, err
	}

	response, err := e.render(&session, cfg, req, outcome)
	if err != nil {
		return models.Result{}, err
	}

	if _, err := e.sessions.CompareAndSet(ctx, session, version); err != nil {
		return models.Result{}, err
	}

	return models.Result{
		Intent:     outcome.Intent,
		Response:   response,
		Confidence: outcome.Confidence,
		Language:   lang,
		Degraded:   degraded,
	}, nil
}

// render produces the reply text for an outcome. An unbound slot drives the
// AwaitingSlot transition and answers with the clarifying question instead;
// anything still unrenderable degrades to the fallback template.
func (e *Engine) render(session *models.Session, cfg *registry.LanguageConfig, req models.Request, outcome dialogue.Outcome) (string, error) {
	text, err := e.renderer.Render(outcome.Templates, e.bindRequestSlots(outcome.Slots, req), outcome.Sequence)
	if err == nil {
		return text, nil
	}

	var missing *respond.MissingSlotError
	if !errors.As(err, &missing) {
		return "", fmt.Errorf("failed to render response for intent %q: %w", outcome.Intent, err)
	}

	if ask, ok := e.manager.RequireSlot(session, cfg, outcome.Intent, missing.Slot, outcome.Confidence); ok {
		text, err := e.renderer.Render(ask.Templates, e.bindRequestSlots(ask.Slots, req), ask.Sequence)
		if err == nil {
			return text, nil
		}
		slog.Error("Engine.render: clarifying question failed to render", "intent", outcome.Intent, "slot", missing.Slot, "error", err)
	}

	// No way to ask for the value; answer with the fallback template.
	slog.Warn("Engine.render: unbound slot without a dialogue recovery", "intent", outcome.Intent, "slot", missing.Slot)
	session.ResetDialogue()
	return e.fallbackText(cfg, req)
}

// bindRequestSlots layers request metadata under the outcome's bindings. The
// display name falls back to the user id so name greetings always render.
func (e *Engine) bindRequestSlots(slots map[string]string, req models.Request) map[string]string {
	bound := make(map[string]string, len(slots)+1)
	name := req.UserName
	if name == "" {
		name = req.UserID
	}
	bound["name"] = name
	for k, v := range slots {
		bound[k] = v
	}
	return bound
}

func (e *Engine) fallbackText(cfg *registry.LanguageConfig, req models.Request) (string, error) {
	def, ok := cfg.Intent(e.settings.FallbackIntent)
	if !ok {
		return "", fmt.Errorf("fallback intent %q not in configuration for %q", e.settings.FallbackIntent, cfg.Language)
	}
	templates := def.Responses
	if def.Fallback != "" {
		templates = []string{def.Fallback}
	}
	return e.renderer.Render(templates, e.bindRequestSlots(nil, req), 0)
}
