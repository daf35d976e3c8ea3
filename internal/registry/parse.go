package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"salom/internal/models"
	"salom/internal/normalize"
)

// Intent configurations are JSON objects whose key order is significant:
// ranking ties break on declaration order and followup selection scans
// branches in declaration order. encoding/json maps discard order, so intents
// and followups are decoded token by token.

// parseIntents decodes an ordered intent-id → definition mapping, rejecting
// duplicate ids.
func parseIntents(language string, data []byte) ([]*models.IntentDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, configErr(language, "", "intent config must be a JSON object: %v", err)
	}

	var intents []*models.IntentDefinition
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, configErr(language, "", "malformed intent config: %v", err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, configErr(language, "", "malformed intent key %v", tok)
		}
		if seen[id] {
			return nil, configErr(language, id, "duplicate intent id")
		}
		seen[id] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, configErr(language, id, "malformed intent body: %v", err)
		}
		def, err := parseIntent(language, id, raw)
		if err != nil {
			return nil, err
		}
		intents = append(intents, def)
	}
	return intents, nil
}

// parseIntent decodes one intent definition. Keys the engine does not consume
// are kept verbatim as opaque facts for response rendering.
func parseIntent(language, id string, raw json.RawMessage) (*models.IntentDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return nil, configErr(language, id, "intent body must be a JSON object: %v", err)
	}

	def := &models.IntentDefinition{ID: id}
	hasPatterns, hasResponses := false, false

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, configErr(language, id, "malformed intent body: %v", err)
		}
		key := tok.(string)
		var body json.RawMessage
		if err := dec.Decode(&body); err != nil {
			return nil, configErr(language, id, "malformed value for key %q: %v", key, err)
		}

		switch key {
		case "patterns":
			hasPatterns = true
			var lists [][]string
			if err := json.Unmarshal(body, &lists); err != nil {
				return nil, configErr(language, id, "patterns must be a list of token lists: %v", err)
			}
			for _, list := range lists {
				p, err := parsePattern(language, id, list)
				if err != nil {
					return nil, err
				}
				def.Patterns = append(def.Patterns, p)
			}
		case "responses":
			hasResponses = true
			if err := json.Unmarshal(body, &def.Responses); err != nil {
				return nil, configErr(language, id, "responses must be a list of strings: %v", err)
			}
		case "fallback":
			if err := json.Unmarshal(body, &def.Fallback); err != nil {
				return nil, configErr(language, id, "fallback must be a string: %v", err)
			}
		case "slot":
			var slot models.SlotSpec
			if err := json.Unmarshal(body, &slot); err != nil {
				return nil, configErr(language, id, "malformed slot spec: %v", err)
			}
			def.Slot = &slot
		case "followups":
			followups, err := parseFollowups(language, id, body)
			if err != nil {
				return nil, err
			}
			def.Followups = followups
		default:
			vdec := json.NewDecoder(bytes.NewReader(body))
			vdec.UseNumber()
			var v interface{}
			if err := vdec.Decode(&v); err != nil {
				return nil, configErr(language, id, "malformed value for key %q: %v", key, err)
			}
			flattenFact(key, v, &def.Facts)
		}
	}

	if !hasPatterns {
		return nil, configErr(language, id, "required key %q is absent", "patterns")
	}
	if !hasResponses {
		return nil, configErr(language, id, "required key %q is absent", "responses")
	}
	return def, nil
}

// parsePattern converts a configured token list into a Pattern. Bracketed
// tokens like "[city]" become entity placeholders; everything else is a
// literal, canonicalized the same way incoming text is.
func parsePattern(language, id string, tokens []string) (models.Pattern, error) {
	if len(tokens) == 0 {
		return models.Pattern{}, configErr(language, id, "pattern with zero tokens")
	}
	var p models.Pattern
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			et := models.EntityType(tok[1 : len(tok)-1])
			if !models.KnownEntityType(et) {
				return models.Pattern{}, configErr(language, id, "pattern references undefined entity placeholder %q", tok)
			}
			p.Tokens = append(p.Tokens, models.PatternToken{Entity: et})
			continue
		}
		lit := normalize.Word(tok)
		if lit == "" {
			return models.Pattern{}, configErr(language, id, "pattern token %q normalizes to nothing", tok)
		}
		p.Tokens = append(p.Tokens, models.PatternToken{Literal: lit})
	}
	return p, nil
}

// parseFollowups decodes the ordered followup mapping of one intent.
func parseFollowups(language, id string, raw json.RawMessage) ([]models.Followup, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, configErr(language, id, "followups must be a JSON object: %v", err)
	}

	var followups []models.Followup
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, configErr(language, id, "malformed followups: %v", err)
		}
		fid := tok.(string)
		if seen[fid] {
			return nil, configErr(language, id, "duplicate followup id %q", fid)
		}
		seen[fid] = true

		var f models.Followup
		if err := dec.Decode(&f); err != nil {
			return nil, configErr(language, id, "malformed followup %q: %v", fid, err)
		}
		f.ID = fid
		for i, kw := range f.Keywords {
			f.Keywords[i] = normalize.Word(kw)
		}
		followups = append(followups, f)
	}
	return followups, nil
}

// flattenFact appends scalar fact values, flattening nested objects to their
// leaf keys so templates can reference {mission} regardless of nesting depth.
func flattenFact(key string, v interface{}, facts *models.Facts) {
	switch val := v.(type) {
	case string:
		*facts = append(*facts, models.Fact{Key: key, Value: val})
	case json.Number:
		*facts = append(*facts, models.Fact{Key: key, Value: val.String()})
	case bool:
		*facts = append(*facts, models.Fact{Key: key, Value: fmt.Sprintf("%t", val)})
	case map[string]interface{}:
		for childKey, child := range val {
			flattenFact(childKey, child, facts)
		}
	case []interface{}:
		var parts []string
		for _, item := range val {
			var leaf models.Facts
			flattenFact(key, item, &leaf)
			for _, f := range leaf {
				parts = append(parts, f.Value)
			}
		}
		*facts = append(*facts, models.Fact{Key: key, Value: strings.Join(parts, ", ")})
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
