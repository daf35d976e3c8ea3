// Package models defines core data structures for the Salom intent engine.
package models

// EntityType identifies the kind of value an extracted entity carries.
type EntityType string

// Entity types known to the extractor. Pattern placeholders may only
// reference these.
const (
	EntityCity    EntityType = "city"
	EntityDate    EntityType = "date"
	EntityKeyword EntityType = "keyword"
)

// KnownEntityType reports whether t is one of the supported entity types.
func KnownEntityType(t EntityType) bool {
	switch t {
	case EntityCity, EntityDate, EntityKeyword:
		return true
	}
	return false
}

// Entity is a typed span extracted from a token sequence. Start and End are
// token indices, End exclusive.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`
}

// Overlaps reports whether two entities cover at least one common token.
func (e Entity) Overlaps(o Entity) bool {
	return e.Start < o.End && o.Start < e.End
}

// Covers reports whether the entity span includes the token position pos.
func (e Entity) Covers(pos int) bool {
	return pos >= e.Start && pos < e.End
}

// Len returns the span length in tokens.
func (e Entity) Len() int {
	return e.End - e.Start
}

// PatternToken is one element of a pattern: either a literal word or an
// entity placeholder. Exactly one of Literal and Entity is set.
type PatternToken struct {
	Literal string     `json:"literal,omitempty"`
	Entity  EntityType `json:"entity,omitempty"`
}

// IsPlaceholder reports whether the token is an entity placeholder.
func (t PatternToken) IsPlaceholder() bool {
	return t.Entity != ""
}

// Pattern is an ordered token template used to recognize an intent.
type Pattern struct {
	Tokens []PatternToken `json:"tokens"`
}

// Followup is a keyword-triggered clarification branch within an intent.
type Followup struct {
	ID        string   `json:"id"`
	Keywords  []string `json:"keywords"`
	Question  string   `json:"question"`
	Responses []string `json:"responses"`
	Default   bool     `json:"default,omitempty"` // catch-all branch, matches when nothing else does
}

// SlotSpec declares that an intent needs a value before its final response
// can be produced. Intent names the companion intent that carries the final
// phrasing once the slot is bound.
type SlotSpec struct {
	Name   string     `json:"name"`
	Type   EntityType `json:"type"`
	Intent string     `json:"intent"`
}

// Fact is one opaque key-value pair attached to an intent definition.
// Facts are exposed verbatim to response rendering and never interpreted
// by the engine.
type Fact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Facts is an ordered fact list preserving configuration order.
type Facts []Fact

// Get returns the value for key, or "" when absent.
func (f Facts) Get(key string) (string, bool) {
	for _, fact := range f {
		if fact.Key == key {
			return fact.Value, true
		}
	}
	return "", false
}

// IntentDefinition is one named category of user request. Immutable after
// load; shared read-only across requests.
type IntentDefinition struct {
	ID        string     `json:"id"`
	Patterns  []Pattern  `json:"patterns"`
	Responses []string   `json:"responses"`
	Fallback  string     `json:"fallback,omitempty"`
	Followups []Followup `json:"followups,omitempty"`
	Slot      *SlotSpec  `json:"slot,omitempty"`
	Facts     Facts      `json:"facts,omitempty"`
}

// MatchResult is the outcome of scoring one intent against an input.
type MatchResult struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Pattern    *Pattern `json:"pattern,omitempty"`
	Entities   []Entity `json:"entities,omitempty"`
}

// Request is an inbound message handed to the engine by the API layer.
type Request struct {
	Text     string `json:"text"`
	UserID   string `json:"user_id"`
	Language string `json:"language,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// Result is the engine's reply for one request.
type Result struct {
	Intent     string  `json:"intent"`
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Degraded   bool    `json:"degraded,omitempty"` // entity extraction ran without the delegated tagger
}
