// Package respond renders response templates with bound slot values.
//
// Selection over a template list is deterministic rotation keyed by a caller
// supplied sequence number, so repeated turns cycle through the configured
// phrasings without any randomness.
package respond

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {slot} markers inside a template. Slot names are
// word-like identifiers, matching the keys configs declare.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// MissingSlotError reports a placeholder with no bound value. Callers treat it
// as a dialogue signal, not a failure: it drives the clarifying-question flow.
type MissingSlotError struct {
	Slot string
}

func (e *MissingSlotError) Error() string {
	return fmt.Sprintf("no value bound for slot %q", e.Slot)
}

// Generator renders templates. Stateless and safe for concurrent use.
type Generator struct{}

// NewGenerator creates a response generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Render picks one template by rotating over the ordered list with seq and
// substitutes every {slot} placeholder from the bound values. It never returns
// text with an unsubstituted placeholder: the first unbound slot aborts the
// render with a MissingSlotError.
func (g *Generator) Render(templates []string, slots map[string]string, seq int) (string, error) {
	if len(templates) == 0 {
		return "", fmt.Errorf("no templates to render")
	}
	if seq < 0 {
		seq = -seq
	}
	template := templates[seq%len(templates)]
	return g.substitute(template, slots)
}

// Placeholders lists the slot names a template requires, in order of first
// appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func (g *Generator) substitute(template string, slots map[string]string) (string, error) {
	var missing *MissingSlotError
	out := placeholderPattern.ReplaceAllStringFunc(template, func(marker string) string {
		name := marker[1 : len(marker)-1]
		value, ok := slots[name]
		if !ok || strings.TrimSpace(value) == "" {
			if missing == nil {
				missing = &MissingSlotError{Slot: name}
			}
			return marker
		}
		return value
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}
