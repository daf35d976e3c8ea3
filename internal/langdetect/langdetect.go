// Package langdetect guesses the language of a short message when the
// request does not name one.
//
// Detection is staged: Tajik-specific Cyrillic letters decide immediately,
// then the dominant script narrows the choice, then small vocabulary and
// word-ending heuristics separate Russian from Tajik. Latin text defaults to
// English. The result is a best effort, never an error.
package langdetect

import (
	"strings"
	"unicode"
)

const (
	// maxInput bounds how much text detection inspects.
	maxInput = 500
	// scriptThreshold is the share of letters one script needs to dominate.
	scriptThreshold = 0.8
)

// Letters that exist in the Tajik Cyrillic alphabet but not in Russian.
var tajikSpecific = map[rune]bool{
	'ғ': true, 'Ғ': true,
	'ӯ': true, 'Ӯ': true,
	'қ': true, 'Қ': true,
	'ҳ': true, 'Ҳ': true,
	'ҷ': true, 'Ҷ': true,
	'ӣ': true, 'Ӣ': true,
}

var russianStopwords = map[string]bool{
	"но": true, "или": true, "если": true, "чтобы": true, "когда": true,
}

var tajikStopwords = map[string]bool{
	"ва": true, "ё": true, "ҳангоми": true, "то": true, "ки": true,
}

var russianEndings = []string{"ый", "ая", "ое", "ить", "ать"}

var tajikEndings = []string{"ӣ", "ҳо"}

// Detect returns the language code for text: "en", "ru" or "tg".
// fallback is returned when no signal is strong enough.
func Detect(text, fallback string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fallback
	}
	lower := strings.ToLower(trimmed)
	if len(lower) > maxInput {
		lower = lower[:maxInput]
	}

	for _, r := range lower {
		if tajikSpecific[r] {
			return "tg"
		}
	}

	switch dominantScript(lower) {
	case "cyrillic":
		return cyrillicLanguage(lower)
	case "latin":
		return "en"
	}
	return fallback
}

// dominantScript classifies the text by letter distribution.
func dominantScript(text string) string {
	var cyrillic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case r >= 'a' && r <= 'z':
			latin++
		}
	}
	total := cyrillic + latin
	if total == 0 {
		return "unknown"
	}
	switch {
	case float64(cyrillic)/float64(total) > scriptThreshold:
		return "cyrillic"
	case float64(latin)/float64(total) > scriptThreshold:
		return "latin"
	}
	return "mixed"
}

// cyrillicLanguage separates Russian from Tajik by stopwords and endings.
func cyrillicLanguage(text string) string {
	var ruScore, tgScore int
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:()\"'«»")
		if russianStopwords[word] {
			ruScore++
		}
		if tajikStopwords[word] {
			tgScore++
		}
		for _, ending := range russianEndings {
			if strings.HasSuffix(word, ending) {
				ruScore++
				break
			}
		}
		for _, ending := range tajikEndings {
			if strings.HasSuffix(word, ending) {
				tgScore++
				break
			}
		}
	}
	if tgScore > ruScore {
		return "tg"
	}
	return "ru"
}
