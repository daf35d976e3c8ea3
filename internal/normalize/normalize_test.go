package normalize

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokens_LatinBasics(t *testing.T) {
	got := Tokens("  Hello,   World!! ", "en")
	want := []string{"hello", "world"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokens_Cyrillic(t *testing.T) {
	got := Tokens("Привет! Какая погода в Душанбе?", "ru")
	want := []string{"привет", "какая", "погода", "в", "душанбе"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokens_TajikSpecificLetters(t *testing.T) {
	// Tajik-specific Cyrillic letters must survive folding untransliterated.
	got := Tokens("Обу ҳаво дар Хӯҷанд", "tg")
	want := []string{"обу", "ҳаво", "дар", "хӯҷанд"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokens_Idempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"ПРИВЕТ!!!  как дела?",
		"обу ҳаво, имрӯз",
		"mixed Текст 123",
		"",
		"...!!!...",
	}
	for _, in := range inputs {
		once := Tokens(in, "")
		again := Tokens(strings.Join(once, " "), "")
		if !reflect.DeepEqual(once, again) {
			t.Errorf("normalize not idempotent for %q: first %v, second %v", in, once, again)
		}
	}
}

func TestTokens_DropsUnrecognized(t *testing.T) {
	got := Tokens("hi 👋 there ©", "en")
	want := []string{"hi", "there"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokens_Deterministic(t *testing.T) {
	a := Tokens("Погода завтра в Худжанде", "ru")
	b := Tokens("Погода завтра в Худжанде", "ru")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same input produced different tokens: %v vs %v", a, b)
	}
}

func TestWord(t *testing.T) {
	if got := Word("Душанбе"); got != "душанбе" {
		t.Errorf("expected 'душанбе', got %q", got)
	}
	if got := Word("!!"); got != "" {
		t.Errorf("expected empty token for punctuation, got %q", got)
	}
}
