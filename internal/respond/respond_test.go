package respond

import (
	"errors"
	"strings"
	"testing"
)

func TestRender_Substitution(t *testing.T) {
	g := NewGenerator()
	got, err := g.Render(
		[]string{"Weather in {city} {date}: {description}, {temp}°C."},
		map[string]string{"city": "Dushanbe", "date": "today", "description": "sunny", "temp": "22"},
		0,
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "Weather in Dushanbe today: sunny, 22°C."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRender_MissingSlot(t *testing.T) {
	g := NewGenerator()
	_, err := g.Render([]string{"Weather in {city}."}, nil, 0)
	var missing *MissingSlotError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSlotError, got %v", err)
	}
	if missing.Slot != "city" {
		t.Errorf("expected missing slot %q, got %q", "city", missing.Slot)
	}
}

func TestRender_EmptyValueIsMissing(t *testing.T) {
	g := NewGenerator()
	_, err := g.Render([]string{"Hello, {name}!"}, map[string]string{"name": "  "}, 0)
	var missing *MissingSlotError
	if !errors.As(err, &missing) {
		t.Fatalf("blank slot values must not render, got %v", err)
	}
}

func TestRender_NeverEmitsPlaceholder(t *testing.T) {
	g := NewGenerator()
	templates := []string{"Hi {name}", "{greeting}, friend", "plain text"}
	slots := map[string]string{"name": "Ann"}
	for seq := 0; seq < len(templates)*2; seq++ {
		got, err := g.Render(templates, slots, seq)
		if err != nil {
			continue
		}
		if strings.Contains(got, "{") || strings.Contains(got, "}") {
			t.Errorf("seq %d: rendered text contains an unsubstituted placeholder: %q", seq, got)
		}
	}
}

func TestRender_DeterministicRotation(t *testing.T) {
	g := NewGenerator()
	templates := []string{"one", "two", "three"}
	for seq, want := range map[int]string{0: "one", 1: "two", 2: "three", 3: "one", 4: "two"} {
		got, err := g.Render(templates, nil, seq)
		if err != nil {
			t.Fatalf("seq %d: unexpected error %v", seq, err)
		}
		if got != want {
			t.Errorf("seq %d: expected %q, got %q", seq, want, got)
		}
	}
}

func TestRender_NoTemplates(t *testing.T) {
	g := NewGenerator()
	if _, err := g.Render(nil, nil, 0); err == nil {
		t.Error("expected error for empty template list, got nil")
	}
}

func TestRender_RepeatedSlot(t *testing.T) {
	g := NewGenerator()
	got, err := g.Render([]string{"{city}, yes, {city}"}, map[string]string{"city": "Khujand"}, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "Khujand, yes, Khujand" {
		t.Errorf("unexpected render %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders("Weather in {city} {date}: {city}")
	if len(names) != 2 || names[0] != "city" || names[1] != "date" {
		t.Errorf("expected [city date], got %v", names)
	}
	if got := Placeholders("no markers here"); len(got) != 0 {
		t.Errorf("expected no placeholders, got %v", got)
	}
}
