package dialogue

import (
	"sync"
	"testing"

	"salom/internal/models"
	"salom/internal/registry"
)

func loadConfig(t *testing.T, lang string) *registry.LanguageConfig {
	t.Helper()
	r := registry.NewRegistry()
	if err := r.Load("", lang); err != nil {
		t.Fatalf("failed to load %s config: %v", lang, err)
	}
	cfg, ok := r.Language(lang)
	if !ok {
		t.Fatalf("language %s not loaded", lang)
	}
	return cfg
}

func newManager() *Manager {
	return NewManager(3, 0.9, "unknown")
}

func match(intent string, confidence float64) *models.MatchResult {
	return &models.MatchResult{Intent: intent, Confidence: confidence}
}

func TestAdvance_IdleMatch(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")

	out, err := m.Advance(&session, Input{
		Tokens: []string{"hello"}, Match: match("greeting", 1.0), TopConfidence: 1.0, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "greeting" || out.Confidence != 1.0 {
		t.Errorf("expected greeting at 1.0, got %+v", out)
	}
	if session.State != models.StateIdle {
		t.Errorf("plain intents must leave the session idle, got %q", session.State)
	}
	if session.TotalTurns != 1 {
		t.Errorf("expected 1 total turn, got %d", session.TotalTurns)
	}
}

func TestAdvance_IdleFallback(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")

	out, err := m.Advance(&session, Input{
		Tokens: []string{"asdf"}, Match: nil, TopConfidence: 0.2, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "unknown" {
		t.Errorf("expected fallback intent, got %q", out.Intent)
	}
	if out.Confidence != 0.2 {
		t.Errorf("raw confidence must pass through, got %v", out.Confidence)
	}
	if len(out.Templates) != 1 || out.Templates[0] != "Sorry, I didn't understand you." {
		t.Errorf("expected the fallback template, got %v", out.Templates)
	}
}

func TestAdvance_SlotIntentUsesCompanionTemplates(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")

	out, err := m.Advance(&session, Input{
		Tokens: []string{"weather"}, Match: match("weather", 1.0), TopConfidence: 1.0, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "weather" {
		t.Errorf("expected weather intent, got %q", out.Intent)
	}
	companion, _ := cfg.Intent("provide_city")
	if len(out.Templates) != len(companion.Responses) || out.Templates[0] != companion.Responses[0] {
		t.Errorf("slot intents must answer with the companion templates, got %v", out.Templates)
	}
	// Companion facts are bound, the slot itself is not.
	if out.Slots["description"] != "sunny" {
		t.Errorf("expected companion facts bound, got %v", out.Slots)
	}
	if _, ok := out.Slots["city"]; ok {
		t.Errorf("city must stay unbound without an entity, got %v", out.Slots)
	}
}

func TestRequireSlot(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.TotalTurns = 1

	out, ok := m.RequireSlot(&session, cfg, "weather", "city", 1.0)
	if !ok {
		t.Fatal("expected RequireSlot to accept the declared slot")
	}
	if session.State != models.StateAwaitingSlot {
		t.Errorf("expected AwaitingSlot, got %q", session.State)
	}
	if session.PendingIntent != "weather" || session.PendingSlot != "city" {
		t.Errorf("pending markers wrong: %+v", session)
	}
	weather, _ := cfg.Intent("weather")
	if out.Templates[0] != weather.Responses[0] {
		t.Errorf("clarifying question must come from the intent's own responses, got %v", out.Templates)
	}

	if _, ok := m.RequireSlot(&session, cfg, "weather", "color", 1.0); ok {
		t.Error("undeclared slots must be rejected")
	}
	if _, ok := m.RequireSlot(&session, cfg, "greeting", "city", 1.0); ok {
		t.Error("intents without a slot spec must be rejected")
	}
}

func TestAdvance_SlotSatisfied(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingSlot)
	session.PendingIntent = "weather"
	session.PendingSlot = "city"

	out, err := m.Advance(&session, Input{
		Tokens:   []string{"dushanbe"},
		Entities: []models.Entity{{Type: models.EntityCity, Value: "Dushanbe", Start: 0, End: 1, Confidence: 1.0}},
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "weather" {
		t.Errorf("expected the pending intent to resolve, got %q", out.Intent)
	}
	if out.Slots["city"] != "Dushanbe" {
		t.Errorf("expected city bound to Dushanbe, got %v", out.Slots)
	}
	if out.Slots["description"] != "sunny" || out.Slots["temp"] != "22" {
		t.Errorf("expected companion facts bound, got %v", out.Slots)
	}
	if session.State != models.StateIdle {
		t.Errorf("resolved slot must return the session to idle, got %q", session.State)
	}
}

func TestAdvance_SlotMissingReissuesQuestion(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingSlot)
	session.PendingIntent = "weather"
	session.PendingSlot = "city"

	out, err := m.Advance(&session, Input{Tokens: []string{"hmm"}, Config: cfg})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	weather, _ := cfg.Intent("weather")
	if out.Templates[0] != weather.Responses[0] {
		t.Errorf("expected the clarifying question re-issued, got %v", out.Templates)
	}
	if session.State != models.StateAwaitingSlot {
		t.Errorf("state must be unchanged, got %q", session.State)
	}
	if session.StateTurns != 1 {
		t.Errorf("turn counter must increment, got %d", session.StateTurns)
	}
}

func TestAdvance_SlotOverride(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingSlot)
	session.PendingIntent = "weather"
	session.PendingSlot = "city"

	out, err := m.Advance(&session, Input{
		Tokens: []string{"bye"}, Match: match("goodbye", 1.0), TopConfidence: 1.0, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "goodbye" {
		t.Errorf("high-confidence message must escape the pending state, got %q", out.Intent)
	}
	if session.State != models.StateIdle {
		t.Errorf("override must reset the session, got %q", session.State)
	}
}

func TestAdvance_SlotAnswerBeatsOverride(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingSlot)
	session.PendingIntent = "weather"
	session.PendingSlot = "city"

	// "dushanbe" both satisfies the pending slot and matches provide_city at
	// full confidence. The pending expectation wins.
	out, err := m.Advance(&session, Input{
		Tokens:        []string{"dushanbe"},
		Entities:      []models.Entity{{Type: models.EntityCity, Value: "Dushanbe", Start: 0, End: 1, Confidence: 1.0}},
		Match:         match("provide_city", 1.0),
		TopConfidence: 1.0,
		Config:        cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "weather" || out.Slots["city"] != "Dushanbe" {
		t.Errorf("slot answer must resolve the pending intent, got %+v", out)
	}
}

func TestAdvance_FollowupFlow(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")

	// Generic support response enters the followup state.
	out, err := m.Advance(&session, Input{
		Tokens: []string{"login", "issue"}, Match: match("support", 1.0), TopConfidence: 1.0, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "support" || session.State != models.StateAwaitingFollowup {
		t.Fatalf("expected AwaitingFollowup after generic support, got %+v / %q", out, session.State)
	}

	// Keyword selects the login branch and asks its question.
	out, err = m.Advance(&session, Input{
		Tokens: []string{"my", "password", "is", "wrong"}, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != models.StateAwaitingFollowupResolution || session.PendingFollowup != "login" {
		t.Fatalf("expected login branch pending, got state %q followup %q", session.State, session.PendingFollowup)
	}
	if len(out.Templates) != 1 || out.Templates[0] != "Are you unable to sign in to your account?" {
		t.Errorf("expected the login question, got %v", out.Templates)
	}

	// Any continuation resolves the branch.
	out, err = m.Advance(&session, Input{Tokens: []string{"yes"}, Config: cfg})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != models.StateIdle {
		t.Errorf("resolution must return to idle, got %q", session.State)
	}
	if len(out.Templates) != 1 || out.Templates[0] == "Are you unable to sign in to your account?" {
		t.Errorf("expected the login responses, got %v", out.Templates)
	}
}

func TestAdvance_FollowupCatchAll(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingFollowup)
	session.PendingIntent = "support"

	out, err := m.Advance(&session, Input{Tokens: []string{"it", "just", "crashed"}, Config: cfg})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.PendingFollowup != "other" {
		t.Errorf("expected the catch-all branch, got %q", session.PendingFollowup)
	}
	if out.Templates[0] != "Could you tell me a bit more about what happened?" {
		t.Errorf("expected the catch-all question, got %v", out.Templates)
	}
}

func TestAdvance_FollowupDeclarationOrder(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingFollowup)
	session.PendingIntent = "support"

	// Tokens hit both the login and payment keyword sets; the first-declared
	// branch wins.
	_, err := m.Advance(&session, Input{Tokens: []string{"payment", "password"}, Config: cfg})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.PendingFollowup != "login" {
		t.Errorf("expected first-declared branch, got %q", session.PendingFollowup)
	}
}

func TestAdvance_FollowupOverride(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingFollowup)
	session.PendingIntent = "support"

	out, err := m.Advance(&session, Input{
		Tokens: []string{"bye"}, Match: match("goodbye", 1.0), TopConfidence: 1.0, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "goodbye" || session.State != models.StateIdle {
		t.Errorf("override must win over the catch-all branch, got %+v / %q", out, session.State)
	}
}

func TestAdvance_Abandonment(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingSlot)
	session.PendingIntent = "weather"
	session.PendingSlot = "city"
	session.StateTurns = 3

	out, err := m.Advance(&session, Input{
		Tokens: []string{"hello"}, Match: match("greeting", 1.0), TopConfidence: 1.0, Config: cfg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Intent != "greeting" {
		t.Errorf("abandoned state must process the message fresh, got %q", out.Intent)
	}
	if session.State != models.StateIdle {
		t.Errorf("expected idle after abandonment, got %q", session.State)
	}
}

func TestAdvance_AbandonmentBelowLimit(t *testing.T) {
	cfg := loadConfig(t, "en")
	m := newManager()
	session := models.NewSession("u1")
	session.EnterState(models.StateAwaitingSlot)
	session.PendingIntent = "weather"
	session.PendingSlot = "city"
	session.StateTurns = 2

	_, err := m.Advance(&session, Input{Tokens: []string{"hmm"}, Config: cfg})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != models.StateAwaitingSlot {
		t.Errorf("below the limit the state must persist, got %q", session.State)
	}
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("u1")
			counter++
			km.Unlock("u1")
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Errorf("expected 100 serialized increments, got %d", counter)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("u1")
	done := make(chan struct{})
	go func() {
		km.Lock("u2")
		km.Unlock("u2")
		close(done)
	}()
	<-done
	km.Unlock("u1")
}
