package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salom/internal/models"
	"salom/internal/registry"
	"salom/internal/settings"
	"salom/internal/store"
)

func testSettings() *settings.Settings {
	return &settings.Settings{
		DefaultLanguage:    "en",
		FallbackIntent:     "unknown",
		Threshold:          0.4,
		ContiguityBonus:    0.15,
		OverrideConfidence: 0.9,
		MaxTurns:           3,
		TaggerTimeout:      time.Second,
		SessionTTL:         time.Minute,
	}
}

func newTestEngine(t *testing.T, sessions store.SessionStore, langs ...string) *Engine {
	t.Helper()
	reg := registry.NewRegistry()
	for _, lang := range langs {
		if err := reg.Load("", lang); err != nil {
			t.Fatalf("failed to load %s config: %v", lang, err)
		}
	}
	if sessions == nil {
		sessions = store.NewInMemoryStore()
	}
	return New(reg, sessions, nil, testSettings())
}

func handle(t *testing.T, e *Engine, req models.Request) models.Result {
	t.Helper()
	res, err := e.HandleMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", req.Text, err)
	}
	return res
}

func TestHandleMessage_Greeting(t *testing.T) {
	e := newTestEngine(t, nil, "ru")
	res := handle(t, e, models.Request{Text: "привет", UserID: "u1", Language: "ru", UserName: "Алишер"})

	if res.Intent != "greeting" {
		t.Errorf("expected greeting, got %q", res.Intent)
	}
	if res.Confidence < 0.4 {
		t.Errorf("expected confidence above threshold, got %v", res.Confidence)
	}
	if res.Language != "ru" {
		t.Errorf("expected ru, got %q", res.Language)
	}
	if strings.Contains(res.Response, "{") {
		t.Errorf("response contains an unsubstituted placeholder: %q", res.Response)
	}
}

func TestHandleMessage_WeatherSlotFlow(t *testing.T) {
	e := newTestEngine(t, nil, "ru")

	// Asking about weather without a city yields the clarifying question.
	res := handle(t, e, models.Request{Text: "погода", UserID: "u1", Language: "ru"})
	if res.Intent != "weather" {
		t.Fatalf("expected weather, got %q", res.Intent)
	}
	if !strings.Contains(res.Response, "город") {
		t.Errorf("expected a clarifying question about the city, got %q", res.Response)
	}

	// The bare city answer resolves the pending slot.
	res = handle(t, e, models.Request{Text: "душанбе", UserID: "u1", Language: "ru"})
	if res.Intent != "weather" {
		t.Errorf("expected the pending weather intent to resolve, got %q", res.Intent)
	}
	if !strings.Contains(res.Response, "Dushanbe") {
		t.Errorf("expected the canonical city in the response, got %q", res.Response)
	}
	if strings.Contains(res.Response, "{") {
		t.Errorf("response contains an unsubstituted placeholder: %q", res.Response)
	}
}

func TestHandleMessage_WeatherWithCityInline(t *testing.T) {
	e := newTestEngine(t, nil, "ru")
	res := handle(t, e, models.Request{Text: "погода в душанбе", UserID: "u1", Language: "ru"})

	if res.Intent != "weather" {
		t.Errorf("expected weather, got %q", res.Intent)
	}
	if !strings.Contains(res.Response, "Dushanbe") {
		t.Errorf("expected an immediate answer with the city, got %q", res.Response)
	}
}

func TestHandleMessage_SupportFollowupFlow(t *testing.T) {
	e := newTestEngine(t, nil, "en")

	res := handle(t, e, models.Request{Text: "login issue", UserID: "u1", Language: "en"})
	if res.Intent != "support" {
		t.Fatalf("expected support, got %q", res.Intent)
	}
	if !strings.Contains(res.Response, "describe your issue") {
		t.Errorf("expected the generic support response, got %q", res.Response)
	}

	res = handle(t, e, models.Request{Text: "my password is wrong", UserID: "u1", Language: "en"})
	if res.Response != "Are you unable to sign in to your account?" {
		t.Errorf("expected the login followup question, got %q", res.Response)
	}

	res = handle(t, e, models.Request{Text: "yes exactly", UserID: "u1", Language: "en"})
	if !strings.Contains(res.Response, "resetting your password") {
		t.Errorf("expected the login resolution, got %q", res.Response)
	}
}

func TestHandleMessage_Fallback(t *testing.T) {
	e := newTestEngine(t, nil, "ru")
	res := handle(t, e, models.Request{Text: "абракадабра", UserID: "u1", Language: "ru"})

	if res.Intent != "unknown" {
		t.Errorf("expected the fallback intent, got %q", res.Intent)
	}
	if res.Confidence >= 0.4 {
		t.Errorf("expected confidence below threshold, got %v", res.Confidence)
	}
	if res.Response != "Извините, я вас не понял." {
		t.Errorf("expected the fallback template, got %q", res.Response)
	}
}

func TestHandleMessage_LanguageDetection(t *testing.T) {
	e := newTestEngine(t, nil, "en", "ru")

	res := handle(t, e, models.Request{Text: "привет", UserID: "u1"})
	if res.Language != "ru" {
		t.Errorf("expected detected ru, got %q", res.Language)
	}
	if res.Intent != "greeting" {
		t.Errorf("expected greeting, got %q", res.Intent)
	}

	res = handle(t, e, models.Request{Text: "hello", UserID: "u2"})
	if res.Language != "en" {
		t.Errorf("expected detected en, got %q", res.Language)
	}
}

func TestHandleMessage_UnsupportedLanguageFallsBack(t *testing.T) {
	e := newTestEngine(t, nil, "en")
	res := handle(t, e, models.Request{Text: "hello", UserID: "u1", Language: "fr"})
	if res.Language != "en" {
		t.Errorf("expected the default language, got %q", res.Language)
	}
}

func TestHandleMessage_NoLanguageAvailable(t *testing.T) {
	e := newTestEngine(t, nil, "ru")
	// Default language is en, which is not loaded.
	_, err := e.HandleMessage(context.Background(), models.Request{Text: "hello", UserID: "u1", Language: "fr"})
	if !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("expected ErrUnknownLanguage, got %v", err)
	}
}

func TestHandleMessage_DegradedWithoutTagger(t *testing.T) {
	e := newTestEngine(t, nil, "en")
	res := handle(t, e, models.Request{Text: "hello", UserID: "u1", Language: "en"})
	if !res.Degraded {
		t.Error("expected degraded extraction without a tagger")
	}
}

func TestHandleMessage_SessionsAreIndependent(t *testing.T) {
	e := newTestEngine(t, nil, "ru")

	handle(t, e, models.Request{Text: "погода", UserID: "u1", Language: "ru"})

	// A different user's city message is not a slot answer.
	res := handle(t, e, models.Request{Text: "душанбе", UserID: "u2", Language: "ru"})
	if res.Intent == "weather" {
		t.Errorf("another user's session must not share pending state, got %q", res.Intent)
	}
}

// conflictingStore forces CompareAndSet conflicts before delegating.
type conflictingStore struct {
	store.SessionStore
	conflicts int
}

func (c *conflictingStore) CompareAndSet(ctx context.Context, session models.Session, expectedVersion int64) (int64, error) {
	if c.conflicts > 0 {
		c.conflicts--
		return 0, store.ErrSessionConflict
	}
	return c.SessionStore.CompareAndSet(ctx, session, expectedVersion)
}

func TestHandleMessage_RetriesConflictOnce(t *testing.T) {
	s := &conflictingStore{SessionStore: store.NewInMemoryStore(), conflicts: 1}
	e := newTestEngine(t, s, "en")

	res := handle(t, e, models.Request{Text: "hello", UserID: "u1", Language: "en"})
	if res.Intent != "greeting" {
		t.Errorf("expected the retry to succeed, got %q", res.Intent)
	}
}

func TestHandleMessage_RepeatedConflictDegrades(t *testing.T) {
	s := &conflictingStore{SessionStore: store.NewInMemoryStore(), conflicts: 2}
	e := newTestEngine(t, s, "en")

	res := handle(t, e, models.Request{Text: "hello", UserID: "u1", Language: "en"})
	if res.Intent != "" {
		t.Errorf("expected no intent after repeated conflicts, got %q", res.Intent)
	}
	if res.Response != conflictRetryResponse {
		t.Errorf("expected the generic retry response, got %q", res.Response)
	}
}

func TestHandleMessage_CompanyFacts(t *testing.T) {
	e := newTestEngine(t, nil, "en")
	res := handle(t, e, models.Request{Text: "who are you", UserID: "u1", Language: "en"})

	if res.Intent != "company" {
		t.Fatalf("expected company, got %q", res.Intent)
	}
	if !strings.Contains(res.Response, "Dushanbe") || !strings.Contains(res.Response, "mission") {
		t.Errorf("expected configured facts in the response, got %q", res.Response)
	}
}

func TestHandleMessage_RequiresUserID(t *testing.T) {
	e := newTestEngine(t, nil, "en")
	if _, err := e.HandleMessage(context.Background(), models.Request{Text: "hello"}); err == nil {
		t.Error("expected error for a request without user id")
	}
}
