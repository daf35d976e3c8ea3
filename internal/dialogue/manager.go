// Package dialogue implements the per-session dialogue state machine.
//
// The manager resolves pending slots and branching follow-up flows over a
// Session read from the store. All mutation happens on the session value the
// caller holds; persistence and versioning stay with the caller.
package dialogue

import (
	"fmt"
	"log/slog"

	"salom/internal/extract"
	"salom/internal/models"
	"salom/internal/registry"
)

// Defaults for the dialogue policy constants. Both are tunable via settings.
const (
	DefaultMaxTurns           = 3
	DefaultOverrideConfidence = 0.9
)

// Input carries everything the manager needs to advance a session one turn.
type Input struct {
	Tokens   []string
	Entities []models.Entity
	// Match is the top-ranked intent that cleared the threshold, nil when
	// nothing did.
	Match *models.MatchResult
	// TopConfidence is the raw top confidence even when below threshold.
	TopConfidence float64
	Config        *registry.LanguageConfig
}

// Outcome is the manager's decision for one turn: which intent answers, which
// template list to render, and the slot values bound so far. Sequence keys the
// renderer's deterministic template rotation.
type Outcome struct {
	Intent     string
	Templates  []string
	Slots      map[string]string
	Confidence float64
	Sequence   int
}

// Manager drives session state transitions. Stateless apart from its policy
// constants; safe for concurrent use across sessions.
type Manager struct {
	maxTurns       int
	override       float64
	fallbackIntent string
}

// NewManager creates a dialogue manager. Non-positive maxTurns and override
// fall back to the defaults.
func NewManager(maxTurns int, override float64, fallbackIntent string) *Manager {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if override <= 0 {
		override = DefaultOverrideConfidence
	}
	return &Manager{maxTurns: maxTurns, override: override, fallbackIntent: fallbackIntent}
}

// Advance processes one message against the session's current state and
// mutates the session accordingly. Satisfying a pending expectation always
// wins over the high-confidence override; the override only fires when the
// expectation was not met by this message.
func (m *Manager) Advance(session *models.Session, in Input) (Outcome, error) {
	session.TotalTurns++

	if session.State != models.StateIdle && session.StateTurns >= m.maxTurns {
		slog.Info("Manager.Advance: abandoning stale dialogue state",
			"userID", session.UserID, "state", session.State, "stateTurns", session.StateTurns)
		session.ResetDialogue()
	}

	switch session.State {
	case models.StateIdle:
		return m.fresh(session, in)
	case models.StateAwaitingSlot:
		return m.continueSlot(session, in)
	case models.StateAwaitingFollowup:
		return m.continueFollowup(session, in)
	case models.StateAwaitingFollowupResolution:
		return m.resolveFollowup(session, in)
	default:
		return Outcome{}, fmt.Errorf("session %q in unknown state %q", session.UserID, session.State)
	}
}

// RequireSlot transitions the session into AwaitingSlot after the renderer
// reported an unbound slot for the matched intent. ok=false means the intent
// declares no such slot and the dialogue cannot recover the value by asking.
func (m *Manager) RequireSlot(session *models.Session, cfg *registry.LanguageConfig, intentID, slot string, confidence float64) (Outcome, bool) {
	def, found := cfg.Intent(intentID)
	if !found || def.Slot == nil || def.Slot.Name != slot {
		return Outcome{}, false
	}
	session.EnterState(models.StateAwaitingSlot)
	session.PendingIntent = intentID
	session.PendingSlot = slot
	slog.Debug("Manager.RequireSlot: awaiting slot value",
		"userID", session.UserID, "intent", intentID, "slot", slot)
	return Outcome{
		Intent:     intentID,
		Templates:  def.Responses,
		Slots:      map[string]string{},
		Confidence: confidence,
		Sequence:   session.TotalTurns,
	}, true
}

// fresh routes a message with no pending expectation entirely through the
// matcher's verdict.
func (m *Manager) fresh(session *models.Session, in Input) (Outcome, error) {
	if in.Match == nil {
		return m.fallback(session, in)
	}

	def, found := in.Config.Intent(in.Match.Intent)
	if !found {
		return Outcome{}, fmt.Errorf("matched intent %q not in configuration for %q", in.Match.Intent, in.Config.Language)
	}

	// A slot-bearing intent answers with its companion intent's phrasing.
	if def.Slot != nil {
		target, ok := in.Config.Intent(def.Slot.Intent)
		if !ok {
			return Outcome{}, fmt.Errorf("intent %q references unknown slot intent %q", def.ID, def.Slot.Intent)
		}
		slots := m.bindSlots(target, session, in.Entities)
		if e, ok := extract.FindType(in.Entities, def.Slot.Type); ok {
			slots[def.Slot.Name] = e.Value
		}
		return Outcome{
			Intent:     def.ID,
			Templates:  target.Responses,
			Slots:      slots,
			Confidence: in.Match.Confidence,
			Sequence:   session.TotalTurns,
		}, nil
	}

	if len(def.Followups) > 0 {
		session.EnterState(models.StateAwaitingFollowup)
		session.PendingIntent = def.ID
	}

	return Outcome{
		Intent:     def.ID,
		Templates:  def.Responses,
		Slots:      m.bindSlots(def, session, in.Entities),
		Confidence: in.Match.Confidence,
		Sequence:   session.TotalTurns,
	}, nil
}

// fallback answers with the globally configured default intent.
func (m *Manager) fallback(session *models.Session, in Input) (Outcome, error) {
	def, found := in.Config.Intent(m.fallbackIntent)
	if !found {
		return Outcome{}, fmt.Errorf("fallback intent %q not in configuration for %q", m.fallbackIntent, in.Config.Language)
	}
	templates := def.Responses
	if def.Fallback != "" {
		templates = []string{def.Fallback}
	}
	return Outcome{
		Intent:     def.ID,
		Templates:  templates,
		Slots:      m.bindSlots(def, session, in.Entities),
		Confidence: in.TopConfidence,
		Sequence:   session.TotalTurns,
	}, nil
}

// continueSlot handles a message while a slot value is awaited. An entity of
// the pending type resolves the intent; otherwise the clarifying question is
// re-issued, unless the message matches a new intent strongly enough to
// override.
func (m *Manager) continueSlot(session *models.Session, in Input) (Outcome, error) {
	def, found := in.Config.Intent(session.PendingIntent)
	if !found || def.Slot == nil {
		session.ResetDialogue()
		return m.fresh(session, in)
	}

	if e, ok := extract.FindType(in.Entities, def.Slot.Type); ok {
		target, tok := in.Config.Intent(def.Slot.Intent)
		if !tok {
			return Outcome{}, fmt.Errorf("intent %q references unknown slot intent %q", def.ID, def.Slot.Intent)
		}
		session.Slots[def.Slot.Name] = e.Value
		slots := m.bindSlots(target, session, in.Entities)
		slots[def.Slot.Name] = e.Value
		out := Outcome{
			Intent:     def.ID,
			Templates:  target.Responses,
			Slots:      slots,
			Confidence: e.Confidence,
			Sequence:   session.TotalTurns,
		}
		session.ResetDialogue()
		return out, nil
	}

	if in.Match != nil && in.Match.Confidence >= m.override {
		slog.Debug("Manager.continueSlot: high-confidence override",
			"userID", session.UserID, "pending", session.PendingIntent, "intent", in.Match.Intent)
		session.ResetDialogue()
		return m.fresh(session, in)
	}

	session.StateTurns++
	return Outcome{
		Intent:     def.ID,
		Templates:  def.Responses,
		Slots:      m.bindSlots(def, session, in.Entities),
		Confidence: in.TopConfidence,
		Sequence:   session.TotalTurns,
	}, nil
}

// continueFollowup scans the message for followup keywords in declaration
// order. The catch-all branch only applies when no keyword branch matched and
// the message does not override to a new topic.
func (m *Manager) continueFollowup(session *models.Session, in Input) (Outcome, error) {
	def, found := in.Config.Intent(session.PendingIntent)
	if !found || len(def.Followups) == 0 {
		session.ResetDialogue()
		return m.fresh(session, in)
	}

	if fu, ok := matchFollowup(def.Followups, in.Tokens); ok {
		return m.askFollowup(session, def, fu, 1.0), nil
	}

	if in.Match != nil && in.Match.Confidence >= m.override {
		slog.Debug("Manager.continueFollowup: high-confidence override",
			"userID", session.UserID, "pending", session.PendingIntent, "intent", in.Match.Intent)
		session.ResetDialogue()
		return m.fresh(session, in)
	}

	if fu, ok := defaultFollowup(def.Followups); ok {
		return m.askFollowup(session, def, fu, in.TopConfidence), nil
	}

	session.StateTurns++
	return Outcome{
		Intent:     def.ID,
		Templates:  def.Responses,
		Slots:      m.bindSlots(def, session, in.Entities),
		Confidence: in.TopConfidence,
		Sequence:   session.TotalTurns,
	}, nil
}

// resolveFollowup closes the branch: one free-form continuation is accepted
// regardless of content and the followup's responses are emitted.
func (m *Manager) resolveFollowup(session *models.Session, in Input) (Outcome, error) {
	def, found := in.Config.Intent(session.PendingIntent)
	if !found {
		session.ResetDialogue()
		return m.fresh(session, in)
	}
	var fu *models.Followup
	for i := range def.Followups {
		if def.Followups[i].ID == session.PendingFollowup {
			fu = &def.Followups[i]
			break
		}
	}
	if fu == nil {
		session.ResetDialogue()
		return m.fresh(session, in)
	}
	out := Outcome{
		Intent:     def.ID,
		Templates:  fu.Responses,
		Slots:      m.bindSlots(def, session, in.Entities),
		Confidence: 1.0,
		Sequence:   session.TotalTurns,
	}
	session.ResetDialogue()
	return out, nil
}

func (m *Manager) askFollowup(session *models.Session, def *models.IntentDefinition, fu models.Followup, confidence float64) Outcome {
	session.EnterState(models.StateAwaitingFollowupResolution)
	session.PendingFollowup = fu.ID
	slog.Debug("Manager.askFollowup: followup branch selected",
		"userID", session.UserID, "intent", def.ID, "followup", fu.ID)
	return Outcome{
		Intent:     def.ID,
		Templates:  []string{fu.Question},
		Slots:      m.bindSlots(def, session, nil),
		Confidence: confidence,
		Sequence:   session.TotalTurns,
	}
}

// bindSlots assembles the slot values available to the renderer, lowest
// precedence first: the answering intent's facts, the session's accumulated
// slots, then entities extracted from this message keyed by their type.
func (m *Manager) bindSlots(def *models.IntentDefinition, session *models.Session, entities []models.Entity) map[string]string {
	slots := make(map[string]string)
	for _, f := range def.Facts {
		slots[f.Key] = f.Value
	}
	for k, v := range session.Slots {
		slots[k] = v
	}
	for _, e := range entities {
		slots[string(e.Type)] = e.Value
	}
	return slots
}

// matchFollowup returns the first keyword branch, in declaration order, whose
// keyword set intersects the tokens. Catch-all branches never match here.
func matchFollowup(followups []models.Followup, tokens []string) (models.Followup, bool) {
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[t] = true
	}
	for _, fu := range followups {
		if fu.Default {
			continue
		}
		for _, kw := range fu.Keywords {
			if present[kw] {
				return fu, true
			}
		}
	}
	return models.Followup{}, false
}

func defaultFollowup(followups []models.Followup) (models.Followup, bool) {
	for _, fu := range followups {
		if fu.Default {
			return fu, true
		}
	}
	return models.Followup{}, false
}
