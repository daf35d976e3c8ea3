package registry

import (
	"log/slog"

	"salom/internal/models"
)

// validate enforces every load-time invariant on a parsed language config.
// No partial configs are accepted: the first violation fails the whole load.
func validate(cfg *LanguageConfig) error {
	slotTargets := make(map[string]bool)

	for _, def := range cfg.Intents {
		if len(def.Responses) == 0 && def.Fallback == "" {
			return configErr(cfg.Language, def.ID, "intent has no responses and no fallback")
		}

		if def.Slot != nil {
			if def.Slot.Name == "" {
				return configErr(cfg.Language, def.ID, "slot spec is missing a name")
			}
			if !models.KnownEntityType(def.Slot.Type) {
				return configErr(cfg.Language, def.ID, "slot references undefined entity type %q", def.Slot.Type)
			}
			target, ok := cfg.Intent(def.Slot.Intent)
			if !ok {
				return configErr(cfg.Language, def.ID, "slot references undefined intent %q", def.Slot.Intent)
			}
			if len(target.Responses) == 0 {
				return configErr(cfg.Language, def.ID, "slot target intent %q has no responses", def.Slot.Intent)
			}
			slotTargets[def.Slot.Intent] = true
		}

		defaults := 0
		for _, f := range def.Followups {
			if f.Question == "" {
				return configErr(cfg.Language, def.ID, "followup %q has no question", f.ID)
			}
			if len(f.Responses) == 0 {
				return configErr(cfg.Language, def.ID, "followup %q has no responses", f.ID)
			}
			if len(f.Keywords) == 0 && !f.Default {
				return configErr(cfg.Language, def.ID, "followup %q has an empty keyword set but is not marked default", f.ID)
			}
			if f.Default {
				defaults++
			}
		}
		if defaults > 1 {
			return configErr(cfg.Language, def.ID, "more than one default followup")
		}
	}

	// Pattern-less intents are reachable only through a dialogue transition
	// (slot companion) or as the configured fallback. The fallback intent id
	// lives in settings, so unreferenced ones only warn here.
	for _, def := range cfg.Intents {
		if len(def.Patterns) == 0 && !slotTargets[def.ID] {
			slog.Warn("Registry: intent has no patterns and no slot reference; reachable only as fallback",
				"language", cfg.Language, "intent", def.ID)
		}
	}
	return nil
}
