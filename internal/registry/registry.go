// Package registry loads and validates per-language intent definitions.
//
// Configurations are validated exhaustively at load time: a failure makes the
// language unavailable rather than silently degraded. Loaded configs are
// immutable and safe for concurrent read-only use.
package registry

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"salom/internal/models"
	"salom/internal/normalize"
)

//go:embed defaults/*.json
var defaultConfigs embed.FS

// languageAliases maps spelled-out language names to their codes.
var languageAliases = map[string]string{
	"en": "en", "english": "en",
	"ru": "ru", "russian": "ru",
	"tg": "tg", "tajik": "tg", "tajiki": "tg",
}

// NormalizeLanguage resolves a language name or code to a canonical code.
// Unrecognized input is returned lowercased so lookup failures stay visible.
func NormalizeLanguage(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	if code, ok := languageAliases[lower]; ok {
		return code
	}
	return lower
}

// LanguageConfig holds the validated, immutable intent set for one language.
type LanguageConfig struct {
	Language string
	Intents  []*models.IntentDefinition // declaration order preserved
	Cities   map[string]string          // normalized surface form → canonical value
	Dates    map[string]string

	byID map[string]*models.IntentDefinition
}

// Intent returns the definition for id.
func (c *LanguageConfig) Intent(id string) (*models.IntentDefinition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// FollowupKeywords returns every followup trigger keyword configured for this
// language. Used to build the gazetteer's keyword table.
func (c *LanguageConfig) FollowupKeywords() []string {
	var out []string
	seen := make(map[string]bool)
	for _, def := range c.Intents {
		for _, f := range def.Followups {
			for _, kw := range f.Keywords {
				if kw != "" && !seen[kw] {
					seen[kw] = true
					out = append(out, kw)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// gazetteerFile is the on-disk shape of gazetteer_<lang>.json.
type gazetteerFile struct {
	Cities map[string]string `json:"cities"`
	Dates  map[string]string `json:"dates"`
}

// Registry holds the loaded language configurations. Populated once at
// startup and never mutated, so it is shared without synchronization.
type Registry struct {
	configs map[string]*LanguageConfig
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*LanguageConfig)}
}

// Load parses and validates the intent configuration for one language.
// Files intents_<lang>.json and gazetteer_<lang>.json are read from dir when
// present, falling back to the embedded defaults. Any validation failure is a
// ConfigError and leaves the registry unchanged for that language.
func (r *Registry) Load(dir, language string) error {
	lang := NormalizeLanguage(language)
	slog.Debug("Registry.Load: loading language config", "language", lang, "dir", dir)

	intentData, err := readConfigFile(dir, fmt.Sprintf("intents_%s.json", lang))
	if err != nil {
		return configErr(lang, "", "no intent configuration available: %v", err)
	}
	gazData, err := readConfigFile(dir, fmt.Sprintf("gazetteer_%s.json", lang))
	if err != nil {
		return configErr(lang, "", "no gazetteer configuration available: %v", err)
	}

	intents, err := parseIntents(lang, intentData)
	if err != nil {
		return err
	}

	var gaz gazetteerFile
	if err := json.Unmarshal(gazData, &gaz); err != nil {
		return configErr(lang, "", "malformed gazetteer: %v", err)
	}

	cfg := &LanguageConfig{
		Language: lang,
		Intents:  intents,
		Cities:   normalizeTable(gaz.Cities),
		Dates:    normalizeTable(gaz.Dates),
		byID:     make(map[string]*models.IntentDefinition, len(intents)),
	}
	for _, def := range intents {
		cfg.byID[def.ID] = def
	}

	if err := validate(cfg); err != nil {
		slog.Error("Registry.Load: validation failed", "language", lang, "error", err)
		return err
	}

	r.configs[lang] = cfg
	r.order = append(r.order, lang)
	slog.Info("Registry.Load: language config loaded", "language", lang, "intents", len(intents), "cities", len(cfg.Cities))
	return nil
}

// Language returns the configuration for a language code or name.
func (r *Registry) Language(code string) (*LanguageConfig, bool) {
	cfg, ok := r.configs[NormalizeLanguage(code)]
	return cfg, ok
}

// Languages lists the loaded language codes in load order.
func (r *Registry) Languages() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// readConfigFile reads name from dir, falling back to the embedded default.
func readConfigFile(dir, name string) ([]byte, error) {
	if dir != "" {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			slog.Debug("Registry: using config file", "path", path)
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	data, err := defaultConfigs.ReadFile("defaults/" + name)
	if err != nil {
		return nil, fmt.Errorf("no embedded default for %s: %w", name, err)
	}
	slog.Debug("Registry: using embedded default config", "name", name)
	return data, nil
}

// normalizeTable canonicalizes gazetteer surface forms so lookups compare
// normalized tokens with normalized keys. Multi-word forms keep a single
// space between tokens.
func normalizeTable(table map[string]string) map[string]string {
	out := make(map[string]string, len(table))
	for surface, value := range table {
		key := strings.Join(normalize.Tokens(surface, ""), " ")
		if key == "" {
			continue
		}
		out[key] = value
	}
	return out
}
