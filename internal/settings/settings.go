// Package settings exposes the engine's tunable policy values.
//
// Values resolve in the usual precedence order: environment variables with
// the SALOM_ prefix, then an optional salom.yaml file, then the built-in
// defaults. Policy constants that the configuration corpus leaves unstated
// (contiguity bonus, override confidence) are deliberately tunable here
// rather than hard-coded.
package settings

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the resolved engine policy.
type Settings struct {
	DefaultLanguage    string        `mapstructure:"default_language"`
	FallbackIntent     string        `mapstructure:"fallback_intent"`
	Threshold          float64       `mapstructure:"threshold"`
	ContiguityBonus    float64       `mapstructure:"contiguity_bonus"`
	OverrideConfidence float64       `mapstructure:"override_confidence"`
	MaxTurns           int           `mapstructure:"max_turns"`
	TaggerTimeout      time.Duration `mapstructure:"tagger_timeout"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
}

// Load resolves settings from defaults, an optional salom.yaml in dir (or the
// working directory when dir is empty), and SALOM_-prefixed environment
// variables.
func Load(dir string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("engine.default_language", "en")
	v.SetDefault("engine.fallback_intent", "unknown")
	v.SetDefault("match.threshold", 0.4)
	v.SetDefault("match.contiguity_bonus", 0.15)
	v.SetDefault("dialogue.override_confidence", 0.9)
	v.SetDefault("dialogue.max_turns", 3)
	v.SetDefault("extract.tagger_timeout", 2*time.Second)
	v.SetDefault("session.ttl", 30*time.Minute)

	v.SetEnvPrefix("SALOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("salom")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		slog.Debug("Settings.Load: no settings file, using defaults and environment")
	} else {
		slog.Info("Settings.Load: settings file loaded", "file", v.ConfigFileUsed())
	}

	s := &Settings{
		DefaultLanguage:    v.GetString("engine.default_language"),
		FallbackIntent:     v.GetString("engine.fallback_intent"),
		Threshold:          v.GetFloat64("match.threshold"),
		ContiguityBonus:    v.GetFloat64("match.contiguity_bonus"),
		OverrideConfidence: v.GetFloat64("dialogue.override_confidence"),
		MaxTurns:           v.GetInt("dialogue.max_turns"),
		TaggerTimeout:      v.GetDuration("extract.tagger_timeout"),
		SessionTTL:         v.GetDuration("session.ttl"),
	}
	if err := validateSettings(s); err != nil {
		return nil, err
	}
	return s, nil
}

func validateSettings(s *Settings) error {
	if s.Threshold < 0 || s.Threshold > 1 {
		return fmt.Errorf("match.threshold %v out of range [0,1]", s.Threshold)
	}
	if s.OverrideConfidence < 0 || s.OverrideConfidence > 1 {
		return fmt.Errorf("dialogue.override_confidence %v out of range [0,1]", s.OverrideConfidence)
	}
	if s.ContiguityBonus < 0 {
		return fmt.Errorf("match.contiguity_bonus %v must not be negative", s.ContiguityBonus)
	}
	if s.MaxTurns <= 0 {
		return fmt.Errorf("dialogue.max_turns %d must be positive", s.MaxTurns)
	}
	if s.TaggerTimeout <= 0 {
		return fmt.Errorf("extract.tagger_timeout %v must be positive", s.TaggerTimeout)
	}
	return nil
}
