package registry

import "fmt"

// ConfigError reports a fatal problem in an intent configuration. A config
// error makes the affected language unavailable; partially valid configs are
// never accepted.
type ConfigError struct {
	Language string
	Intent   string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Intent != "" {
		return fmt.Sprintf("config error (language %q, intent %q): %s", e.Language, e.Intent, e.Reason)
	}
	return fmt.Sprintf("config error (language %q): %s", e.Language, e.Reason)
}

func configErr(language, intent, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Language: language, Intent: intent, Reason: fmt.Sprintf(format, args...)}
}
