// Command salom runs the Salom intent engine as an interactive console chat.
//
// The conversational core is transport-agnostic; this binary wires it to
// stdin/stdout for local use and smoke testing.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"salom/internal/engine"
	"salom/internal/extract"
	"salom/internal/genai"
	"salom/internal/models"
	"salom/internal/registry"
	"salom/internal/settings"
	"salom/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Salom state data
	DefaultStateDir = "/var/lib/salom"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "salom.db"
	// DefaultLanguages are the language configs loaded when none are named
	DefaultLanguages = "en,ru,tg"
)

// Config holds environment configuration
type Config struct {
	StateDir    string
	DatabaseURL string
	RedisURL    string
	OpenAIKey   string
	ConfigDir   string
}

// Flags holds command line flag values
type Flags struct {
	configDir *string
	backend   *string
	dsn       *string
	languages *string
	userID    *string
	userName  *string
	verbose   *bool
}

func main() {
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)
	initializeLogger(*flags.verbose)

	opts, err := settings.Load(*flags.configDir)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	reg := registry.NewRegistry()
	for _, lang := range strings.Split(*flags.languages, ",") {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		if err := reg.Load(*flags.configDir, lang); err != nil {
			slog.Error("Failed to load language configuration", "language", lang, "error", err)
			os.Exit(1)
		}
	}

	sessions, err := buildSessionStore(*flags.backend, *flags.dsn, config.StateDir, opts)
	if err != nil {
		slog.Error("Failed to initialize session store", "backend", *flags.backend, "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	tagger := buildTagger(config.OpenAIKey)

	eng := engine.New(reg, sessions, tagger, opts)
	slog.Info("Salom engine ready",
		"languages", reg.Languages(), "backend", *flags.backend, "tagger", tagger != nil)

	runConsole(eng, *flags.userID, *flags.userName)
}

// initializeLogger sets up structured logging.
func initializeLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and the
// .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:    os.Getenv("SALOM_STATE_DIR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		ConfigDir:   os.Getenv("SALOM_CONFIG_DIR"),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	return config
}

// parseCommandLineFlags defines and parses flags, with environment values as
// defaults.
func parseCommandLineFlags(config Config) Flags {
	defaultDSN := config.DatabaseURL
	if defaultDSN == "" {
		defaultDSN = config.RedisURL
	}

	flags := Flags{
		configDir: flag.String("config", config.ConfigDir, "directory with intents_<lang>.json, gazetteer_<lang>.json and salom.yaml"),
		backend:   flag.String("backend", "memory", "session store backend: memory, sqlite, postgres or redis"),
		dsn:       flag.String("dsn", defaultDSN, "session store DSN (file path, postgres:// or redis:// URL)"),
		languages: flag.String("languages", DefaultLanguages, "comma-separated language codes to load"),
		userID:    flag.String("user", "console", "user id for this chat session"),
		userName:  flag.String("name", "", "display name used in responses"),
		verbose:   flag.Bool("verbose", false, "enable debug logging"),
	}
	flag.Parse()
	return flags
}

// buildSessionStore constructs the chosen session store backend.
func buildSessionStore(backend, dsn, stateDir string, opts *settings.Settings) (store.SessionStore, error) {
	ttl := store.WithTTL(opts.SessionTTL)
	switch backend {
	case "memory":
		return store.NewInMemoryStore(ttl), nil
	case "sqlite":
		if dsn == "" {
			dsn = filepath.Join(stateDir, DefaultDBFileName)
		}
		return store.NewSQLiteStore(store.WithDSN(dsn), ttl)
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(dsn), ttl)
	case "redis":
		return store.NewRedisStore(store.WithDSN(dsn), ttl)
	default:
		return nil, fmt.Errorf("unknown session store backend %q", backend)
	}
}

// buildTagger creates the delegated entity tagger when an API key is present.
// Without one the engine runs gazetteer-only.
func buildTagger(apiKey string) extract.Tagger {
	if apiKey == "" {
		slog.Info("OPENAI_API_KEY not set, running without the delegated tagger")
		return nil
	}
	client, err := genai.NewClient(genai.WithAPIKey(apiKey))
	if err != nil {
		slog.Warn("Failed to initialize the delegated tagger, running gazetteer-only", "error", err)
		return nil
	}
	return client
}

// runConsole reads messages from stdin and prints the engine's replies.
func runConsole(eng *engine.Engine, userID, userName string) {
	fmt.Println("Salom. Type a message, Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		result, err := eng.HandleMessage(context.Background(), models.Request{
			Text:     text,
			UserID:   userID,
			UserName: userName,
		})
		if err != nil {
			slog.Error("Message handling failed", "error", err)
			continue
		}
		fmt.Printf("[%s %s %.2f] %s\n", result.Language, result.Intent, result.Confidence, result.Response)
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Console input failed", "error", err)
	}
	fmt.Println()
}
