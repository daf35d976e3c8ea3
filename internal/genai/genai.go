// Package genai implements the delegated entity tagger on top of the OpenAI
// chat completions API.
//
// The engine only depends on the narrow Tag capability; this package is never
// imported by core matching or dialogue logic, so tests substitute a
// deterministic stub instead.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"salom/internal/models"
)

// ErrNoChoicesReturned indicates the API responded without any completion.
var ErrNoChoicesReturned = errors.New("no choices returned")

const systemPrompt = `You are an entity tagger for a chat assistant. Given a JSON object with
"tokens" (a list of normalized words) and "language", return ONLY a JSON array
of entities found in the tokens. Each entity is an object with keys "type"
(one of "city", "date", "keyword"), "value" (canonical English value for
cities, normalized phrase otherwise), "start" and "end" (token indices, end
exclusive). Return [] when nothing is found. No prose, no code fences.`

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the real client to chatService.
type openaiChatService struct {
	client openai.Client
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI chat completion service as an entity Tagger.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// Option configures the Client.
type Option func(*clientOpts)

type clientOpts struct {
	apiKey string
	model  openai.ChatModel
}

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *clientOpts) { o.apiKey = key }
}

// WithModel selects the completion model. Defaults to GPT-4o mini.
func WithModel(model openai.ChatModel) Option {
	return func(o *clientOpts) { o.model = model }
}

// NewClient initializes a tagger client from options or the OPENAI_API_KEY
// environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg clientOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.model == "" {
		cfg.model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.apiKey))
	return &Client{chat: openaiChatService{client: cli}, model: cfg.model}, nil
}

// taggedEntity is the wire shape the model is asked to produce.
type taggedEntity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// taggerConfidence is assigned to model-produced spans. Gazetteer hits carry
// 1.0, so exact table matches outrank the model on conflicts of equal length.
const taggerConfidence = 0.9

// Tag asks the model to identify entity spans in the token sequence.
func (c *Client) Tag(ctx context.Context, tokens []string, language string) ([]models.Entity, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"tokens":   tokens,
		"language": language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tagger request: %w", err)
	}

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("tagger completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}

	entities, err := parseEntities(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	slog.Debug("Client.Tag: delegated tagging complete", "language", language, "tokens", len(tokens), "entities", len(entities))
	return entities, nil
}

// parseEntities decodes the model output, tolerating stray code fences.
func parseEntities(content string) ([]models.Entity, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var tagged []taggedEntity
	if err := json.Unmarshal([]byte(trimmed), &tagged); err != nil {
		return nil, fmt.Errorf("tagger returned malformed entities: %w", err)
	}

	out := make([]models.Entity, 0, len(tagged))
	for _, te := range tagged {
		out = append(out, models.Entity{
			Type:       models.EntityType(te.Type),
			Value:      te.Value,
			Start:      te.Start,
			End:        te.End,
			Confidence: taggerConfidence,
		})
	}
	return out, nil
}
