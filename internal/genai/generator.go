// Package genai adapts an OpenAI-compatible chat-completion API as the
// reply generator for the responder and the bulk AI mode.
package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/config"
)

// Roles for history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one prior turn of the conversation handed to the model.
type HistoryEntry struct {
	Role string
	Text string
}

// Request is one generation call.
type Request struct {
	SystemPrompt string
	History      []HistoryEntry
	UserText     string
}

// Generator produces one reply text for a request. Implementations must
// honor ctx cancellation; callers bound every call with a deadline.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// OpenAIGenerator calls a chat-completions endpoint. Any OpenAI-compatible
// server works; the base URL defaults to the configured provider.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewOpenAIGenerator builds a generator from the responder configuration.
func NewOpenAIGenerator(cfg config.ResponderConfig) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Generate performs one completion call and returns the trimmed reply text.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, turn := range req.History {
		if turn.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Text))
		} else {
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	if req.UserText != "" {
		messages = append(messages, openai.UserMessage(req.UserText))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(g.maxTokens)
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

var _ Generator = (*OpenAIGenerator)(nil)
