// Package openai provides an OpenAI-compatible llm.Provider implementation
// backed by the official openai-go client. A custom base URL makes it work
// against Azure OpenAI, OpenRouter, or local OpenAI-compatible servers.
package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/promptdeck/pkg/types"
)

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	client openai.Client
	model  string
}

// ProviderOption configures a Provider.
type ProviderOption func(*settings)

type settings struct {
	model   string
	baseURL string
}

// WithModel sets the model used for completions.
func WithModel(model string) ProviderOption {
	return func(s *settings) {
		s.model = model
	}
}

// WithBaseURL points the provider at a custom OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(s *settings) {
		s.baseURL = baseURL
	}
}

// NewProvider creates a provider with the given API key. An empty key falls
// back to OPENAI_API_KEY; an unset base URL falls back to OPENAI_BASE_URL.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required (parameter or OPENAI_API_KEY)")
	}

	s := &settings{model: "gpt-4o"}
	for _, opt := range opts {
		opt(s)
	}
	if s.baseURL == "" {
		s.baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		options = append(options, option.WithBaseURL(s.baseURL))
	}

	return &Provider{
		client: openai.NewClient(options...),
		model:  s.model,
	}, nil
}

// Complete sends the messages and returns the assistant reply.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: convertMessages(messages),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: completion returned no choices")
	}
	return types.NewAssistantMessage(completion.Choices[0].Message.Content), nil
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// convertMessages maps our message format onto openai-go param unions.
func convertMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
