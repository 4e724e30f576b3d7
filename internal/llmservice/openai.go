package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"party-avatar/internal/config"
)

// fallbackModels are tried after the configured model, in order.
var fallbackModels = []string{"gpt-4o-mini", "gpt-4.1-mini", "gpt-3.5-turbo"}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider is the primary provider. It walks a list of candidate models
// and moves to the next one only on model access errors.
type OpenAIProvider struct {
	client      chatClient
	models      []string
	temperature float32
}

// NewOpenAIProvider returns nil when no API key is configured.
func NewOpenAIProvider(cfg *config.LLMConfig, temperature float64) *OpenAIProvider {
	key := strings.TrimPrefix(cfg.Key, "Bearer ")
	if key == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newOpenAIProvider(openai.NewClientWithConfig(clientCfg), cfg.Model, temperature)
}

func newOpenAIProvider(client chatClient, model string, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{
		client:      client,
		models:      candidateModels(model),
		temperature: float32(temperature),
	}
}

func (p *OpenAIProvider) Name() string { return config.ProviderOpenAI }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	var lastErr error
	for _, model := range p.models {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Temperature: p.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: req.System},
				{Role: openai.ChatMessageRoleUser, Content: req.User},
			},
		})
		if err != nil {
			if !isModelAccessError(err) {
				return Completion{}, err
			}
			log.Warn().Err(err).Str("model", model).Msg("Model unavailable, trying next candidate")
			lastErr = &ModelAccessError{Model: model, Err: err}
			continue
		}

		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return Completion{}, errors.New("openai returned empty response content")
		}
		return Completion{Content: resp.Choices[0].Message.Content, Model: model}, nil
	}
	return Completion{}, fmt.Errorf("all candidate models failed: %w", lastErr)
}

// candidateModels puts the configured model first and drops duplicates.
func candidateModels(configured string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range append([]string{configured}, fallbackModels...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
