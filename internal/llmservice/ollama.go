package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"party-avatar/internal/config"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OllamaProvider is the local fallback provider. It asks the server for JSON
// output directly.
type OllamaProvider struct {
	llm         contentGenerator
	model       string
	temperature float64
}

func NewOllamaProvider(cfg *config.LLMConfig, temperature float64) (*OllamaProvider, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating Ollama provider")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &OllamaProvider{llm: llm, model: cfg.Model, temperature: temperature}, nil
}

func (p *OllamaProvider) Name() string { return config.ProviderOllama }

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}

	res, err := p.llm.GenerateContent(ctx, messages, llms.WithTemperature(p.temperature))
	if err != nil {
		return Completion{}, err
	}
	if len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Content) == "" {
		return Completion{}, errors.New("ollama returned empty response content")
	}
	return Completion{Content: res.Choices[0].Content, Model: p.model}, nil
}
