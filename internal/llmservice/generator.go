package llmservice

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"party-avatar/internal/config"
	"party-avatar/internal/models"
	"party-avatar/internal/prompt"
)

// Generator turns a question and its retrieved context into an answer,
// walking the provider chain in order.
type Generator struct {
	prompts *prompt.Builder
	mode    string
	chain   []Provider
}

// NewGenerator builds the provider chain for cfg.LLM.Provider:
//
//	auto   - OpenAI if a key is configured, then Ollama
//	openai - OpenAI only
//	ollama - Ollama only
func NewGenerator(cfg *config.Config) (*Generator, error) {
	prompts := prompt.NewBuilder(cfg.Prompt.PartyName, cfg.Prompt.Language)

	var primary Provider
	if p := NewOpenAIProvider(&cfg.LLM.OpenAI, cfg.LLM.Temperature); p != nil {
		primary = p
	}
	fallback, err := NewOllamaProvider(&cfg.LLM.Ollama, cfg.LLM.Temperature)
	if err != nil {
		return nil, err
	}

	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		if primary == nil {
			return nil, fmt.Errorf("llm provider %q requires OPENAI_API_KEY", cfg.LLM.Provider)
		}
		return NewGeneratorWithProviders(prompts, cfg.LLM.Provider, primary), nil
	case config.ProviderOllama:
		return NewGeneratorWithProviders(prompts, cfg.LLM.Provider, fallback), nil
	case config.ProviderAuto, "":
		if primary == nil {
			log.Info().Msg("No OpenAI key configured, answering with Ollama only")
			return NewGeneratorWithProviders(prompts, config.ProviderAuto, fallback), nil
		}
		return NewGeneratorWithProviders(prompts, config.ProviderAuto, primary, fallback), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// NewGeneratorWithProviders uses the given chain as is. In auto mode failures
// are collected into an AllProvidersFailedError; in any other mode the single
// provider's error is returned unchanged.
func NewGeneratorWithProviders(prompts *prompt.Builder, mode string, chain ...Provider) *Generator {
	return &Generator{prompts: prompts, mode: mode, chain: chain}
}

// Generate answers question using retrieved as the party material. The system
// prompt is rendered per call, so no context outlives the call.
func (g *Generator) Generate(ctx context.Context, question, retrieved string) (*models.Answer, error) {
	req := Request{System: g.prompts.System(retrieved), User: question}

	if g.mode != config.ProviderAuto {
		if len(g.chain) == 0 {
			return nil, &AllProvidersFailedError{}
		}
		p := g.chain[0]
		c, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		return answerFrom(p, c), nil
	}

	var failures []ProviderFailure
	for _, p := range g.chain {
		c, err := p.Complete(ctx, req)
		if err == nil {
			return answerFrom(p, c), nil
		}
		log.Warn().Err(err).Str("provider", p.Name()).Msg("Provider failed")
		failures = append(failures, ProviderFailure{
			Provider: p.Name(),
			Err:      &ProviderError{Provider: p.Name(), Err: err},
		})
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &AllProvidersFailedError{Failures: failures}
}

func answerFrom(p Provider, c Completion) *models.Answer {
	parsed := ParseOutput(c.Content)
	if _, ok := parsed.(PlainTextFallback); ok {
		log.Debug().Str("provider", p.Name()).Msg("Model output was not structured JSON, using plain text")
	}
	return &models.Answer{
		Messages: parsed.Messages(),
		Provider: p.Name(),
		Model:    c.Model,
	}
}
