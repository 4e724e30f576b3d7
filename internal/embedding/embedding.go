package embedding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"party-avatar/internal/config"
)

// ErrNotConfigured means the embedding provider has no credentials. Callers
// treat it as "no embeddings" rather than a failure.
var ErrNotConfigured = errors.New("embedding provider not configured")

const defaultBatchSize = 20

// New returns the embedder selected by cfg.Provider.
func New(cfg *config.LLMConfig, batchSize int) (embeddings.Embedder, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAIEmbedder(cfg, batchSize)
	case config.ProviderOllama:
		return NewOllamaEmbedder(cfg, batchSize)
	case config.ProviderGemini:
		return NewGenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewOpenAIEmbedder creates an embedder for the OpenAI embeddings API or a
// compatible endpoint when BaseURL is set.
func NewOpenAIEmbedder(cfg *config.LLMConfig, batchSize int) (*embeddings.EmbedderImpl, error) {
	key := strings.TrimPrefix(cfg.Key, "Bearer ")
	if key == "" {
		return nil, ErrNotConfigured
	}

	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating OpenAI embedder")

	opts := []openai.Option{
		openai.WithToken(key),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize))
}

// NewOllamaEmbedder creates an embedder backed by a local Ollama server.
func NewOllamaEmbedder(cfg *config.LLMConfig, batchSize int) (*embeddings.EmbedderImpl, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating Ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize))
}
