package rag

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"party-avatar/internal/config"
	"party-avatar/internal/content"
	"party-avatar/internal/embedding"
	"party-avatar/internal/helper"
	"party-avatar/internal/llmservice"
	"party-avatar/internal/models"
	"party-avatar/internal/parser"
)

// Generator produces an answer from a question and its retrieved context.
type Generator interface {
	Generate(ctx context.Context, question, retrieved string) (*models.Answer, error)
}

// Recorder stores answered questions. Failures never affect the answer.
type Recorder interface {
	Record(ctx context.Context, entry models.AnswerLog) error
}

// RAG is the question answering pipeline: retrieve, prompt, generate.
type RAG struct {
	retriever *Retriever
	generator Generator
	recorder  Recorder
}

// NewRAG wires a pipeline. recorder may be nil.
func NewRAG(retriever *Retriever, generator Generator, recorder Recorder) *RAG {
	return &RAG{retriever: retriever, generator: generator, recorder: recorder}
}

// NewFromConfig builds the content loader, index, retriever and generator
// described by cfg. Missing embedding credentials give a degraded index.
func NewFromConfig(cfg *config.Config, recorder Recorder) (*RAG, error) {
	loader := content.NewLoader(cfg.Content.Paths, cfg.Content.MaxChars, parser.Options{
		MarkdownPlain: cfg.Content.MarkdownPlain,
	})

	var embedder embeddings.Embedder
	if cfg.RAG.Strategy == config.StrategyEmbedding {
		e, err := embedding.New(&cfg.EmbedLLM, cfg.RAG.EmbedBatchSize)
		switch {
		case errors.Is(err, embedding.ErrNotConfigured):
			log.Warn().Str("provider", cfg.EmbedLLM.Provider).Msg("No embedding credentials, retrieval uses leading chunks")
		case err != nil:
			return nil, err
		default:
			embedder = e
		}
	}

	index := NewIndex(loader, embedder, IndexOptions{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		BatchSize:    cfg.RAG.EmbedBatchSize,
		Concurrency:  cfg.RAG.EmbedConcurrency,
	})
	retriever, err := NewRetriever(index, cfg.RAG.Strategy, cfg.RAG.TopK, cfg.RAG.LexicalFallbackChars)
	if err != nil {
		return nil, err
	}
	generator, err := llmservice.NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return NewRAG(retriever, generator, recorder), nil
}

// Answer responds to question. A blank question gets the intro messages.
// The only error is a failure of every answer provider.
func (r *RAG) Answer(ctx context.Context, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return &models.Answer{Messages: models.IntroMessages()}, nil
	}

	retrieved, err := r.retriever.Retrieve(ctx, question)
	if err != nil {
		log.Warn().Err(err).Msg("Retrieval failed, answering without party material")
		retrieved = ""
	}
	log.Debug().
		Str("strategy", r.retriever.Strategy()).
		Int("context_chars", utf8.RuneCountInString(retrieved)).
		Msg("Retrieved context")

	answer, err := r.generator.Generate(ctx, question, retrieved)
	entry := models.AnswerLog{
		Question:     question,
		ContextChars: utf8.RuneCountInString(retrieved),
	}
	if err != nil {
		log.Error().Err(err).Msg("No provider could answer")
		entry.Error = err.Error()
		r.record(ctx, entry)
		return nil, err
	}
	if len(answer.Messages) == 0 {
		answer.Messages = models.FailureMessages()
	}

	entry.Provider = answer.Provider
	entry.Model = answer.Model
	entry.Messages = answer.Messages
	r.record(ctx, entry)
	return answer, nil
}

// ResetIndex makes the next question rebuild the index from current content.
func (r *RAG) ResetIndex() {
	r.retriever.Reset()
}

// Retriever exposes the pipeline's retriever.
func (r *RAG) Retriever() *Retriever {
	return r.retriever
}

func (r *RAG) record(ctx context.Context, entry models.AnswerLog) {
	if r.recorder == nil {
		return
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		log.Warn().Err(err).Msg("Skipping answer log")
		return
	}
	entry.ID = id
	if err := r.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Failed to record answer")
	}
}
