package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"party-avatar/internal/config"
	"party-avatar/internal/models"
)

// Hit is one selected chunk. Score is the cosine similarity or the lexical
// match count, depending on the strategy; it is zero for positional picks.
type Hit struct {
	Chunk int
	Text  string
	Score float64
}

// Ranking is the outcome of one selection. When Fallback is set no chunk was
// relevant and Fallback holds a prefix of the corpus to use instead.
type Ranking struct {
	Hits     []Hit
	Fallback string
}

// Context joins the selection into one prompt-ready string.
func (r Ranking) Context() string {
	if r.Fallback != "" {
		return r.Fallback
	}
	texts := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, models.ContextSeparator)
}

type strategy interface {
	name() string
	rank(ctx context.Context, s *Snapshot, query string, topK int) (Ranking, error)
}

// Retriever selects the chunks of an Index most relevant to a query.
type Retriever struct {
	index    *Index
	strategy strategy
	topK     int
}

// NewRetriever creates a retriever using the named strategy
// (config.StrategyEmbedding or config.StrategyLexical).
func NewRetriever(index *Index, strategyName string, topK, fallbackChars int) (*Retriever, error) {
	var s strategy
	switch strategyName {
	case config.StrategyEmbedding, "":
		s = embeddingStrategy{}
	case config.StrategyLexical:
		s = lexicalStrategy{fallbackChars: fallbackChars}
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", strategyName)
	}
	if topK <= 0 {
		topK = 6
	}
	return &Retriever{index: index, strategy: s, topK: topK}, nil
}

// Retrieve returns the context for query. A blank query returns "" without
// touching the index.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	ranking, err := r.Rank(ctx, query)
	if err != nil {
		return "", err
	}
	return ranking.Context(), nil
}

// Rank selects up to topK chunks for query.
func (r *Retriever) Rank(ctx context.Context, query string) (Ranking, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Ranking{}, nil
	}

	s, err := r.index.Snapshot(ctx)
	if err != nil {
		return Ranking{}, err
	}
	if len(s.Chunks) == 0 {
		return Ranking{}, nil
	}
	return r.strategy.rank(ctx, s, query, r.topK)
}

// Reset invalidates the index so the next query sees current content.
func (r *Retriever) Reset() {
	r.index.Invalidate()
}

// Strategy names the active selection strategy.
func (r *Retriever) Strategy() string {
	return r.strategy.name()
}

// firstChunks is the positional selection used when ranking is unavailable.
func firstChunks(s *Snapshot, topK int) Ranking {
	n := min(topK, len(s.Chunks))
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Chunk: i, Text: s.Chunks[i]}
	}
	return Ranking{Hits: hits}
}

type embeddingStrategy struct{}

func (embeddingStrategy) name() string { return config.StrategyEmbedding }

func (embeddingStrategy) rank(ctx context.Context, s *Snapshot, query string, topK int) (Ranking, error) {
	if s.Degraded() {
		return firstChunks(s, topK), nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil || len(vec) == 0 {
		log.Warn().Err(err).Msg("Query embedding failed, using leading chunks")
		return firstChunks(s, topK), nil
	}

	matches, err := s.store.Query(ctx, vec, topK)
	if err != nil {
		return Ranking{}, err
	}
	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{Chunk: m.Index, Text: s.Chunks[m.Index], Score: float64(m.Similarity)}
	}
	return Ranking{Hits: hits}, nil
}

type lexicalStrategy struct {
	fallbackChars int
}

func (lexicalStrategy) name() string { return config.StrategyLexical }

func (l lexicalStrategy) rank(_ context.Context, s *Snapshot, query string, topK int) (Ranking, error) {
	terms := queryTerms(query)

	var hits []Hit
	for i, tokens := range s.tokens {
		if score := lexicalScore(terms, tokens); score > 0 {
			hits = append(hits, Hit{Chunk: i, Text: s.Chunks[i], Score: float64(score)})
		}
	}
	if len(hits) == 0 {
		return Ranking{Fallback: corpusPrefix(s.Corpus, l.fallbackChars)}, nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return Ranking{Hits: hits}, nil
}

func corpusPrefix(corpus string, limit int) string {
	r := []rune(corpus)
	if limit > 0 && len(r) > limit {
		r = r[:limit]
	}
	return strings.TrimSpace(string(r))
}
