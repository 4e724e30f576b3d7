package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const collectionName = "chunks"

// Match is one query hit: the chunk position and its cosine similarity.
type Match struct {
	Index      int
	Similarity float32
}

// VectorStore holds the chunk embeddings of one index generation in memory.
// It is built once and thrown away on reset, never updated in place.
type VectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewVectorStore adds vectors[i] as the embedding of chunks[i]. Every vector
// must be present.
func NewVectorStore(ctx context.Context, chunks []string, vectors [][]float32) (*VectorStore, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	db := chromem.NewDB()
	// embeddings are always supplied, so the collection never embeds on its own
	c, err := db.CreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %v", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("chunk %d has no embedding", i)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   chunks[i],
			Embedding: vectors[i],
		}
	}
	if len(docs) > 0 {
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to add documents: %v", err)
		}
	}

	return &VectorStore{db: db, collection: c}, nil
}

// Count returns the number of stored chunks.
func (s *VectorStore) Count() int {
	return s.collection.Count()
}

// Query returns up to k chunks ordered by descending cosine similarity to
// embedding.
func (s *VectorStore) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, errors.New("query embedding is empty")
	}
	k = min(k, s.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q", r.ID)
		}
		matches = append(matches, Match{Index: idx, Similarity: r.Similarity})
	}
	return matches, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("vector store requires precomputed embeddings")
}
