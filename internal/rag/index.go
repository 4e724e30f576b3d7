package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"party-avatar/internal/chromemdb"
	"party-avatar/internal/parser"
)

// ContentSource yields the corpus the index is built from.
type ContentSource interface {
	Load(ctx context.Context) (string, error)
	Reset()
}

type IndexOptions struct {
	ChunkSize    int
	ChunkOverlap int
	// BatchSize is the number of chunks sent per embedding request.
	BatchSize int
	// Concurrency bounds the embedding requests in flight during a build.
	Concurrency int
}

// Index lazily chunks and embeds the corpus. A build runs at most once per
// generation; concurrent callers wait for the same build. Invalidate starts a
// new generation.
type Index struct {
	source   ContentSource
	embedder embeddings.Embedder
	opts     IndexOptions

	mu         sync.Mutex
	generation uint64
	current    *Snapshot
	builds     singleflight.Group
}

// Snapshot is one built generation of the index. It is immutable.
type Snapshot struct {
	Generation uint64
	Corpus     string
	Chunks     []string
	// Vectors[i] embeds Chunks[i]; nil entries mean embeddings were unavailable.
	Vectors [][]float32

	store    *chromemdb.VectorStore
	embedder embeddings.Embedder
	tokens   [][]string
}

// Degraded reports whether similarity ranking is unavailable for this
// snapshot.
func (s *Snapshot) Degraded() bool {
	return s.store == nil
}

// NewIndex creates an index over source. A nil embedder builds degraded
// snapshots.
func NewIndex(source ContentSource, embedder embeddings.Embedder, opts IndexOptions) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Index{source: source, embedder: embedder, opts: opts}
}

// Snapshot returns the current generation, building it if needed.
func (ix *Index) Snapshot(ctx context.Context) (*Snapshot, error) {
	ix.mu.Lock()
	if ix.current != nil {
		s := ix.current
		ix.mu.Unlock()
		return s, nil
	}
	gen := ix.generation
	ix.mu.Unlock()

	ch := ix.builds.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		// the build is shared, so one caller giving up must not cancel it
		s, err := ix.build(context.WithoutCancel(ctx), gen)
		if err != nil {
			return nil, err
		}
		ix.mu.Lock()
		if ix.generation == gen {
			ix.current = s
		}
		ix.mu.Unlock()
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Invalidate drops the built snapshot and detaches any build in flight, so
// the next Snapshot call re-reads the content source.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.generation++
	ix.current = nil
	ix.mu.Unlock()
	ix.source.Reset()
	log.Info().Msg("Index invalidated")
}

func (ix *Index) build(ctx context.Context, gen uint64) (*Snapshot, error) {
	corpus, err := ix.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}

	chunks := parser.ChunkText(corpus, ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	s := &Snapshot{
		Generation: gen,
		Corpus:     corpus,
		Chunks:     chunks,
		Vectors:    make([][]float32, len(chunks)),
		tokens:     make([][]string, len(chunks)),
	}
	for i, c := range chunks {
		s.tokens[i] = tokenize(c)
	}

	if len(chunks) == 0 || ix.embedder == nil {
		log.Info().
			Uint64("generation", gen).
			Int("chunks", len(chunks)).
			Bool("degraded", true).
			Msg("Built index")
		return s, nil
	}

	if err := ix.embedChunks(ctx, chunks, s.Vectors); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	for i, v := range s.Vectors {
		if len(v) == 0 {
			s.Vectors[i] = nil
			log.Warn().
				Uint64("generation", gen).
				Int("chunk", i).
				Msg("Chunk has no embedding, index is degraded")
			return s, nil
		}
	}
	store, err := chromemdb.NewVectorStore(ctx, chunks, s.Vectors)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.embedder = ix.embedder

	log.Info().
		Uint64("generation", gen).
		Int("chunks", len(chunks)).
		Int("vectors", store.Count()).
		Bool("degraded", false).
		Msg("Built index")
	return s, nil
}

// embedChunks fills vectors in chunk order, one request per batch.
func (ix *Index) embedChunks(ctx context.Context, chunks []string, vectors [][]float32) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Concurrency)

	for start := 0; start < len(chunks); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(chunks))
		g.Go(func() error {
			batch, err := ix.embedder.EmbedDocuments(gctx, chunks[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return errors.New("embedding count does not match batch size")
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	return g.Wait()
}
