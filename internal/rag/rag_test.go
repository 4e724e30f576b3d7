package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"party-avatar/internal/config"
	"party-avatar/internal/content"
	"party-avatar/internal/llmservice"
	"party-avatar/internal/models"
	"party-avatar/internal/parser"
	"party-avatar/internal/prompt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeSource struct {
	corpus string
	err    error
	gate   chan struct{}
	loads  atomic.Int32
	resets atomic.Int32
}

func (f *fakeSource) Load(ctx context.Context) (string, error) {
	f.loads.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.corpus, f.err
}

func (f *fakeSource) Reset() { f.resets.Add(1) }

// topicEmbedder maps a text onto one axis per topic, so similarity is 1 for
// a shared topic and 0 otherwise.
type topicEmbedder struct {
	docErrs  atomic.Int32
	queryErr error
	emptyAt  int
}

var topics = []string{"energi", "skole", "helse"}

func topicVector(text string) []float32 {
	v := make([]float32, len(topics)+1)
	for i, t := range topics {
		if strings.Contains(text, t) {
			v[i] = 1
			return v
		}
	}
	v[len(topics)] = 1
	return v
}

func (e *topicEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.docErrs.Load() > 0 {
		e.docErrs.Add(-1)
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = topicVector(t)
	}
	if e.emptyAt > 0 && e.emptyAt <= len(out) {
		out[e.emptyAt-1] = nil
	}
	return out, nil
}

func (e *topicEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return topicVector(text), nil
}

var topicCorpus = strings.Repeat("energi ", 10) + strings.Repeat("skole ", 10) + strings.Repeat("helse ", 10)

func newRetriever(t *testing.T, src ContentSource, emb *topicEmbedder, strategy string, size, overlap int) *Retriever {
	t.Helper()
	var ix *Index
	if emb == nil {
		ix = NewIndex(src, nil, IndexOptions{ChunkSize: size, ChunkOverlap: overlap, BatchSize: 2, Concurrency: 2})
	} else {
		ix = NewIndex(src, emb, IndexOptions{ChunkSize: size, ChunkOverlap: overlap, BatchSize: 2, Concurrency: 2})
	}
	r, err := NewRetriever(ix, strategy, 3, 20)
	require.NoError(t, err)
	return r
}

func TestBlankQueryDoesNotBuild(t *testing.T) {
	src := &fakeSource{corpus: topicCorpus}
	r := newRetriever(t, src, &topicEmbedder{}, config.StrategyEmbedding, 60, 0)

	got, err := r.Retrieve(context.Background(), "  \n\t")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, src.loads.Load())
}

func TestEmptyCorpus(t *testing.T) {
	for _, strategy := range []string{config.StrategyEmbedding, config.StrategyLexical} {
		r := newRetriever(t, &fakeSource{}, &topicEmbedder{}, strategy, 60, 0)
		got, err := r.Retrieve(context.Background(), "energi")
		require.NoError(t, err, strategy)
		assert.Empty(t, got, strategy)
	}
}

func TestDegradedIndexUsesFirstChunks(t *testing.T) {
	src := &fakeSource{corpus: topicCorpus}
	r := newRetriever(t, src, nil, config.StrategyEmbedding, 30, 5)

	s, err := r.index.Snapshot(context.Background())
	require.NoError(t, err)
	require.True(t, s.Degraded())
	require.Greater(t, len(s.Chunks), 3)

	ranking, err := r.Rank(context.Background(), "helse")
	require.NoError(t, err)
	require.Len(t, ranking.Hits, 3)
	for i, h := range ranking.Hits {
		assert.Equal(t, i, h.Chunk)
		assert.Zero(t, h.Score)
	}
	assert.Equal(t, strings.Join(s.Chunks[:3], models.ContextSeparator), ranking.Context())
}

func TestMissingVectorDegradesIndex(t *testing.T) {
	r := newRetriever(t, &fakeSource{corpus: topicCorpus}, &topicEmbedder{emptyAt: 2}, config.StrategyEmbedding, 60, 0)

	s, err := r.index.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Degraded())
	assert.Len(t, s.Vectors, len(s.Chunks))

	ranking, err := r.Rank(context.Background(), "helse")
	require.NoError(t, err)
	assert.Equal(t, 0, ranking.Hits[0].Chunk)
}

func TestEmbeddingRanking(t *testing.T) {
	r := newRetriever(t, &fakeSource{corpus: topicCorpus}, &topicEmbedder{}, config.StrategyEmbedding, 60, 0)

	for _, topic := range topics {
		ranking, err := r.Rank(context.Background(), "Hva med "+topic+"?")
		require.NoError(t, err)
		require.NotEmpty(t, ranking.Hits)
		assert.LessOrEqual(t, len(ranking.Hits), 3)
		assert.Contains(t, ranking.Hits[0].Text, topic)
		assert.InDelta(t, 1.0, ranking.Hits[0].Score, 1e-4)
	}
}

func TestQueryEmbeddingFailureUsesFirstChunks(t *testing.T) {
	emb := &topicEmbedder{queryErr: errors.New("rate limited")}
	r := newRetriever(t, &fakeSource{corpus: topicCorpus}, emb, config.StrategyEmbedding, 60, 0)

	ranking, err := r.Rank(context.Background(), "helse")
	require.NoError(t, err)
	require.NotEmpty(t, ranking.Hits)
	assert.Equal(t, 0, ranking.Hits[0].Chunk)
}

func TestConcurrentCallersShareOneBuild(t *testing.T) {
	src := &fakeSource{corpus: topicCorpus, gate: make(chan struct{})}
	ix := NewIndex(src, &topicEmbedder{}, IndexOptions{ChunkSize: 60})

	const callers = 8
	snaps := make([]*Snapshot, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := ix.Snapshot(context.Background())
			assert.NoError(t, err)
			snaps[i] = s
		}()
	}
	close(src.gate)
	wg.Wait()

	s, err := ix.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.loads.Load())
	for _, got := range snaps {
		assert.Same(t, s, got)
	}
}

func TestCancelledWaiterDoesNotCancelBuild(t *testing.T) {
	src := &fakeSource{corpus: topicCorpus, gate: make(chan struct{})}
	ix := NewIndex(src, nil, IndexOptions{ChunkSize: 60})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := ix.Snapshot(ctx)
		errCh <- err
	}()
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(src.gate)
	s, err := ix.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, s.Chunks)
	assert.Equal(t, int32(1), src.loads.Load())
}

func TestResetRebuilds(t *testing.T) {
	src := &fakeSource{corpus: "energi"}
	r := newRetriever(t, src, nil, config.StrategyLexical, 60, 0)

	first, err := r.index.Snapshot(context.Background())
	require.NoError(t, err)

	src.corpus = "skole"
	r.Reset()
	assert.Equal(t, int32(1), src.resets.Load())

	second, err := r.index.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.loads.Load())
	assert.Greater(t, second.Generation, first.Generation)
	assert.Equal(t, []string{"skole"}, second.Chunks)
}

func TestBuildErrorIsNotCached(t *testing.T) {
	emb := &topicEmbedder{}
	emb.docErrs.Store(1)
	ix := NewIndex(&fakeSource{corpus: topicCorpus}, emb, IndexOptions{ChunkSize: 60, BatchSize: 100})

	_, err := ix.Snapshot(context.Background())
	require.Error(t, err)

	s, err := ix.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Degraded())
}

func TestLexicalRanksExpandedTerms(t *testing.T) {
	corpus := "Energi: Vi vil bygge ut fornybar energy og kraft.\n\n" +
		"Utdanning: Flere lærere og bedre education for alle barn i hele landet."
	r := newRetriever(t, &fakeSource{corpus: corpus}, nil, config.StrategyLexical, 50, 10)

	ranking, err := r.Rank(context.Background(), "Hva mener dere om energi?")
	require.NoError(t, err)
	require.NotEmpty(t, ranking.Hits)
	assert.Empty(t, ranking.Fallback)
	assert.Contains(t, ranking.Hits[0].Text, "energy")
	for _, h := range ranking.Hits {
		assert.Positive(t, h.Score)
	}
	for i := 1; i < len(ranking.Hits); i++ {
		assert.GreaterOrEqual(t, ranking.Hits[i-1].Score, ranking.Hits[i].Score)
	}
}

func TestLexicalRanksEnergyAboveEducation(t *testing.T) {
	corpus := content.Join([]models.Document{
		{Name: "energy", Body: "Energy policy: we will expand renewable power and cut electricity prices."},
		{Name: "education", Body: "Education policy: smaller classes and more teachers in every school."},
	})
	r := newRetriever(t, &fakeSource{corpus: corpus}, nil, config.StrategyLexical, 50, 10)

	ranking, err := r.Rank(context.Background(), "energi")
	require.NoError(t, err)
	require.NotEmpty(t, ranking.Hits)
	top := ranking.Hits[0]
	assert.Contains(t, strings.ToLower(top.Text), "energy")

	s, err := r.index.Snapshot(context.Background())
	require.NoError(t, err)
	scores := make(map[int]float64, len(ranking.Hits))
	for _, h := range ranking.Hits {
		scores[h.Chunk] = h.Score
	}

	educationOnly := 0
	for i, chunk := range s.Chunks {
		lower := strings.ToLower(chunk)
		if strings.Contains(lower, "energy") || strings.Contains(lower, "power") ||
			strings.Contains(lower, "electricity") {
			continue
		}
		educationOnly++
		if score, ok := scores[i]; ok {
			assert.Less(t, score, top.Score, "chunk %d: %q", i, chunk)
		}
	}
	assert.Positive(t, educationOnly)
}

func TestLexicalFallsBackToCorpusPrefix(t *testing.T) {
	corpus := "Skole og utdanning er viktig for oss alle sammen."
	r := newRetriever(t, &fakeSource{corpus: corpus}, nil, config.StrategyLexical, 50, 10)

	ranking, err := r.Rank(context.Background(), "romfart")
	require.NoError(t, err)
	assert.Empty(t, ranking.Hits)
	assert.Equal(t, "Skole og utdanning e", ranking.Fallback)
	assert.Equal(t, ranking.Fallback, ranking.Context())
}

func TestUnknownStrategy(t *testing.T) {
	_, err := NewRetriever(NewIndex(&fakeSource{}, nil, IndexOptions{ChunkSize: 10}), "bm25", 3, 0)
	assert.Error(t, err)
}

type fakeProvider struct {
	content string
	err     error
	calls   int
	last    llmservice.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, req llmservice.Request) (llmservice.Completion, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return llmservice.Completion{}, f.err
	}
	return llmservice.Completion{Content: f.content, Model: "fake-1"}, nil
}

type fakeRecorder struct {
	entries []models.AnswerLog
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, entry models.AnswerLog) error {
	f.entries = append(f.entries, entry)
	return f.err
}

const sadReply = `{"messages":[{"text":"Det har jeg ikke informasjon om.","facialExpression":"sad","animation":"Idle"}]}`

func newPipeline(t *testing.T, src ContentSource, p *fakeProvider, rec Recorder) *RAG {
	t.Helper()
	r, err := NewRetriever(NewIndex(src, nil, IndexOptions{ChunkSize: 600, ChunkOverlap: 80}), config.StrategyEmbedding, 6, 0)
	require.NoError(t, err)
	gen := llmservice.NewGeneratorWithProviders(prompt.NewBuilder("Testpartiet", "norsk bokmål"), config.ProviderAuto, p)
	return NewRAG(r, gen, rec)
}

func TestAnswerWithoutMaterial(t *testing.T) {
	loader := content.NewLoader([]string{t.TempDir()}, 0, parser.Options{})
	p := &fakeProvider{content: sadReply}
	rec := &fakeRecorder{}
	pipeline := newPipeline(t, loader, p, rec)

	answer, err := pipeline.Answer(context.Background(), "Hva mener dere om skatt?")
	require.NoError(t, err)
	require.Len(t, answer.Messages, 1)
	assert.Equal(t, models.ExpressionSad, answer.Messages[0].FacialExpression)
	assert.Contains(t, p.last.System, prompt.NoMaterialNotice)
	assert.Equal(t, "Hva mener dere om skatt?", p.last.User)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "fake", rec.entries[0].Provider)
	assert.Equal(t, "fake-1", rec.entries[0].Model)
	assert.Zero(t, rec.entries[0].ContextChars)
	assert.NotEmpty(t, rec.entries[0].ID)
}

func TestAnswerUsesRetrievedContext(t *testing.T) {
	p := &fakeProvider{content: sadReply}
	pipeline := newPipeline(t, &fakeSource{corpus: "### program\nVi vil kutte skatt på arbeid."}, p, nil)

	_, err := pipeline.Answer(context.Background(), "skatt")
	require.NoError(t, err)
	assert.Contains(t, p.last.System, "Vi vil kutte skatt på arbeid.")
	assert.NotContains(t, p.last.System, prompt.NoMaterialNotice)
}

func TestAnswerEmptyQuestion(t *testing.T) {
	src := &fakeSource{corpus: topicCorpus}
	p := &fakeProvider{content: sadReply}
	pipeline := newPipeline(t, src, p, nil)

	answer, err := pipeline.Answer(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, models.IntroMessages(), answer.Messages)
	assert.Zero(t, p.calls)
	assert.Zero(t, src.loads.Load())
}

func TestAnswerContinuesWhenRetrievalFails(t *testing.T) {
	p := &fakeProvider{content: sadReply}
	pipeline := newPipeline(t, &fakeSource{err: errors.New("disk on fire")}, p, nil)

	answer, err := pipeline.Answer(context.Background(), "helse")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Messages)
	assert.Contains(t, p.last.System, prompt.NoMaterialNotice)
}

func TestAnswerProviderOutage(t *testing.T) {
	p := &fakeProvider{err: errors.New("connection refused")}
	rec := &fakeRecorder{}
	pipeline := newPipeline(t, &fakeSource{corpus: topicCorpus}, p, rec)

	answer, err := pipeline.Answer(context.Background(), "helse")
	assert.Nil(t, answer)
	var all *llmservice.AllProvidersFailedError
	require.ErrorAs(t, err, &all)

	require.Len(t, rec.entries, 1)
	assert.NotEmpty(t, rec.entries[0].Error)
	assert.Empty(t, rec.entries[0].Messages)
}

func TestRecorderFailureDoesNotAffectAnswer(t *testing.T) {
	p := &fakeProvider{content: sadReply}
	rec := &fakeRecorder{err: errors.New("db down")}
	pipeline := newPipeline(t, &fakeSource{corpus: topicCorpus}, p, rec)

	answer, err := pipeline.Answer(context.Background(), "helse")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Messages)
}

func TestResetIndex(t *testing.T) {
	src := &fakeSource{corpus: topicCorpus}
	pipeline := newPipeline(t, src, &fakeProvider{content: sadReply}, nil)

	_, err := pipeline.Answer(context.Background(), "helse")
	require.NoError(t, err)
	pipeline.ResetIndex()
	_, err = pipeline.Answer(context.Background(), "helse")
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.resets.Load())
	assert.Equal(t, int32(2), src.loads.Load())
}
