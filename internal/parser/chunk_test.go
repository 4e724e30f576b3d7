package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextDegenerate(t *testing.T) {
	assert.Empty(t, ChunkText("", 10, 2))
	assert.Empty(t, ChunkText("   \n\t ", 10, 2))
	assert.Empty(t, ChunkText("abc", 0, 0))
}

func TestChunkTextShortInput(t *testing.T) {
	assert.Equal(t, []string{"hello"}, ChunkText("  hello  ", 50, 10))
}

func TestChunkTextWindows(t *testing.T) {
	chunks := ChunkText("abcdefghij", 4, 1)
	// windows start at 0, 3, 6 and the one starting at 6 reaches the end
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)
}

func TestChunkTextNoTrailingDuplicate(t *testing.T) {
	// the window that reaches the end stops the loop even when step divides evenly
	chunks := ChunkText("abcdefgh", 4, 0)
	assert.Equal(t, []string{"abcd", "efgh"}, chunks)
}

func TestChunkTextDropsWhitespaceWindows(t *testing.T) {
	text := "abc" + strings.Repeat(" ", 13) + "xyz"
	chunks := ChunkText(text, 4, 0)
	assert.Equal(t, []string{"abc", "xyz"}, chunks)
}

func TestChunkTextClampsOverlap(t *testing.T) {
	chunks := ChunkText("abcdefgh", 4, 9)
	// overlap falls back to size/2
	assert.Equal(t, []string{"abcd", "cdef", "efgh"}, chunks)
}

func TestChunkTextCountsRunes(t *testing.T) {
	chunks := ChunkText("æøåæøå", 3, 0)
	assert.Equal(t, []string{"æøå", "æøå"}, chunks)
}

func TestChunkTextReconstructsInput(t *testing.T) {
	corpus := strings.Repeat("Klimapolitikk-og-energi;", 40) + "slutt"
	params := []struct{ size, overlap int }{
		{50, 10}, {600, 80}, {7, 6}, {13, 0}, {1, 0}, {100, 99},
	}
	for _, p := range params {
		chunks := ChunkText(corpus, p.size, p.overlap)
		require.NotEmpty(t, chunks)
		assert.Equal(t, corpus, joinChunks(chunks, p.overlap), "size=%d overlap=%d", p.size, p.overlap)
	}
}

// joinChunks rebuilds the text covered by untrimmed windows produced with the
// same size and overlap: the first window whole, then each later window past
// its overlap.
func joinChunks(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		if overlap < len(r) {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}
