package parser

import "strings"

// ChunkText splits text into windows of size runes that advance by
// size-overlap. Each window is trimmed and empty windows are dropped. The last
// window ends exactly at the end of the text.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	runes := []rune(text)
	step := size - overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
