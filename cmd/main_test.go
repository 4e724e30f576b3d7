package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeContent(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "energi.txt"),
		[]byte("Vi vil bygge ut fornybar energi og kraft."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skole.md"),
		[]byte("# Skole\n\nVi vil ha flere lærere i skolen."), 0o644))
	t.Setenv("CONTENT_PATHS", dir)
	t.Setenv("LLM_PROVIDER", "ollama")
	return dir
}

func TestCorpusCommand(t *testing.T) {
	writeContent(t)

	out, err := runCLI(t, "corpus")
	require.NoError(t, err)
	assert.Contains(t, out, "energi")
	assert.Contains(t, out, "skole")
	assert.Contains(t, out, "1 chunks of 600 (overlap 80)")
}

func TestCorpusCommandNoDocuments(t *testing.T) {
	t.Setenv("CONTENT_PATHS", filepath.Join(t.TempDir(), "none"))

	out, err := runCLI(t, "corpus")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found.")
}

func TestRetrieveCommandLexical(t *testing.T) {
	writeContent(t)

	out, err := runCLI(t, "retrieve", "--strategy", "lexical", "Hva", "med", "energi?")
	require.NoError(t, err)
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "fornybar")
	assert.Contains(t, out, "strategy: lexical")
}

func TestRetrieveCommandRejectsUnknownStrategy(t *testing.T) {
	writeContent(t)

	_, err := runCLI(t, "retrieve", "--strategy", "bm25", "energi")
	assert.Error(t, err)
}

func TestHistoryRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := runCLI(t, "history")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"Rank", "Text"}, [][]string{{"1", "energi"}, {"2"}}, []columnAlignment{alignRight})
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "energi")
}
