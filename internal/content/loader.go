// Package content assembles the policy corpus from the configured documents.
package content

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"party-avatar/internal/models"
	"party-avatar/internal/parser"
)

// Loader reads every supported document under the configured paths and joins
// them into one corpus. The corpus is cached until Reset.
type Loader struct {
	paths    []string
	maxChars int
	opts     parser.Options

	mu     sync.Mutex
	corpus *string
}

// NewLoader creates a loader over paths, each a file or a directory. maxChars
// caps the corpus in runes; zero disables the cap.
func NewLoader(paths []string, maxChars int, opts parser.Options) *Loader {
	return &Loader{
		paths:    append([]string(nil), paths...),
		maxChars: maxChars,
		opts:     opts,
	}
}

// Load returns the cached corpus, reading the documents on first use.
// Missing paths and unreadable files are skipped, so the only error is a
// cancelled context.
func (l *Loader) Load(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corpus != nil {
		return *l.corpus, nil
	}

	docs, err := l.Documents(ctx)
	if err != nil {
		return "", err
	}
	corpus := truncateRunes(Join(docs), l.maxChars)
	l.corpus = &corpus

	log.Info().
		Int("documents", len(docs)).
		Int("chars", len([]rune(corpus))).
		Msg("Loaded content corpus")
	return corpus, nil
}

// Reset drops the cached corpus so the next Load re-reads disk.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.corpus = nil
	l.mu.Unlock()
}

// Documents reads every supported file under the configured paths, in path
// order and by file name within a directory. Documents with no text are left
// out.
func (l *Loader) Documents(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	for _, p := range l.paths {
		files, err := listFiles(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Skipping content path")
			continue
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			body, err := parser.ExtractText(file, l.opts)
			if err != nil {
				log.Warn().Err(err).Str("file", file).Msg("Skipping unreadable document")
				continue
			}
			body = strings.TrimSpace(body)
			if body == "" {
				continue
			}
			docs = append(docs, models.Document{
				Name: strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)),
				Path: file,
				Body: body,
			})
		}
	}
	return docs, nil
}

// Join formats documents as labelled sections separated by
// models.DocumentSeparator.
func Join(docs []models.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, "### "+d.Name+"\n"+d.Body)
	}
	return strings.Join(parts, models.DocumentSeparator)
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("Content path does not exist")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if !parser.Supported(path) {
			return nil, nil
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !parser.Supported(e.Name()) {
			continue
		}
		// skip Word lock files like ~$Klima.docx
		if strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
