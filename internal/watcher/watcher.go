package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"party-avatar/internal/parser"
)

var ErrNothingToWatch = errors.New("no existing content path to watch")

const DefaultDebounce = 500 * time.Millisecond

// Watcher calls onChange once a burst of content changes has settled.
type Watcher struct {
	fs       *fsnotify.Watcher
	onChange func()
	debounce time.Duration
	// files restricts events in a directory to single watched files; a
	// directory absent from the map is watched as a whole.
	files map[string]map[string]bool
}

// New watches the given content paths. Directories are watched for any
// supported file; file paths are watched through their parent directory so
// editors that replace the file are still seen.
func New(paths []string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{fs: fsw, onChange: onChange, debounce: debounce, files: map[string]map[string]bool{}}

	watched := map[string]bool{}
	whole := map[string]bool{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Not watching missing content path")
			continue
		}
		p = filepath.Clean(p)
		if info.IsDir() {
			whole[p] = true
			watched[p] = true
			continue
		}
		dir := filepath.Dir(p)
		if w.files[dir] == nil {
			w.files[dir] = map[string]bool{}
		}
		w.files[dir][filepath.Base(p)] = true
		watched[dir] = true
	}
	for dir := range whole {
		delete(w.files, dir)
	}
	for dir := range watched {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	if len(watched) == 0 {
		_ = fsw.Close()
		return nil, ErrNothingToWatch
	}
	return w, nil
}

// Run blocks until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Content changed")
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Content watcher error")
		case <-timer.C:
			if pending {
				pending = false
				log.Info().Msg("Content changed, resetting index")
				w.onChange()
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if files, ok := w.files[filepath.Dir(event.Name)]; ok {
		return files[filepath.Base(event.Name)]
	}
	return parser.Supported(event.Name)
}
