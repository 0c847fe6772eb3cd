// Package watch drives staleness checks from file system events,
// batching rapid change bursts behind a debounce window.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/koksalmehmet/typesmith/internal/fsutil"
	"github.com/koksalmehmet/typesmith/internal/logger"
)

// FileChange is one detected change, relative to the watched root.
type FileChange struct {
	Path   string
	Action string // "create", "modify", "delete", "rename"
}

// OnChangeFunc handles one debounced batch of changes.
type OnChangeFunc func(changes []FileChange) error

// Options configure the watcher.
type Options struct {
	// Debounce is the quiet period before a batch is delivered.
	Debounce time.Duration
	// Excludes are doublestar globs matched against root-relative
	// slash paths; matching files and directories are never reported.
	Excludes []string
}

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a directory tree and delivers debounced change
// batches. Directories created while watching are picked up on the fly.
type Watcher struct {
	root     string
	opts     Options
	onChange OnChangeFunc
	watcher  *fsnotify.Watcher

	mu            sync.Mutex
	pending       map[string]FileChange
	debounceTimer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher over root. Start must be called to begin
// delivering events.
func New(root string, onChange OnChangeFunc, opts Options) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:     absRoot,
		opts:     opts,
		onChange: onChange,
		watcher:  fsWatcher,
		pending:  make(map[string]FileChange),
		done:     make(chan struct{}),
	}, nil
}

// Start blocks delivering batches until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add watch paths: %w", err)
	}

	w.wg.Add(1)
	go w.processEvents(ctx)

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case <-w.done:
		return nil
	}
}

// Stop shuts the watcher down and waits for in-flight work.
func (w *Watcher) Stop() {
	select {
	case <-w.done:
		return
	default:
		close(w.done)
	}

	w.wg.Wait()
	w.watcher.Close()

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
}

// WatchedDirs reports how many directories are currently watched.
func (w *Watcher) WatchedDirs() int {
	return len(w.watcher.WatchList())
}

// addRecursive watches dir and every subdirectory not excluded.
// Individual add failures are skipped so one unreadable directory does
// not kill the watch.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		if rel != "." && w.excluded(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logger.Debug("watch %s: %v", rel, err)
		}
		return nil
	})
}

func (w *Watcher) excluded(rel string) bool {
	return fsutil.Excluded(filepath.ToSlash(rel), w.opts.Excludes)
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watch: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.excluded(rel) {
		return
	}

	var action string
	switch {
	case event.Op&fsnotify.Create != 0:
		action = "create"
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		action = "modify"
	case event.Op&fsnotify.Remove != 0:
		action = "delete"
	case event.Op&fsnotify.Rename != 0:
		action = "rename"
	default:
		// Chmod and friends don't affect staleness.
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// A delete followed by a create within one window is a modify;
	// a delete supersedes anything else.
	if existing, ok := w.pending[rel]; ok {
		if existing.Action == "delete" && action == "create" {
			action = "modify"
		}
	}
	w.pending[rel] = FileChange{Path: rel, Action: action}

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.opts.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	changes := make([]FileChange, 0, len(w.pending))
	for _, c := range w.pending {
		changes = append(changes, c)
	}
	w.pending = make(map[string]FileChange)
	w.mu.Unlock()

	if w.onChange != nil {
		if err := w.onChange(changes); err != nil {
			logger.Error("watch handler: %v", err)
		}
	}
}
