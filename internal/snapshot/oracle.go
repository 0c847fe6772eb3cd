package snapshot

import (
	"path/filepath"

	"github.com/koksalmehmet/typesmith/internal/fsutil"
	"github.com/koksalmehmet/typesmith/internal/logger"
)

// Mode selects how much work change detection does per file.
type Mode string

const (
	// ModeFast trusts size and normalized mod time, hashing only when
	// they disagree with the baseline.
	ModeFast Mode = "fast"
	// ModeStrict hashes every file.
	ModeStrict Mode = "strict"
)

// Oracle answers whether a file changed relative to a loaded baseline.
// Ambiguity always reads as changed: missing files, files without a
// baseline record, and unreadable files are all reported changed.
type Oracle struct {
	root     string
	baseline map[string]FileState
	mode     Mode
}

// NewOracle builds an oracle over a baseline loaded from the store.
func NewOracle(root string, baseline map[string]FileState, mode Mode) *Oracle {
	if mode == "" {
		mode = ModeFast
	}
	return &Oracle{root: root, baseline: baseline, mode: mode}
}

// HasChanged reports whether path differs from the recorded baseline.
func (o *Oracle) HasChanged(path string) bool {
	key := Key(o.root, path)
	state, ok := o.baseline[key]
	if !ok {
		logger.Debug("no baseline record for %s", key)
		return true
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(o.root, abs)
	}
	st, err := fsutil.StatFile(abs)
	if err != nil {
		logger.Debug("stat %s: %v", key, err)
		return true
	}

	if o.mode == ModeFast && st.Size == state.Size && st.ModTime.Equal(state.ModTime) {
		return false
	}

	hash, err := fsutil.HashFile(abs)
	if err != nil {
		logger.Debug("hash %s: %v", key, err)
		return true
	}
	return hash != state.Hash
}
