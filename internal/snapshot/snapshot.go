package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koksalmehmet/typesmith/internal/config"
	"github.com/koksalmehmet/typesmith/internal/fsutil"
	"github.com/koksalmehmet/typesmith/internal/gitutil"
	"github.com/koksalmehmet/typesmith/internal/logger"
	"github.com/koksalmehmet/typesmith/internal/model"
	"github.com/koksalmehmet/typesmith/internal/resource"
	"github.com/koksalmehmet/typesmith/internal/validate"
	"github.com/koksalmehmet/typesmith/schemas"
)

// TrackedFiles returns the baseline keys for a project: every origin
// file under the declared resource directories plus each unit's
// descriptor. Keys are project-relative slash paths, deduplicated and
// sorted.
func TrackedFiles(root string, cfg *config.Config) ([]string, error) {
	mapping, err := resource.BuildMapping(resource.LayoutFromConfig(root, cfg))
	if err != nil {
		return nil, err
	}

	excludes := cfg.MergedExcludes()
	seen := make(map[string]bool)
	var keys []string
	add := func(p string) {
		key := Key(root, p)
		if seen[key] || fsutil.Excluded(key, excludes) {
			return
		}
		seen[key] = true
		keys = append(keys, key)
	}

	for _, origin := range mapping {
		add(origin)
	}
	for _, u := range cfg.Units {
		add(u.DescriptorPath(root))
	}
	sort.Strings(keys)
	return keys, nil
}

type hashResult struct {
	index int
	state FileState
	err   error
}

// HashFiles stats and hashes the given baseline keys with a bounded
// worker pool, failing fast on the first error. Results keep the input
// order.
func HashFiles(root string, keys []string) ([]FileState, error) {
	if len(keys) == 0 {
		return []FileState{}, nil
	}

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if len(keys) < workers*2 {
		workers = 1
	}
	if workers == 1 {
		states := make([]FileState, 0, len(keys))
		for _, key := range keys {
			state, err := hashOne(root, key)
			if err != nil {
				return nil, err
			}
			states = append(states, state)
		}
		return states, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := make(chan int, len(keys))
	results := make(chan hashResult, len(keys))

	var firstErr error
	var errOnce sync.Once

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case idx, ok := <-jobs:
					if !ok {
						return
					}
					state, err := hashOne(root, keys[idx])
					if err != nil {
						errOnce.Do(func() {
							firstErr = err
							cancel()
						})
						results <- hashResult{index: idx, err: err}
						continue
					}
					results <- hashResult{index: idx, state: state}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range keys {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	states := make([]FileState, len(keys))
	count := 0
	for result := range results {
		if result.err != nil {
			continue
		}
		states[result.index] = result.state
		count++
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if count != len(keys) {
		return nil, fmt.Errorf("internal error: expected %d results, got %d", len(keys), count)
	}
	return states, nil
}

func hashOne(root, key string) (FileState, error) {
	abs := filepath.Join(root, filepath.FromSlash(key))
	st, err := fsutil.StatFile(abs)
	if err != nil {
		return FileState{}, fmt.Errorf("stat %s: %w", key, err)
	}
	hash, err := fsutil.HashFile(abs)
	if err != nil {
		return FileState{}, fmt.Errorf("hash %s: %w", key, err)
	}
	return FileState{Path: key, Hash: hash, Size: st.Size, ModTime: st.ModTime}, nil
}

// Run executes a full snapshot: collect tracked files, hash them, and
// persist the baseline plus the snapshot.json artifact.
func Run(root string, cfg *config.Config) (model.SnapshotSummary, error) {
	start := time.Now()

	if _, err := config.EnsureLayout(root); err != nil {
		return model.SnapshotSummary{}, err
	}
	keys, err := TrackedFiles(root, cfg)
	if err != nil {
		return model.SnapshotSummary{}, err
	}
	logger.Info("snapshotting %d files", len(keys))

	states, err := HashFiles(root, keys)
	if err != nil {
		return model.SnapshotSummary{}, err
	}

	store, err := Open(DBPath(root))
	if err != nil {
		return model.SnapshotSummary{}, err
	}
	defer store.Close()

	id := uuid.NewString()
	commit := gitutil.CommitHash(root)
	if commit != "" && gitutil.IsDirtyWorkingTree(root) {
		logger.Info("working tree has uncommitted changes; baseline will not match commit %s", commit)
	}
	if err := store.Write(id, root, commit, states, start); err != nil {
		return model.SnapshotSummary{}, err
	}

	var total int64
	for _, s := range states {
		total += s.Size
	}
	summary := model.SnapshotSummary{
		SchemaVersion: model.SchemaVersion,
		Kind:          model.KindSnapshot,
		SnapshotID:    id,
		StartedAt:     start.UTC().Format(time.RFC3339),
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
		FileCount:     len(states),
		TotalBytes:    total,
		CommitHash:    commit,
		Provenance:    model.NewProvenance(),
	}
	out := config.OutputsPath(root, "snapshot.json")
	if err := model.WriteSnapshotSummary(out, summary); err != nil {
		return model.SnapshotSummary{}, err
	}
	if err := validate.JSON(out, schemas.Snapshot); err != nil {
		return model.SnapshotSummary{}, err
	}
	logger.Debug("snapshot %s recorded (%d files, %d bytes)", id, len(states), total)
	return summary, nil
}
