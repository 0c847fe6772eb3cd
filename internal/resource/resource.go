// Package resource scans the project's declared resource directories
// and builds the staged-target to origin path table that staleness
// checks are answered against.
package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/koksalmehmet/typesmith/internal/config"
)

// Dir is one declared resource directory.
type Dir struct {
	Base       string   // directory to scan, absolute once resolved
	Includes   []string // doublestar globs relative to Base; empty means everything
	Excludes   []string
	TargetPath string // relocation prefix under the staging root, slash form
}

// Layout is a project's resolved resource configuration: the staging
// root that target paths are keyed under, plus the directories to scan.
type Layout struct {
	StagingRoot string
	Dirs        []Dir
}

// LayoutFromConfig resolves the configured staging dir and resource
// directories against the project root.
func LayoutFromConfig(root string, cfg *config.Config) Layout {
	l := Layout{StagingRoot: resolve(root, cfg.StagingDir)}
	for _, r := range cfg.Resources {
		l.Dirs = append(l.Dirs, Dir{
			Base:       resolve(root, r.Dir),
			Includes:   r.Includes,
			Excludes:   r.Excludes,
			TargetPath: r.TargetPath,
		})
	}
	return l
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// Mapping maps a staged target path to the origin path it was copied
// from. Both sides are cleaned absolute paths.
type Mapping map[string]string

// Origin returns the origin path recorded for a staged target path.
func (m Mapping) Origin(target string) (string, bool) {
	origin, ok := m[filepath.Clean(target)]
	return origin, ok
}

// BuildMapping scans every layout directory that exists on disk.
// Directories missing on disk are skipped: partially configured
// projects declare directories that do not exist yet. Directories are
// scanned in declared order and files in lexical order, so on target
// collisions the last declaration deterministically wins.
func BuildMapping(l Layout) (Mapping, error) {
	m := Mapping{}
	for _, d := range l.Dirs {
		if err := scanDir(l.StagingRoot, d, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func scanDir(stagingRoot string, d Dir, m Mapping) error {
	info, err := os.Stat(d.Base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat resource dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("resource path %s is not a directory", d.Base)
	}

	includes := d.Includes
	if len(includes) == 0 {
		includes = []string{"**"}
	}
	targetBase := stagingRoot
	if d.TargetPath != "" {
		targetBase = filepath.Join(stagingRoot, filepath.FromSlash(d.TargetPath))
	}

	return filepath.WalkDir(d.Base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matchAny(includes, rel) || matchAny(d.Excludes, rel) {
			return nil
		}
		target := filepath.Clean(filepath.Join(targetBase, filepath.FromSlash(rel)))
		m[target] = filepath.Clean(p)
		return nil
	})
}

func matchAny(globs []string, rel string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}
