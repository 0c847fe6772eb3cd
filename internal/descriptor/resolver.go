package descriptor

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// PathResolver resolves a descriptor and its transitive imports from
// the filesystem and from zip/jar archives on the search path.
type PathResolver struct{}

// Resolve loads descriptorPath, expands its imports depth-first in
// declaration order, and returns the flattened type system. Diamond
// imports contribute a unit once; revisits are no-ops, so resolution
// terminates even on import cycles.
func (PathResolver) Resolve(descriptorPath string, searchPath []string) (*TypeSystem, error) {
	abs, err := filepath.Abs(descriptorPath)
	if err != nil {
		return nil, &ResolutionError{Ref: descriptorPath, Err: err}
	}
	st := &resolution{
		searchPath: searchPath,
		visited:    map[string]bool{},
		archives:   map[string]*zip.ReadCloser{},
	}
	defer st.close()

	out := &TypeSystem{}
	if err := st.load(unitRef{path: filepath.Clean(abs)}, out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// unitRef addresses one descriptor unit: a file on disk, or an entry
// inside an archive.
type unitRef struct {
	path    string // absolute cleaned disk path; empty for archive entries
	archive string // absolute cleaned archive path when entry is set
	entry   string // slash path within the archive
}

func (u unitRef) url() string {
	if u.archive != "" {
		return "jar:file://" + filepath.ToSlash(u.archive) + "!/" + u.entry
	}
	return "file://" + filepath.ToSlash(u.path)
}

func (u unitRef) describe() string {
	if u.archive != "" {
		return u.archive + "!/" + u.entry
	}
	return u.path
}

type resolution struct {
	searchPath []string
	visited    map[string]bool
	archives   map[string]*zip.ReadCloser
}

func (r *resolution) close() {
	for _, zr := range r.archives {
		zr.Close()
	}
}

func (r *resolution) load(ref unitRef, out *TypeSystem, root bool) error {
	key := ref.url()
	if r.visited[key] {
		return nil
	}
	r.visited[key] = true

	data, err := r.read(ref)
	if err != nil {
		return &ResolutionError{Ref: ref.describe(), Err: err}
	}
	unit, err := Parse(bytes.NewReader(data), key)
	if err != nil {
		return err
	}
	if root {
		out.Name = unit.Name
		out.Version = unit.Version
		out.Imports = unit.Imports
	}
	out.Types = append(out.Types, unit.Types...)
	for _, imp := range unit.Imports {
		next, err := r.locate(imp, ref)
		if err != nil {
			return err
		}
		if err := r.load(next, out, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolution) read(ref unitRef) ([]byte, error) {
	if ref.archive == "" {
		return os.ReadFile(ref.path)
	}
	zr, err := r.openArchive(ref.archive)
	if err != nil {
		return nil, err
	}
	f, ok := archiveEntry(zr, ref.entry)
	if !ok {
		return nil, fmt.Errorf("no entry %s in %s", ref.entry, ref.archive)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (r *resolution) locate(imp Import, from unitRef) (unitRef, error) {
	if imp.Name != "" {
		return r.locateName(imp.Name)
	}
	return r.locateLocation(imp.Location, from)
}

// locateLocation resolves a location import relative to the importing
// unit. Existence is checked by the subsequent read.
func (r *resolution) locateLocation(loc string, from unitRef) (unitRef, error) {
	if hasScheme(loc) {
		p, ok := URLToPath(loc)
		if !ok {
			return unitRef{}, &ResolutionError{Ref: loc, Err: errors.New("unsupported URL scheme")}
		}
		return unitRef{path: p}, nil
	}
	if from.archive != "" {
		entry := strings.TrimPrefix(path.Clean(loc), "/")
		if !strings.HasPrefix(loc, "/") {
			entry = path.Clean(path.Join(path.Dir(from.entry), loc))
		}
		return unitRef{archive: from.archive, entry: entry}, nil
	}
	p := filepath.FromSlash(loc)
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(from.path), p)
	}
	return unitRef{path: filepath.Clean(p)}, nil
}

// locateName probes the search path in order for a dotted-name import;
// the first entry that contains the unit wins.
func (r *resolution) locateName(name string) (unitRef, error) {
	rel := strings.ReplaceAll(name, ".", "/") + ".xml"
	for _, root := range r.searchPath {
		ref, ok, err := r.probe(root, rel)
		if err != nil {
			return unitRef{}, &ResolutionError{Ref: name, Err: err}
		}
		if ok {
			return ref, nil
		}
	}
	return unitRef{}, &ResolutionError{Ref: name, Err: fmt.Errorf("not found on search path (%d entries)", len(r.searchPath))}
}

func (r *resolution) probe(root, rel string) (unitRef, bool, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return unitRef{}, false, err
	}
	abs = filepath.Clean(abs)
	if isArchive(abs) {
		zr, err := r.openArchive(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return unitRef{}, false, nil
			}
			return unitRef{}, false, err
		}
		if _, ok := archiveEntry(zr, rel); ok {
			return unitRef{archive: abs, entry: rel}, true, nil
		}
		return unitRef{}, false, nil
	}
	p := filepath.Join(abs, filepath.FromSlash(rel))
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return unitRef{}, false, nil
	}
	return unitRef{path: p}, true, nil
}

func (r *resolution) openArchive(abs string) (*zip.ReadCloser, error) {
	if zr, ok := r.archives[abs]; ok {
		return zr, nil
	}
	zr, err := zip.OpenReader(abs)
	if err != nil {
		return nil, err
	}
	r.archives[abs] = zr
	return zr, nil
}

func archiveEntry(zr *zip.ReadCloser, entry string) (*zip.File, bool) {
	for _, f := range zr.File {
		if f.Name == entry {
			return f, true
		}
	}
	return nil, false
}

func isArchive(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".zip", ".jar":
		return true
	}
	return false
}
