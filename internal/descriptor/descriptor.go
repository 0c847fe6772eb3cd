// Package descriptor parses XML type-system descriptors and resolves
// their imports against a search path of directories and archives.
package descriptor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// TypeSystem is a parsed descriptor unit. After resolution it carries
// the types of the root unit plus every transitively imported unit, in
// declaration order.
type TypeSystem struct {
	Name    string
	Version string
	Imports []Import
	Types   []Type
}

// Type is a single type declaration. SourceURL is the provenance of
// the unit that declared it: a file URL for units loaded from disk, a
// jar URL for units loaded from a search-path archive.
type Type struct {
	Name      string
	Supertype string
	Features  []Feature
	SourceURL string
}

// Feature is a named attribute of a type.
type Feature struct {
	Name  string
	Range string
}

// Import references another descriptor unit, either by location
// (resolved relative to the importing unit) or by dotted name
// (resolved against the search path). Exactly one of the two is set.
type Import struct {
	Location string
	Name     string
}

// ParseError reports a malformed descriptor unit. Fatal: staleness
// cannot be decided without a fully parsed descriptor graph.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Source, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ResolutionError reports an import that could not be located. Fatal,
// like ParseError.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string { return fmt.Sprintf("resolve %s: %v", e.Ref, e.Err) }

func (e *ResolutionError) Unwrap() error { return e.Err }

type xmlDescriptor struct {
	XMLName xml.Name    `xml:"typeSystemDescription"`
	Name    string      `xml:"name"`
	Version string      `xml:"version"`
	Imports []xmlImport `xml:"imports>import"`
	Types   []xmlType   `xml:"types>typeDescription"`
}

type xmlImport struct {
	Location string `xml:"location,attr"`
	Name     string `xml:"name,attr"`
}

type xmlType struct {
	Name      string       `xml:"name"`
	Supertype string       `xml:"supertypeName"`
	Features  []xmlFeature `xml:"features>featureDescription"`
}

type xmlFeature struct {
	Name  string `xml:"name"`
	Range string `xml:"rangeTypeName"`
}

// Parse reads a single descriptor unit from r. Every parsed type is
// stamped with sourceURL as its provenance.
func Parse(r io.Reader, sourceURL string) (*TypeSystem, error) {
	var raw xmlDescriptor
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &ParseError{Source: sourceURL, Err: err}
	}
	ts := &TypeSystem{Name: raw.Name, Version: raw.Version}
	for _, imp := range raw.Imports {
		switch {
		case imp.Location != "" && imp.Name != "":
			return nil, &ParseError{Source: sourceURL, Err: fmt.Errorf("import carries both location %q and name %q", imp.Location, imp.Name)}
		case imp.Location == "" && imp.Name == "":
			return nil, &ParseError{Source: sourceURL, Err: errors.New("import carries neither location nor name")}
		}
		ts.Imports = append(ts.Imports, Import{Location: imp.Location, Name: imp.Name})
	}
	for _, t := range raw.Types {
		if t.Name == "" {
			return nil, &ParseError{Source: sourceURL, Err: errors.New("typeDescription without a name")}
		}
		typ := Type{Name: t.Name, Supertype: t.Supertype, SourceURL: sourceURL}
		for _, f := range t.Features {
			typ.Features = append(typ.Features, Feature{Name: f.Name, Range: f.Range})
		}
		ts.Types = append(ts.Types, typ)
	}
	return ts, nil
}

// URLToPath converts a provenance URL to a filesystem path. File URLs
// and bare paths convert; anything else (archive entries, remote
// schemes) reports false, which callers treat as unknown provenance.
func URLToPath(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme == "file" {
		if u.Opaque != "" || (u.Host != "" && u.Host != "localhost") || u.Path == "" {
			return "", false
		}
		return filepath.Clean(filepath.FromSlash(u.Path)), true
	}
	if hasScheme(raw) {
		return "", false
	}
	return filepath.Clean(filepath.FromSlash(raw)), true
}

// hasScheme reports whether raw begins with a URL scheme. Single
// letters are treated as drive prefixes, not schemes.
func hasScheme(raw string) bool {
	i := strings.IndexByte(raw, ':')
	if i <= 1 {
		return false
	}
	for j := 0; j < i; j++ {
		c := raw[j]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
