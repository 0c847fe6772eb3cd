package descriptor

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// unitXML builds a minimal descriptor with the given import elements
// and type names.
func unitXML(imports []string, typeNames ...string) string {
	var b strings.Builder
	b.WriteString(`<typeSystemDescription><name>test</name>`)
	if len(imports) > 0 {
		b.WriteString("<imports>")
		for _, imp := range imports {
			b.WriteString(imp)
		}
		b.WriteString("</imports>")
	}
	if len(typeNames) > 0 {
		b.WriteString("<types>")
		for _, name := range typeNames {
			b.WriteString("<typeDescription><name>" + name + "</name></typeDescription>")
		}
		b.WriteString("</types>")
	}
	b.WriteString("</typeSystemDescription>")
	return b.String()
}

func writeUnit(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for name, body := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
}

func typeNames(ts *TypeSystem) []string {
	names := make([]string, 0, len(ts.Types))
	for _, typ := range ts.Types {
		names = append(names, typ.Name)
	}
	return names
}

func TestResolveTransitive(t *testing.T) {
	dir := t.TempDir()
	searchRoot := filepath.Join(dir, "search")

	writeUnit(t, filepath.Join(dir, "root.xml"),
		unitXML([]string{`<import location="shared/b.xml"/>`}, "org.example.A"))
	writeUnit(t, filepath.Join(dir, "shared", "b.xml"),
		unitXML([]string{`<import name="org.example.C"/>`}, "org.example.B"))
	writeUnit(t, filepath.Join(searchRoot, "org", "example", "C.xml"),
		unitXML(nil, "org.example.C"))

	ts, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"), []string{searchRoot})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got := typeNames(ts)
	want := []string{"org.example.A", "org.example.B", "org.example.C"}
	if len(got) != len(want) {
		t.Fatalf("expected types %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected types %v, got %v", want, got)
		}
	}

	// Provenance converts back to the declaring file on disk.
	p, ok := URLToPath(ts.Types[1].SourceURL)
	if !ok {
		t.Fatalf("expected file provenance, got %q", ts.Types[1].SourceURL)
	}
	if p != filepath.Join(dir, "shared", "b.xml") {
		t.Errorf("expected provenance %s, got %s", filepath.Join(dir, "shared", "b.xml"), p)
	}
}

func TestResolveDiamondImportOnce(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, filepath.Join(dir, "root.xml"),
		unitXML([]string{`<import location="b.xml"/>`, `<import location="c.xml"/>`}, "A"))
	writeUnit(t, filepath.Join(dir, "b.xml"),
		unitXML([]string{`<import location="d.xml"/>`}, "B"))
	writeUnit(t, filepath.Join(dir, "c.xml"),
		unitXML([]string{`<import location="d.xml"/>`}, "C"))
	writeUnit(t, filepath.Join(dir, "d.xml"), unitXML(nil, "D"))

	ts, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"), nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got := typeNames(ts)
	want := []string{"A", "B", "D", "C"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected types %v, got %v", want, got)
	}
}

func TestResolveImportCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, filepath.Join(dir, "a.xml"), unitXML([]string{`<import location="b.xml"/>`}, "A"))
	writeUnit(t, filepath.Join(dir, "b.xml"), unitXML([]string{`<import location="a.xml"/>`}, "B"))

	ts, err := PathResolver{}.Resolve(filepath.Join(dir, "a.xml"), nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got := typeNames(ts)
	if strings.Join(got, ",") != "A,B" {
		t.Errorf("expected each unit once, got %v", got)
	}
}

func TestResolveSearchPathOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	writeUnit(t, filepath.Join(first, "org", "example", "S.xml"), unitXML(nil, "first.Match"))
	writeUnit(t, filepath.Join(second, "org", "example", "S.xml"), unitXML(nil, "second.Match"))
	writeUnit(t, filepath.Join(dir, "root.xml"),
		unitXML([]string{`<import name="org.example.S"/>`}, "Root"))

	ts, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"), []string{first, second})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got := typeNames(ts)
	if strings.Join(got, ",") != "Root,first.Match" {
		t.Errorf("expected the first search-path entry to win, got %v", got)
	}
}

func TestResolveArchiveImport(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "types.jar")
	writeArchive(t, jar, map[string]string{
		"org/example/Ext.xml":  unitXML([]string{`<import location="Base.xml"/>`}, "org.example.Ext"),
		"org/example/Base.xml": unitXML(nil, "org.example.Base"),
	})
	writeUnit(t, filepath.Join(dir, "root.xml"),
		unitXML([]string{`<import name="org.example.Ext"/>`}, "org.example.Root"))

	ts, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"), []string{jar})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got := typeNames(ts)
	want := "org.example.Root,org.example.Ext,org.example.Base"
	if strings.Join(got, ",") != want {
		t.Fatalf("expected types %s, got %v", want, got)
	}

	ext := ts.Types[1]
	if !strings.HasPrefix(ext.SourceURL, "jar:file://") || !strings.HasSuffix(ext.SourceURL, "!/org/example/Ext.xml") {
		t.Errorf("unexpected archive provenance %q", ext.SourceURL)
	}
	if _, ok := URLToPath(ext.SourceURL); ok {
		t.Error("expected archive provenance to not convert to a path")
	}
	base := ts.Types[2]
	if !strings.HasSuffix(base.SourceURL, "!/org/example/Base.xml") {
		t.Errorf("expected sibling entry provenance, got %q", base.SourceURL)
	}
}

func TestResolveErrors(t *testing.T) {
	t.Run("missing root descriptor", func(t *testing.T) {
		_, err := PathResolver{}.Resolve(filepath.Join(t.TempDir(), "absent.xml"), nil)
		var re *ResolutionError
		if !errors.As(err, &re) {
			t.Fatalf("expected ResolutionError, got %v", err)
		}
	})

	t.Run("unresolvable name import", func(t *testing.T) {
		dir := t.TempDir()
		writeUnit(t, filepath.Join(dir, "root.xml"),
			unitXML([]string{`<import name="org.example.Missing"/>`}, "Root"))

		_, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"),
			[]string{filepath.Join(dir, "search"), filepath.Join(dir, "gone")})
		var re *ResolutionError
		if !errors.As(err, &re) {
			t.Fatalf("expected ResolutionError, got %v", err)
		}
		if re.Ref != "org.example.Missing" {
			t.Errorf("expected error to carry the dotted name, got %q", re.Ref)
		}
	})

	t.Run("missing location import", func(t *testing.T) {
		dir := t.TempDir()
		writeUnit(t, filepath.Join(dir, "root.xml"),
			unitXML([]string{`<import location="gone.xml"/>`}, "Root"))

		_, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"), nil)
		var re *ResolutionError
		if !errors.As(err, &re) {
			t.Fatalf("expected ResolutionError, got %v", err)
		}
	})

	t.Run("unsupported location scheme", func(t *testing.T) {
		dir := t.TempDir()
		writeUnit(t, filepath.Join(dir, "root.xml"),
			unitXML([]string{`<import location="https://example.org/x.xml"/>`}, "Root"))

		_, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"), nil)
		var re *ResolutionError
		if !errors.As(err, &re) {
			t.Fatalf("expected ResolutionError, got %v", err)
		}
		if re.Ref != "https://example.org/x.xml" {
			t.Errorf("expected error to carry the location, got %q", re.Ref)
		}
	})

	t.Run("malformed imported unit is a parse error", func(t *testing.T) {
		dir := t.TempDir()
		writeUnit(t, filepath.Join(dir, "root.xml"),
			unitXML([]string{`<import location="bad.xml"/>`}, "Root"))
		writeUnit(t, filepath.Join(dir, "bad.xml"), "<typeSystemDescription><types>")

		_, err := PathResolver{}.Resolve(filepath.Join(dir, "root.xml"), nil)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError, got %v", err)
		}
		if !strings.HasSuffix(pe.Source, "/bad.xml") {
			t.Errorf("expected error to carry the imported unit, got %q", pe.Source)
		}
	})
}
