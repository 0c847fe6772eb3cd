package fsutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koksalmehmet/typesmith/internal/fsutil"
)

func TestExcludedEdgeCases(t *testing.T) {
	excludes := []string{
		".git/**",
		"**/.git/**",
		"**/.env",
		"**/*.bak",
		"",
	}

	cases := []struct {
		path string
		want bool
	}{
		{path: ".git/config", want: true},
		{path: filepath.Join("nested", ".git", "config"), want: true},
		{path: filepath.Join("config", ".env"), want: true},
		{path: filepath.Join("types", "old.bak"), want: true},
		{path: filepath.Join("types", "Token.xml"), want: false},
	}

	for _, tc := range cases {
		if got := fsutil.Excluded(tc.path, excludes); got != tc.want {
			t.Fatalf("Excluded(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestHashFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "a.xml")

	content := "<typeSystemDescription/>"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	hash, err := fsutil.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if hash == "" {
		t.Error("hash should not be empty")
	}

	path2 := filepath.Join(tmpDir, "b.xml")
	if err := os.WriteFile(path2, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	hash2, err := fsutil.HashFile(path2)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if hash != hash2 {
		t.Errorf("same content should produce same hash: got %s and %s", hash, hash2)
	}

	path3 := filepath.Join(tmpDir, "c.xml")
	if err := os.WriteFile(path3, []byte("<other/>"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	hash3, err := fsutil.HashFile(path3)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if hash == hash3 {
		t.Error("different content should produce different hash")
	}
}

func TestStatFileNotFound(t *testing.T) {
	_, err := fsutil.StatFile(filepath.Join(t.TempDir(), "missing.xml"))
	if !errors.Is(err, fsutil.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNormalizeModTime(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 987654321, time.Local)
	got := fsutil.NormalizeModTime(ts)
	if got.Nanosecond() != 0 {
		t.Fatalf("expected sub-second precision stripped, got %v", got)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", got.Location())
	}
}
