package testutil

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// WriteFiles creates every file of files (path -> content) on fsys, creating
// parent directories as needed.
func WriteFiles(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()

	for path, content := range files {
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", path, err)
		}
		if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
}

// MkdirAll creates each directory in dirs.
func MkdirAll(t *testing.T, fsys afero.Fs, dirs ...string) {
	t.Helper()

	for _, dir := range dirs {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
}

// SetMtime sets both atime and mtime of path.
func SetMtime(t *testing.T, fsys afero.Fs, path string, mtime time.Time) {
	t.Helper()

	if err := fsys.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting mtime of %s: %v", path, err)
	}
}

// AssertExists fails the test if any of paths is absent.
func AssertExists(t *testing.T, fsys afero.Fs, paths ...string) {
	t.Helper()

	for _, path := range paths {
		ok, err := afero.Exists(fsys, path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if !ok {
			t.Errorf("expected %s to exist", path)
		}
	}
}

// AssertMissing fails the test if any of paths is present.
func AssertMissing(t *testing.T, fsys afero.Fs, paths ...string) {
	t.Helper()

	for _, path := range paths {
		ok, err := afero.Exists(fsys, path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if ok {
			t.Errorf("expected %s to be removed", path)
		}
	}
}

// ListNames returns the sorted entry names of dir.
func ListNames(t *testing.T, fsys afero.Fs, dir string) []string {
	t.Helper()

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names
}
