package rfi

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/afero"

	"rfi-go/internal/testutil"
)

var (
	dumpTime   = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	unpackTime = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	editTime   = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	workRoot   = "/work"
	workFiles  = map[string]string{
		"/work/Cargo.toml":          "[package]\nname = \"app\"\n",
		"/work/src/main.rs":         "fn main() {}\n",
		"/work/target/debug/app.d":  "deps\n",
		"/work/target/CACHEDIR.TAG": "Signature: 8a477f597d28d172789f06886806bc55\n",
	}
)

// staticLister returns a fixed list of relative paths.
type staticLister []string

func (l staticLister) ListFiles(string) ([]string, error) { return l, nil }

// prefixMatcher excludes paths starting with any of its prefixes.
type prefixMatcher []string

func (m prefixMatcher) Match(rel string) bool {
	for _, p := range m {
		if len(rel) >= len(p) && rel[:len(p)] == p {
			return true
		}
	}
	return false
}

func newWorkspace(t *testing.T) (afero.Fs, *Service) {
	t.Helper()

	memFs := afero.NewMemMapFs()
	testutil.WriteFiles(t, memFs, workFiles)
	for path := range workFiles {
		testutil.SetMtime(t, memFs, path, dumpTime)
	}
	return memFs, NewService(memFs, workRoot)
}

func TestService_Dump(t *testing.T) {
	t.Run("records every file below the root", func(t *testing.T) {
		memFs, svc := newWorkspace(t)
		if err := memFs.Chmod("/work/src/main.rs", 0o755); err != nil {
			t.Fatalf("chmod: %v", err)
		}

		records, err := svc.Dump(DumpOptions{})
		if err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		if len(records) != len(workFiles) {
			t.Fatalf("len(records) = %d, want %d: %s", len(records), len(workFiles), spew.Sdump(records))
		}

		byPath := make(map[string]FileRecord)
		for _, r := range records {
			byPath[r.Path] = r
		}
		rec, ok := byPath[filepath.Join("src", "main.rs")]
		if !ok {
			t.Fatalf("src/main.rs not recorded: %s", spew.Sdump(records))
		}
		if rec.MtimeSeconds != dumpTime.Unix() {
			t.Errorf("MtimeSeconds = %d, want %d", rec.MtimeSeconds, dumpTime.Unix())
		}
		if rec.Mode != 0o100755 {
			t.Errorf("Mode = %o, want %o", rec.Mode, 0o100755)
		}
		want, _ := NewFingerprinter(memFs, nil).File("/work/src/main.rs")
		if rec.Hash != want {
			t.Errorf("Hash = %q, want %q", rec.Hash, want)
		}

		stored, err := NewAttributeStore(memFs, svc.TablePath()).Read()
		if err != nil {
			t.Fatalf("reading table: %v", err)
		}
		if len(stored) != len(records) {
			t.Errorf("table has %d rows, want %d", len(stored), len(records))
		}
	})

	t.Run("leaves the table itself out", func(t *testing.T) {
		_, svc := newWorkspace(t)

		if _, err := svc.Dump(DumpOptions{}); err != nil {
			t.Fatalf("first Dump() error = %v", err)
		}
		records, err := svc.Dump(DumpOptions{})
		if err != nil {
			t.Fatalf("second Dump() error = %v", err)
		}
		for _, r := range records {
			if r.Path == DefaultTableName {
				t.Errorf("table recorded in itself")
			}
		}
	})

	t.Run("applies exclusions", func(t *testing.T) {
		_, svc := newWorkspace(t)

		records, err := svc.Dump(DumpOptions{Exclude: prefixMatcher{"target"}})
		if err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		if len(records) != 2 {
			t.Errorf("len(records) = %d, want 2: %s", len(records), spew.Sdump(records))
		}
	})

	t.Run("uses the given lister", func(t *testing.T) {
		_, svc := newWorkspace(t)

		records, err := svc.Dump(DumpOptions{Lister: staticLister{"Cargo.toml"}})
		if err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		if len(records) != 1 || records[0].Path != "Cargo.toml" {
			t.Errorf("records = %s, want only Cargo.toml", spew.Sdump(records))
		}
	})

	t.Run("unreadable file aborts without writing the table", func(t *testing.T) {
		memFs, svc := newWorkspace(t)

		_, err := svc.Dump(DumpOptions{Lister: staticLister{"Cargo.toml", "gone.rs"}})
		if !errors.Is(err, ErrIO) {
			t.Fatalf("Dump() error = %v, want ErrIO", err)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Dump() error = %v, want fs.ErrNotExist underneath", err)
		}
		testutil.AssertMissing(t, memFs, svc.TablePath())
	})
}

func TestService_Restore(t *testing.T) {
	t.Run("round trip reproduces mtime and mode", func(t *testing.T) {
		memFs, svc := newWorkspace(t)
		if err := memFs.Chmod("/work/src/main.rs", 0o750); err != nil {
			t.Fatalf("chmod: %v", err)
		}
		if _, err := svc.Dump(DumpOptions{}); err != nil {
			t.Fatalf("Dump() error = %v", err)
		}

		// Simulate a naive copy: same bytes, fresh mtime, default mode.
		for path := range workFiles {
			testutil.SetMtime(t, memFs, path, unpackTime)
		}
		if err := memFs.Chmod("/work/src/main.rs", 0o644); err != nil {
			t.Fatalf("chmod: %v", err)
		}

		report, err := svc.Restore(RestoreOptions{})
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if report.Restored != len(workFiles) || report.Skipped != 0 {
			t.Errorf("report = %+v, want %d restored", report, len(workFiles))
		}

		for path := range workFiles {
			info, err := memFs.Stat(path)
			if err != nil {
				t.Fatalf("stat %s: %v", path, err)
			}
			if info.ModTime().Unix() != dumpTime.Unix() {
				t.Errorf("%s mtime = %v, want %v", path, info.ModTime(), dumpTime)
			}
		}
		info, _ := memFs.Stat("/work/src/main.rs")
		if info.Mode().Perm() != 0o750 {
			t.Errorf("mode = %v, want %v", info.Mode().Perm(), fs.FileMode(0o750))
		}
	})

	t.Run("changed content keeps current attributes", func(t *testing.T) {
		memFs, svc := newWorkspace(t)
		if _, err := svc.Dump(DumpOptions{}); err != nil {
			t.Fatalf("Dump() error = %v", err)
		}

		if err := afero.WriteFile(memFs, "/work/src/main.rs", []byte("fn main() { edited(); }\n"), 0o644); err != nil {
			t.Fatalf("editing file: %v", err)
		}
		if err := memFs.Chmod("/work/src/main.rs", 0o600); err != nil {
			t.Fatalf("chmod: %v", err)
		}
		testutil.SetMtime(t, memFs, "/work/src/main.rs", editTime)

		report, err := svc.Restore(RestoreOptions{})
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if report.Skipped != 1 {
			t.Errorf("Skipped = %d, want 1", report.Skipped)
		}
		if report.Restored != len(workFiles)-1 {
			t.Errorf("Restored = %d, want %d", report.Restored, len(workFiles)-1)
		}

		info, err := memFs.Stat("/work/src/main.rs")
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.ModTime().Unix() != editTime.Unix() {
			t.Errorf("mtime = %v, want untouched %v", info.ModTime(), editTime)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("mode = %v, want untouched 0600", info.Mode().Perm())
		}
	})

	t.Run("missing table is a no-op", func(t *testing.T) {
		memFs, svc := newWorkspace(t)
		testutil.SetMtime(t, memFs, "/work/Cargo.toml", unpackTime)

		report, err := svc.Restore(RestoreOptions{})
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if !report.TableMissing {
			t.Error("TableMissing = false, want true")
		}
		if report.Restored+report.Skipped+report.Missing != 0 {
			t.Errorf("report = %+v, want no file touched", report)
		}

		info, _ := memFs.Stat("/work/Cargo.toml")
		if info.ModTime().Unix() != unpackTime.Unix() {
			t.Errorf("mtime changed to %v", info.ModTime())
		}
		testutil.AssertMissing(t, memFs, svc.TablePath())
	})

	t.Run("missing file is fatal by default", func(t *testing.T) {
		memFs, svc := newWorkspace(t)
		if _, err := svc.Dump(DumpOptions{}); err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		if err := memFs.Remove("/work/Cargo.toml"); err != nil {
			t.Fatalf("remove: %v", err)
		}

		_, err := svc.Restore(RestoreOptions{})
		if !errors.Is(err, ErrIO) || !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Restore() error = %v, want ErrIO wrapping fs.ErrNotExist", err)
		}
	})

	t.Run("missing file is counted with SkipMissing", func(t *testing.T) {
		memFs, svc := newWorkspace(t)
		if _, err := svc.Dump(DumpOptions{}); err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		if err := memFs.Remove("/work/Cargo.toml"); err != nil {
			t.Fatalf("remove: %v", err)
		}

		report, err := svc.Restore(RestoreOptions{SkipMissing: true})
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if report.Missing != 1 || report.Restored != len(workFiles)-1 {
			t.Errorf("report = %+v, want 1 missing and %d restored", report, len(workFiles)-1)
		}
	})

	t.Run("malformed table is a format error", func(t *testing.T) {
		memFs, svc := newWorkspace(t)
		if err := afero.WriteFile(memFs, svc.TablePath(), []byte("garbage\n"), 0o644); err != nil {
			t.Fatalf("writing table: %v", err)
		}

		_, err := svc.Restore(RestoreOptions{})
		if !errors.Is(err, ErrFormat) {
			t.Errorf("Restore() error = %v, want ErrFormat", err)
		}
	})
}

func TestPermissionMode(t *testing.T) {
	tests := []struct {
		mode uint32
		want fs.FileMode
	}{
		{0o100644, 0o644},
		{0o100755, 0o755},
		{0o104755, 0o755 | fs.ModeSetuid},
		{0o102750, 0o750 | fs.ModeSetgid},
		{0o041777, 0o777 | fs.ModeSticky},
	}
	for _, tt := range tests {
		if got := permissionMode(tt.mode); got != tt.want {
			t.Errorf("permissionMode(%o) = %v, want %v", tt.mode, got, tt.want)
		}
		if got := posixMode(tt.want) & 0o7777; got != tt.mode&0o7777 {
			t.Errorf("posixMode(%v) perm bits = %o, want %o", tt.want, got, tt.mode&0o7777)
		}
	}
}
