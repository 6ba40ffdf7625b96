package rfi

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

const metadataDoc = `{
  "packages": [
    {
      "name": "app",
      "version": "0.1.0",
      "manifest_path": "/project/Cargo.toml",
      "targets": [{"kind": ["bin"], "name": "app"}]
    },
    {
      "name": "app-core",
      "version": "0.1.0",
      "manifest_path": "/project/crates/core/Cargo.toml",
      "targets": [{"kind": ["lib"], "name": "app_core"}]
    },
    {
      "name": "serde_derive",
      "version": "1.0.190",
      "manifest_path": "/root/.cargo/registry/src/index.crates.io-6f17d22bba15001f/serde_derive-1.0.190/Cargo.toml",
      "targets": [
        {"kind": ["proc-macro"], "name": "serde_derive"},
        {"kind": ["test"], "name": "compiletest"}
      ]
    },
    {
      "name": "proc-macro2",
      "version": "1.0.69",
      "manifest_path": "/root/.cargo/registry/src/index.crates.io-6f17d22bba15001f/proc-macro2-1.0.69/Cargo.toml",
      "targets": [
        {"kind": ["custom-build"], "name": "build-script-build"},
        {"kind": ["lib"], "name": "proc-macro2"},
        {"kind": ["example"], "name": "demo"},
        {"kind": ["bin"], "name": "tool"}
      ]
    },
    {
      "name": "libc",
      "version": "0.2.149",
      "manifest_path": "/project2/vendor/libc/Cargo.toml",
      "targets": [{"kind": ["lib", "rlib", "dylib"], "name": "libc"}]
    }
  ]
}`

func TestResolvePackages(t *testing.T) {
	meta, err := DecodeMetadata(strings.NewReader(metadataDoc))
	if err != nil {
		t.Fatalf("DecodeMetadata() error = %v", err)
	}

	pkgs := ResolvePackages(meta, "/project")

	t.Run("drops workspace members", func(t *testing.T) {
		for _, p := range pkgs {
			if p.Name == "app" || p.Name == "app-core" {
				t.Errorf("workspace package %q resolved as external", p.Name)
			}
		}
		if len(pkgs) != 3 {
			t.Fatalf("len(pkgs) = %d, want 3: %s", len(pkgs), spew.Sdump(pkgs))
		}
	})

	t.Run("keeps input order", func(t *testing.T) {
		want := []string{"serde_derive", "proc-macro2", "libc"}
		for i, name := range want {
			if pkgs[i].Name != name {
				t.Errorf("pkgs[%d].Name = %q, want %q", i, pkgs[i].Name, name)
			}
		}
	})

	t.Run("keeps only lib and proc-macro targets", func(t *testing.T) {
		tests := map[string][]string{
			"serde_derive": {"serde_derive"},
			"proc-macro2":  {"proc-macro2"},
			"libc":         {"libc"},
		}
		for _, p := range pkgs {
			want := tests[p.Name]
			if strings.Join(p.Targets, ",") != strings.Join(want, ",") {
				t.Errorf("%s targets = %v, want %v", p.Name, p.Targets, want)
			}
		}
	})

	t.Run("manifest dir is the manifest's parent", func(t *testing.T) {
		want := "/root/.cargo/registry/src/index.crates.io-6f17d22bba15001f/proc-macro2-1.0.69"
		if pkgs[1].ManifestDir != want {
			t.Errorf("ManifestDir = %q, want %q", pkgs[1].ManifestDir, want)
		}
		if pkgs[1].Version != "1.0.69" {
			t.Errorf("Version = %q, want %q", pkgs[1].Version, "1.0.69")
		}
	})

	t.Run("sibling directory with shared prefix is not the workspace", func(t *testing.T) {
		if pkgs[2].Name != "libc" {
			t.Errorf("package under /project2 was treated as workspace-local")
		}
	})
}

func TestResolvePackages_Duplicates(t *testing.T) {
	meta := &Metadata{Packages: []MetadataPackage{
		{Name: "syn", Version: "1.0.109", ManifestPath: "/reg/syn-1.0.109/Cargo.toml"},
		{Name: "syn", Version: "2.0.38", ManifestPath: "/reg/syn-2.0.38/Cargo.toml"},
		{Name: "syn", Version: "2.0.38", ManifestPath: "/reg/syn-2.0.38/Cargo.toml"},
	}}

	pkgs := ResolvePackages(meta, "/project")
	if len(pkgs) != 3 {
		t.Errorf("len(pkgs) = %d, want 3 (duplicates preserved)", len(pkgs))
	}
}

func TestDecodeMetadata_Malformed(t *testing.T) {
	_, err := DecodeMetadata(strings.NewReader(`{"packages": [`))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("DecodeMetadata() error = %v, want ErrFormat", err)
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		path string
		root string
		want bool
	}{
		{"/project/Cargo.toml", "/project", true},
		{"/project/crates/a/Cargo.toml", "/project/", true},
		{"/project2/Cargo.toml", "/project", false},
		{"/other/Cargo.toml", "/project", false},
		{"/anything/Cargo.toml", "/", true},
		{"/project/Cargo.toml", "", false},
	}
	for _, tt := range tests {
		if got := isWithin(tt.path, tt.root); got != tt.want {
			t.Errorf("isWithin(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}

func TestPackages_DepsKeys(t *testing.T) {
	t.Run("package without targets contributes its own name", func(t *testing.T) {
		pkgs := Packages{{Name: "proc-macro2", Version: "1.0.69"}}

		got := sortedKeys(pkgs.depsKeys())
		want := []string{"libproc_macro2", "proc_macro2"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("depsKeys() = %v, want %v", got, want)
		}
	})

	t.Run("targets are normalized too", func(t *testing.T) {
		pkgs := Packages{{Name: "tokio-macros", Targets: []string{"tokio-macros", "extra-lib"}}}

		got := sortedKeys(pkgs.depsKeys())
		want := []string{"extra_lib", "libextra_lib", "libtokio_macros", "tokio_macros"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("depsKeys() = %v, want %v", got, want)
		}
	})
}

func TestPackages_ArchiveNames(t *testing.T) {
	pkgs := Packages{{Name: "serde", Version: "1.0.190"}, {Name: "libc", Version: "0.2.149"}}

	got := sortedKeys(pkgs.archiveNames())
	want := []string{"libc-0.2.149.crate", "serde-1.0.190.crate"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("archiveNames() = %v, want %v", got, want)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
