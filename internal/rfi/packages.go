package rfi

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Metadata is the subset of the `cargo metadata --format-version 1` document
// the pruners need.
type Metadata struct {
	Packages []MetadataPackage `json:"packages"`
}

// MetadataPackage is one package entry of the metadata document.
type MetadataPackage struct {
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	ManifestPath string           `json:"manifest_path"`
	Targets      []MetadataTarget `json:"targets"`
}

// MetadataTarget is one build target of a package.
type MetadataTarget struct {
	Kind []string `json:"kind"`
	Name string   `json:"name"`
}

// PackageDefinition is one external dependency of the project.
type PackageDefinition struct {
	Name        string
	Version     string
	ManifestDir string
	Targets     []string // lib and proc-macro target names only
}

// Packages is a bag of package definitions. Pruners only test membership, so
// order and duplicates carry no meaning.
type Packages []PackageDefinition

// artifactKinds are the target kinds that leave name-stemmed artifacts in deps.
var artifactKinds = map[string]bool{
	"lib":        true,
	"proc-macro": true,
}

// DecodeMetadata parses a metadata document.
func DecodeMetadata(r io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return nil, formatError("decoding package metadata", err)
	}
	return &meta, nil
}

// ResolvePackages converts a metadata document into the external packages of
// the project rooted at projectRoot. Packages whose manifest lives under the
// project root are workspace members and are left out.
func ResolvePackages(meta *Metadata, projectRoot string) Packages {
	var pkgs Packages
	for _, p := range meta.Packages {
		if isWithin(p.ManifestPath, projectRoot) {
			continue
		}

		var targets []string
		for _, t := range p.Targets {
			for _, kind := range t.Kind {
				if artifactKinds[kind] {
					targets = append(targets, t.Name)
					break
				}
			}
		}

		pkgs = append(pkgs, PackageDefinition{
			Name:        p.Name,
			Version:     p.Version,
			ManifestDir: filepath.Dir(p.ManifestPath),
			Targets:     targets,
		})
	}
	return pkgs
}

// isWithin reports whether path equals root or lies below it.
func isWithin(path, root string) bool {
	if root == "" {
		return false
	}
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// names is the keep-set of the build and .fingerprint directories.
func (p Packages) names() map[string]struct{} {
	keep := make(map[string]struct{}, len(p))
	for _, pkg := range p {
		keep[pkg.Name] = struct{}{}
	}
	return keep
}

// depsKeys is the keep-set of the deps directory: every package and target
// name with dashes normalized, both bare and with the lib prefix.
func (p Packages) depsKeys() map[string]struct{} {
	keep := make(map[string]struct{}, len(p)*4)
	for _, pkg := range p {
		for _, n := range append(append([]string{}, pkg.Targets...), pkg.Name) {
			name := strings.ReplaceAll(n, "-", "_")
			keep[name] = struct{}{}
			keep["lib"+name] = struct{}{}
		}
	}
	return keep
}

// archiveNames is the keep-set of the registry cache.
func (p Packages) archiveNames() map[string]struct{} {
	keep := make(map[string]struct{}, len(p))
	for _, pkg := range p {
		keep[fmt.Sprintf("%s-%s.crate", pkg.Name, pkg.Version)] = struct{}{}
	}
	return keep
}
