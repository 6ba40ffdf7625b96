// Package cargo obtains the package metadata document of a workspace, either
// by running the cargo binary or by reading a saved copy.
package cargo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/afero"

	"rfi-go/internal/rfi"
)

// DefaultBinary is the cargo executable looked up on PATH.
const DefaultBinary = "cargo"

// metadataArgs request every feature so optional dependencies are kept.
var metadataArgs = []string{"metadata", "--all-features", "--format-version", "1"}

// Runner executes name with args in dir and returns its standard output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Loader produces the package list the pruners keep.
type Loader struct {
	fs     afero.Fs
	binary string
	run    Runner
}

// Option configures a Loader.
type Option func(*Loader)

// WithBinary sets the cargo executable.
func WithBinary(binary string) Option {
	return func(l *Loader) {
		l.binary = binary
	}
}

// WithRunner replaces process execution, for tests.
func WithRunner(run Runner) Option {
	return func(l *Loader) {
		l.run = run
	}
}

// NewLoader creates a Loader reading metadata files from fsys.
func NewLoader(fsys afero.Fs, options ...Option) *Loader {
	l := &Loader{
		fs:     fsys,
		binary: DefaultBinary,
		run:    execRunner,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Packages returns the external packages of the workspace at projectRoot.
// When metadataFile is set the document is read from it; otherwise cargo
// metadata runs with projectRoot as working directory.
func (l *Loader) Packages(ctx context.Context, projectRoot, metadataFile string) (rfi.Packages, error) {
	var (
		meta *rfi.Metadata
		err  error
	)
	if metadataFile != "" {
		meta, err = l.readFile(metadataFile)
	} else {
		meta, err = l.runCargo(ctx, projectRoot)
	}
	if err != nil {
		return nil, err
	}
	return rfi.ResolvePackages(meta, projectRoot), nil
}

func (l *Loader) readFile(path string) (*rfi.Metadata, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()

	meta, err := rfi.DecodeMetadata(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return meta, nil
}

func (l *Loader) runCargo(ctx context.Context, projectRoot string) (*rfi.Metadata, error) {
	out, err := l.run(ctx, projectRoot, l.binary, metadataArgs...)
	if err != nil {
		return nil, fmt.Errorf("running %s metadata: %w", l.binary, err)
	}

	meta, err := rfi.DecodeMetadata(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("parsing %s metadata output: %w", l.binary, err)
	}
	return meta, nil
}

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
