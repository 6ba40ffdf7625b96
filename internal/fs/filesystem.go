package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// NewOSFs returns the real filesystem every command operates on.
func NewOSFs() afero.Fs {
	return afero.NewOsFs()
}

// Resolve converts rawPath into a clean absolute path. The path need not exist;
// the prune operations report a missing root themselves.
func Resolve(rawPath string) (string, error) {
	if rawPath == "" {
		return "", errors.New("empty path")
	}
	absPath, err := filepath.Abs(ExpandHome(rawPath))
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	return absPath, nil
}

// ResolveDir resolves rawPath and checks that it names an existing directory.
func ResolveDir(fsys afero.Fs, rawPath string) (string, error) {
	absPath, err := Resolve(rawPath)
	if err != nil {
		return "", err
	}

	info, err := fsys.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", absPath)
	}
	return absPath, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !hasHomePrefix(path) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

func hasHomePrefix(path string) bool {
	return len(path) >= 2 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator)
}

func isNotExist(err error) bool {
	return errors.Is(err, iofs.ErrNotExist)
}
