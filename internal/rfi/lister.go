package rfi

import (
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileLister enumerates the files a snapshot covers.
type FileLister interface {
	// ListFiles returns paths relative to root.
	ListFiles(root string) ([]string, error)
}

// Matcher decides whether a relative path is excluded from a snapshot.
type Matcher interface {
	Match(relativePath string) bool
}

// WalkLister lists every regular file below the root. Directories, symlinks
// and other special files are left out.
type WalkLister struct {
	fs afero.Fs
}

// NewWalkLister returns a lister walking fsys.
func NewWalkLister(fsys afero.Fs) *WalkLister {
	return &WalkLister{fs: fsys}
}

func (l *WalkLister) ListFiles(root string) ([]string, error) {
	var files []string
	err := afero.Walk(l.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, ioError("walking", root, err)
	}
	return files, nil
}

var _ FileLister = (*WalkLister)(nil)
