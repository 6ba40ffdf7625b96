package fs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"rfi-go/internal/rfi"
)

// GitLister lists the files tracked in the git index, like `git ls-files`
// run from the root. Only entries below the root are returned, relative to it.
// Submodule entries are skipped; everything else in the index is listed even
// when it no longer exists in the worktree.
type GitLister struct{}

// NewGitLister creates a GitLister.
func NewGitLister() *GitLister {
	return &GitLister{}
}

func (l *GitLister) ListFiles(root string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", root, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("reading git index: %w", err)
	}

	repoRoot, err := canonical(worktree.Filesystem.Root())
	if err != nil {
		return nil, err
	}
	walkRoot, err := canonical(root)
	if err != nil {
		return nil, err
	}
	prefix, err := filepath.Rel(repoRoot, walkRoot)
	if err != nil {
		return nil, fmt.Errorf("relating %s to repository root: %w", root, err)
	}
	prefix = filepath.ToSlash(prefix)

	var files []string
	for _, entry := range idx.Entries {
		if entry.Mode == filemode.Submodule {
			continue
		}
		name := entry.Name
		if prefix != "." {
			if !strings.HasPrefix(name, prefix+"/") {
				continue
			}
			name = strings.TrimPrefix(name, prefix+"/")
		}
		files = append(files, filepath.FromSlash(name))
	}
	sort.Strings(files)
	return files, nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks of %s: %w", abs, err)
	}
	return resolved, nil
}

// Compile-time check that GitLister implements rfi.FileLister
var _ rfi.FileLister = (*GitLister)(nil)
