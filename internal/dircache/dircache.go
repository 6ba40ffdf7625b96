// Package dircache persists build directories between CI runs. Each cached
// directory has an alias, the name of its copy under the cache root, and a
// mountpoint, the path the build reads and writes.
package dircache

import (
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"rfi-go/internal/rfi"
)

// Step runs inside one mountpoint, e.g. restoring or dumping file metadata.
type Step func(dir string) error

// DirCache maps aliases under a cache root to mountpoints.
type DirCache struct {
	fs     afero.Fs
	path   string
	dirs   map[string]string
	logger rfi.Logger
}

// Option configures a DirCache.
type Option func(*DirCache)

// WithLogger sets the logger for copy progress.
func WithLogger(logger rfi.Logger) Option {
	return func(c *DirCache) {
		c.logger = logger
	}
}

// New creates a DirCache rooted at path. dirs maps alias to mountpoint and is
// copied.
func New(fsys afero.Fs, path string, dirs map[string]string, options ...Option) *DirCache {
	owned := make(map[string]string, len(dirs))
	for alias, dir := range dirs {
		owned[alias] = dir
	}
	c := &DirCache{
		fs:     fsys,
		path:   path,
		dirs:   owned,
		logger: rfi.NewNopLogger(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// AliasPath returns the cache-side directory of alias.
func (c *DirCache) AliasPath(alias string) string {
	return filepath.Join(c.path, alias)
}

// Aliases returns the configured aliases in sorted order.
func (c *DirCache) Aliases() []string {
	aliases := make([]string, 0, len(c.dirs))
	for alias := range c.dirs {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Mountpoint returns the mountpoint of alias.
func (c *DirCache) Mountpoint(alias string) (string, bool) {
	dir, ok := c.dirs[alias]
	return dir, ok
}

// Init creates the cache-side directory of every alias.
func (c *DirCache) Init() error {
	for _, alias := range c.Aliases() {
		if err := c.fs.MkdirAll(c.AliasPath(alias), 0o755); err != nil {
			return fmt.Errorf("creating cache directory for %s: %w", alias, err)
		}
	}
	return nil
}

// Restore copies every cached directory onto its mountpoint, then runs step
// in the mountpoint. Files already at the mountpoint are overwritten, others
// are left in place.
func (c *DirCache) Restore(step Step) error {
	for _, alias := range c.Aliases() {
		src, dst := c.AliasPath(alias), c.dirs[alias]
		ok, err := afero.DirExists(c.fs, src)
		if err != nil {
			return fmt.Errorf("checking cache directory for %s: %w", alias, err)
		}
		if !ok {
			c.logger.Info("no cached copy", "alias", alias)
			continue
		}

		n, err := c.copyTree(src, dst)
		if err != nil {
			return fmt.Errorf("restoring %s: %w", alias, err)
		}
		c.logger.Info("cache restored", "alias", alias, "dir", dst, "files", n)

		if step != nil {
			if err := step(dst); err != nil {
				return fmt.Errorf("restoring %s: %w", alias, err)
			}
		}
	}
	return nil
}

// Dump runs step in every mountpoint, then replaces each cached copy with the
// mountpoint's content. A missing mountpoint is skipped.
func (c *DirCache) Dump(step Step) error {
	for _, alias := range c.Aliases() {
		src, dst := c.dirs[alias], c.AliasPath(alias)
		ok, err := afero.DirExists(c.fs, src)
		if err != nil {
			return fmt.Errorf("checking %s: %w", src, err)
		}
		if !ok {
			c.logger.Warn("mountpoint missing, not cached", "alias", alias, "dir", src)
			continue
		}

		if step != nil {
			if err := step(src); err != nil {
				return fmt.Errorf("dumping %s: %w", alias, err)
			}
		}

		if err := c.fs.RemoveAll(dst); err != nil {
			return fmt.Errorf("clearing cache directory for %s: %w", alias, err)
		}
		n, err := c.copyTree(src, dst)
		if err != nil {
			return fmt.Errorf("dumping %s: %w", alias, err)
		}
		c.logger.Info("cache dumped", "alias", alias, "dir", src, "files", n)
	}
	return nil
}

// copyTree copies src into dst keeping permission bits and mtimes. Symlinks
// are recreated when the filesystem supports them and skipped otherwise.
// Returns the number of regular files copied.
func (c *DirCache) copyTree(src, dst string) (int, error) {
	var files int
	var dirs []string
	dirTimes := map[string]iofs.FileInfo{}

	err := afero.Walk(c.fs, src, func(path string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			if err := c.fs.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			dirs = append(dirs, target)
			dirTimes[target] = info
		case info.Mode()&iofs.ModeSymlink != 0:
			return c.copySymlink(path, target)
		case info.Mode().IsRegular():
			if err := c.copyFile(path, target, info); err != nil {
				return err
			}
			files++
		}
		return nil
	})
	if err != nil {
		return files, err
	}

	// Children first: creating entries updates the parent's mtime.
	for i := len(dirs) - 1; i >= 0; i-- {
		info := dirTimes[dirs[i]]
		if err := c.fs.Chmod(dirs[i], info.Mode().Perm()); err != nil {
			return files, fmt.Errorf("chmod %s: %w", dirs[i], err)
		}
		if err := c.fs.Chtimes(dirs[i], info.ModTime(), info.ModTime()); err != nil {
			return files, fmt.Errorf("setting times of %s: %w", dirs[i], err)
		}
	}
	return files, nil
}

func (c *DirCache) copyFile(src, dst string, info iofs.FileInfo) error {
	in, err := c.fs.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	if err := c.fs.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	out, err := c.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}

	if err := c.fs.Chmod(dst, info.Mode()&(iofs.ModePerm|iofs.ModeSetuid|iofs.ModeSetgid|iofs.ModeSticky)); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := c.fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("setting times of %s: %w", dst, err)
	}
	return nil
}

func (c *DirCache) copySymlink(src, dst string) error {
	linker, ok := c.fs.(afero.Symlinker)
	if !ok {
		c.logger.Debug("symlink skipped", "path", src)
		return nil
	}
	target, err := linker.ReadlinkIfPossible(src)
	if err != nil {
		return fmt.Errorf("reading link %s: %w", src, err)
	}
	if err := c.fs.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	if err := linker.SymlinkIfPossible(target, dst); err != nil {
		return fmt.Errorf("creating link %s: %w", dst, err)
	}
	return nil
}
