package rfi

import (
	"path/filepath"
)

// PruneRegistry bounds the package registry at dir to what the current
// packages need. Extracted sources are always dropped; git index checkouts
// lose their derived .cache; with pruneArchives every downloaded archive that
// no package references is deleted.
func (s *Service) PruneRegistry(dir string, pkgs Packages, pruneArchives bool) (*PruneReport, error) {
	p := s.newPruner()
	if err := p.pruneRegistry(dir, pkgs, pruneArchives); err != nil {
		return nil, err
	}
	s.logger.Info("registry pruned",
		"dir", dir,
		"archives", pruneArchives,
		"removed_files", p.report.RemovedFiles,
		"removed_dirs", p.report.RemovedDirs,
	)
	return p.report, nil
}

func (p *pruner) pruneRegistry(dir string, pkgs Packages, pruneArchives bool) error {
	ok, err := p.dirExists(dir)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundError("registry dir", dir)
	}

	// src is re-extracted from the cached archives on demand.
	if err := p.removeIfExists(filepath.Join(dir, "src")); err != nil {
		return err
	}

	if err := p.pruneIndex(filepath.Join(dir, "index")); err != nil {
		return err
	}

	if !pruneArchives {
		return nil
	}
	return p.pruneArchives(filepath.Join(dir, "cache"), pkgs.archiveNames())
}

// pruneIndex drops .cache of every git-backed index, e.g.
// index/github.com-1ecc6299db9ec823; the cache is rebuilt from the git data.
func (p *pruner) pruneIndex(indexDir string) error {
	ok, err := p.dirExists(indexDir)
	if err != nil || !ok {
		return err
	}

	entries, err := p.readDir(indexDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		source := filepath.Join(indexDir, e.Name())
		isGit, err := p.exists(filepath.Join(source, ".git"))
		if err != nil {
			return err
		}
		if !isGit {
			continue
		}
		if err := p.removeIfExists(filepath.Join(source, ".cache")); err != nil {
			return err
		}
	}
	return nil
}

// pruneArchives deletes files in cache/<source>/ not named in keep.
func (p *pruner) pruneArchives(cacheDir string, keep map[string]struct{}) error {
	ok, err := p.dirExists(cacheDir)
	if err != nil || !ok {
		return err
	}

	sources, err := p.readDir(cacheDir)
	if err != nil {
		return err
	}
	for _, source := range sources {
		if !source.IsDir() {
			continue
		}
		sourceDir := filepath.Join(cacheDir, source.Name())
		entries, err := p.readDir(sourceDir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.Mode().IsRegular() {
				continue
			}
			if _, ok := keep[e.Name()]; ok {
				continue
			}
			if err := p.remove(filepath.Join(sourceDir, e.Name()), e); err != nil {
				return err
			}
		}
	}
	return nil
}
