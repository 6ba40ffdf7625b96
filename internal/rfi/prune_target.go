package rfi

import (
	"path/filepath"
)

// Marker files of a build-output root.
const (
	cacheDirTag   = "CACHEDIR.TAG"
	rustcInfoFile = ".rustc_info.json"
)

// profileKeep are the only entries of a profile directory that survive.
var profileKeep = map[string]struct{}{
	"build":        {},
	".fingerprint": {},
	"deps":         {},
}

// PruneTargetDir removes compiled artifacts of packages that are no longer
// required from the build-output tree at dir. Subdirectories that are build
// roots themselves are pruned recursively; every other subdirectory is a
// profile directory. Stray files other than the cache tag are deleted.
func (s *Service) PruneTargetDir(dir string, pkgs Packages, checkStaleness bool) (*PruneReport, error) {
	p := s.newPruner()
	if err := p.pruneTargetDir(dir, pkgs, checkStaleness); err != nil {
		return nil, err
	}
	s.logger.Info("target dir pruned",
		"dir", dir,
		"removed_files", p.report.RemovedFiles,
		"removed_dirs", p.report.RemovedDirs,
	)
	return p.report, nil
}

func (p *pruner) pruneTargetDir(dir string, pkgs Packages, checkStaleness bool) error {
	ok, err := p.dirExists(dir)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundError("target dir", dir)
	}

	entries, err := p.readDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if e.Name() == cacheDirTag {
				continue
			}
			if err := p.remove(path, e); err != nil {
				return err
			}
			continue
		}

		nested, err := p.isBuildRoot(path)
		if err != nil {
			return err
		}
		if nested {
			p.logger.Debug("nested build root", "path", path)
			err = p.pruneTargetDir(path, pkgs, checkStaleness)
		} else {
			err = p.pruneProfileDir(path, pkgs, checkStaleness)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *pruner) isBuildRoot(dir string) (bool, error) {
	for _, marker := range []string{cacheDirTag, rustcInfoFile} {
		ok, err := p.exists(filepath.Join(dir, marker))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// pruneProfileDir prunes one profile directory such as debug or release.
func (p *pruner) pruneProfileDir(dir string, pkgs Packages, checkStaleness bool) error {
	if err := p.keepExcept(dir, profileKeep, false); err != nil {
		return err
	}

	names := pkgs.names()
	if err := p.keepExcept(filepath.Join(dir, "build"), names, checkStaleness); err != nil {
		return err
	}
	if err := p.keepExcept(filepath.Join(dir, ".fingerprint"), names, checkStaleness); err != nil {
		return err
	}
	return p.keepExcept(filepath.Join(dir, "deps"), pkgs.depsKeys(), checkStaleness)
}
