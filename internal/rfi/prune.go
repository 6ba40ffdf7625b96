package rfi

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// StaleAfter is the age at which the staleness sweep deletes an entry.
const StaleAfter = 7 * 24 * time.Hour

// PruneReport summarizes a prune run.
type PruneReport struct {
	RemovedFiles int
	RemovedDirs  int
}

// Removed returns the total number of deleted entries.
func (r *PruneReport) Removed() int {
	return r.RemovedFiles + r.RemovedDirs
}

// pruner carries the state of one prune call: a single "now" so every
// staleness decision in the call uses the same reference point.
type pruner struct {
	fs     afero.Fs
	logger Logger
	now    time.Time
	report *PruneReport
}

func (s *Service) newPruner() *pruner {
	return &pruner{
		fs:     s.fs,
		logger: s.logger,
		now:    s.clock.Now(),
		report: &PruneReport{},
	}
}

// stripHash drops the trailing -<hash> of an artifact name. Only the last
// dash counts, so "my-weird-name-ff00" becomes "my-weird-name".
func stripHash(name string) string {
	if i := strings.LastIndex(name, "-"); i >= 0 {
		return name[:i]
	}
	return name
}

// isStale reports whether mtime is at least StaleAfter before now, at second
// resolution.
func isStale(mtime, now time.Time) bool {
	return now.Unix()-mtime.Unix() >= int64(StaleAfter/time.Second)
}

// keepExcept deletes every entry of dir whose hash-stripped name is not in
// keep. With checkStaleness the keep-set is ignored and entries are deleted
// by age instead. A missing dir is not an error.
func (p *pruner) keepExcept(dir string, keep map[string]struct{}, checkStaleness bool) error {
	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		if notExist(err) {
			return nil
		}
		return ioError("reading", dir, err)
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if checkStaleness {
			if isStale(e.ModTime(), p.now) {
				if err := p.remove(path, e); err != nil {
					return err
				}
			}
			continue
		}
		if _, ok := keep[stripHash(e.Name())]; !ok {
			if err := p.remove(path, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// remove deletes a directory recursively or a single file.
func (p *pruner) remove(path string, info fs.FileInfo) error {
	if info.IsDir() {
		if err := p.fs.RemoveAll(path); err != nil {
			return ioError("removing", path, err)
		}
		p.report.RemovedDirs++
	} else {
		if err := p.fs.Remove(path); err != nil {
			return ioError("removing", path, err)
		}
		p.report.RemovedFiles++
	}
	p.logger.Debug("removed", "path", path)
	return nil
}

// removeIfExists deletes path when present.
func (p *pruner) removeIfExists(path string) error {
	info, err := p.fs.Stat(path)
	if err != nil {
		if notExist(err) {
			return nil
		}
		return ioError("stat", path, err)
	}
	return p.remove(path, info)
}

func (p *pruner) readDir(dir string) ([]fs.FileInfo, error) {
	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return nil, ioError("reading", dir, err)
	}
	return entries, nil
}

func (p *pruner) dirExists(path string) (bool, error) {
	ok, err := afero.DirExists(p.fs, path)
	if err != nil {
		return false, ioError("stat", path, err)
	}
	return ok, nil
}

func (p *pruner) exists(path string) (bool, error) {
	ok, err := afero.Exists(p.fs, path)
	if err != nil {
		return false, ioError("stat", path, err)
	}
	return ok, nil
}
