package rfi

import (
	"path/filepath"
	"time"
)

// RestoreOptions tunes Restore.
type RestoreOptions struct {
	// SkipMissing treats a recorded file that no longer exists as skipped
	// instead of failing the restore.
	SkipMissing bool
}

// RestoreReport summarizes a restore run.
type RestoreReport struct {
	TableMissing bool
	Restored     int // mtime and mode reapplied
	Skipped      int // content changed since the dump
	Missing      int // file gone, only with SkipMissing
}

// Restore reapplies recorded mtime and mode to every file whose content still
// matches its recorded fingerprint. A missing table is a cache miss, not an
// error: the report says so and nothing on disk is touched.
func (s *Service) Restore(opts RestoreOptions) (*RestoreReport, error) {
	store := s.store()
	report := &RestoreReport{}

	exists, err := store.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		s.logger.Info("attribute table not found, nothing to restore", "table", store.Path())
		report.TableMissing = true
		return report, nil
	}

	records, err := store.Read()
	if err != nil {
		return nil, err
	}

	fp := s.fingerprinter()
	for _, r := range records {
		path := filepath.Join(s.root, r.Path)

		hash, err := fp.File(path)
		if err != nil {
			if notExist(err) && opts.SkipMissing {
				s.logger.Warn("recorded file missing", "path", r.Path)
				report.Missing++
				continue
			}
			return nil, ioError("fingerprinting", r.Path, err)
		}

		if hash != r.Hash {
			s.logger.Debug("content changed, keeping current attributes", "path", r.Path)
			report.Skipped++
			continue
		}

		if err := s.applyRecord(path, r); err != nil {
			return nil, err
		}
		report.Restored++
	}

	s.logger.Info("restore complete",
		"restored", report.Restored,
		"skipped", report.Skipped,
		"missing", report.Missing,
	)
	return report, nil
}

// applyRecord sets the recorded mtime (atime follows it, as touch -d does)
// and the recorded permission bits.
func (s *Service) applyRecord(path string, r FileRecord) error {
	mtime := time.Unix(r.MtimeSeconds, 0)
	if err := s.fs.Chtimes(path, mtime, mtime); err != nil {
		return ioError("setting mtime of", r.Path, err)
	}
	if err := s.fs.Chmod(path, permissionMode(r.Mode)); err != nil {
		return ioError("setting mode of", r.Path, err)
	}
	return nil
}
