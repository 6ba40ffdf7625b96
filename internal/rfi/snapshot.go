package rfi

import (
	"path/filepath"
)

// DumpOptions selects the files a snapshot covers.
type DumpOptions struct {
	// Lister enumerates candidate files. Nil walks the whole root.
	Lister FileLister

	// Exclude drops matching relative paths. The attribute table itself is
	// always excluded.
	Exclude Matcher
}

// Dump records mtime, mode and content fingerprint of every listed file and
// replaces the attribute table with the result. Any file that cannot be read
// aborts the dump before the table is touched.
func (s *Service) Dump(opts DumpOptions) ([]FileRecord, error) {
	lister := opts.Lister
	if lister == nil {
		lister = NewWalkLister(s.fs)
	}

	files, err := lister.ListFiles(s.root)
	if err != nil {
		return nil, err
	}

	fp := s.fingerprinter()
	records := make([]FileRecord, 0, len(files))
	for _, rel := range files {
		if rel == s.tableName {
			continue
		}
		if opts.Exclude != nil && opts.Exclude.Match(rel) {
			s.logger.Debug("file excluded", "path", rel)
			continue
		}

		record, err := s.recordFile(fp, rel)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := s.store().Write(records); err != nil {
		return nil, err
	}

	s.logger.Info("snapshot written", "table", s.TablePath(), "files", len(records))
	return records, nil
}

func (s *Service) recordFile(fp *Fingerprinter, rel string) (FileRecord, error) {
	path := filepath.Join(s.root, rel)

	info, err := s.fs.Stat(path)
	if err != nil {
		return FileRecord{}, ioError("stat", rel, err)
	}

	hash, err := fp.File(path)
	if err != nil {
		return FileRecord{}, ioError("fingerprinting", rel, err)
	}

	return FileRecord{
		Path:         rel,
		MtimeSeconds: info.ModTime().Unix(),
		Mode:         statMode(info),
		Hash:         hash,
	}, nil
}
