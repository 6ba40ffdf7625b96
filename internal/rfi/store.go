package rfi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"
)

// DefaultTableName is the attribute table written by Dump and read by Restore.
const DefaultTableName = "restore_file_info.csv"

// tableHeader is the on-disk column contract of the attribute table.
var tableHeader = []string{"file", "mtime_seconds", "mode", "hash"}

// AttributeStore reads and writes FileRecords as a CSV table.
type AttributeStore struct {
	fs   afero.Fs
	path string
}

// NewAttributeStore returns a store backed by the table at path.
func NewAttributeStore(fsys afero.Fs, path string) *AttributeStore {
	return &AttributeStore{fs: fsys, path: path}
}

// Path returns the location of the table.
func (s *AttributeStore) Path() string {
	return s.path
}

// Exists reports whether the table is present.
func (s *AttributeStore) Exists() (bool, error) {
	ok, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return false, ioError("stat", s.path, err)
	}
	return ok, nil
}

// Write replaces the table with records. A path listed more than once keeps
// its first position and the values of its last occurrence.
func (s *AttributeStore) Write(records []FileRecord) error {
	f, err := s.fs.Create(s.path)
	if err != nil {
		return ioError("creating", s.path, err)
	}
	defer f.Close()

	if err := encodeRecords(f, dedupe(records)); err != nil {
		return ioError("writing", s.path, err)
	}
	if err := f.Close(); err != nil {
		return ioError("closing", s.path, err)
	}
	return nil
}

// Read loads every record of the table.
func (s *AttributeStore) Read() ([]FileRecord, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, ioError("opening", s.path, err)
	}
	defer f.Close()

	records, err := decodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	return records, nil
}

func dedupe(records []FileRecord) []FileRecord {
	index := make(map[string]int, len(records))
	out := make([]FileRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.Path]; ok {
			out[i] = r
			continue
		}
		index[r.Path] = len(out)
		out = append(out, r)
	}
	return out
}

func encodeRecords(w io.Writer, records []FileRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Path,
			strconv.FormatInt(r.MtimeSeconds, 10),
			strconv.FormatUint(uint64(r.Mode), 10),
			r.Hash,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decodeRecords(r io.Reader) ([]FileRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(tableHeader)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, formatError("table has no header", err)
		}
		return nil, formatError("reading header", err)
	}
	for i, name := range tableHeader {
		if header[i] != name {
			return nil, formatError("unexpected header", fmt.Errorf("column %d is %q, want %q", i+1, header[i], name))
		}
	}

	var records []FileRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, formatError("reading row", err)
		}
		line, _ := cr.FieldPos(0)

		mtime, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, formatError(fmt.Sprintf("line %d: mtime_seconds", line), err)
		}
		mode, err := strconv.ParseUint(row[2], 10, 32)
		if err != nil {
			return nil, formatError(fmt.Sprintf("line %d: mode", line), err)
		}
		records = append(records, FileRecord{
			Path:         row[0],
			MtimeSeconds: mtime,
			Mode:         uint32(mode),
			Hash:         row[3],
		})
	}
	return records, nil
}
