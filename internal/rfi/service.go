package rfi

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// Service runs the snapshot, restore and prune operations against one
// filesystem. Snapshot and restore are relative to the working root; prune
// operations take their directories explicitly.
type Service struct {
	fs        afero.Fs
	root      string
	tableName string
	hashFunc  HashFunc
	logger    Logger
	clock     Clock
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for progress and deletion messages.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the clock used by staleness checks.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithHashFunc sets the content fingerprint hash. The default is xxHash64.
//
// Note: changing the hash makes every record of an existing table mismatch,
// so the next restore skips all files.
func WithHashFunc(hashFunc HashFunc) Option {
	return func(s *Service) {
		s.hashFunc = hashFunc
	}
}

// WithTableName sets the file name of the attribute table inside the root.
func WithTableName(name string) Option {
	return func(s *Service) {
		s.tableName = name
	}
}

// NewService creates a Service operating on fsys with root as working root.
func NewService(fsys afero.Fs, root string, options ...Option) *Service {
	s := &Service{
		fs:        fsys,
		root:      root,
		tableName: DefaultTableName,
		hashFunc:  defaultHashFunc,
		logger:    NewNopLogger(),
		clock:     RealClock{},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Root returns the working root of snapshot and restore.
func (s *Service) Root() string {
	return s.root
}

// TablePath returns the location of the attribute table.
func (s *Service) TablePath() string {
	return filepath.Join(s.root, s.tableName)
}

func (s *Service) store() *AttributeStore {
	return NewAttributeStore(s.fs, s.TablePath())
}

func (s *Service) fingerprinter() *Fingerprinter {
	return NewFingerprinter(s.fs, s.hashFunc)
}
