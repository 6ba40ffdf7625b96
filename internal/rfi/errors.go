package rfi

import (
	"errors"
	"fmt"
	"io/fs"
)

// Error kinds. Every error returned by the core wraps exactly one of these
// alongside its underlying cause, so callers can test both with errors.Is.
var (
	// ErrIO covers read, write, create, delete and permission-change failures.
	ErrIO = errors.New("i/o error")

	// ErrFormat is returned for a malformed attribute table or metadata document.
	ErrFormat = errors.New("format error")

	// ErrNotFound is returned when a root directory passed in explicitly does not exist.
	ErrNotFound = errors.New("not found")
)

func ioError(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, path, ErrIO, err)
}

func formatError(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, ErrFormat, err)
}

func notFoundError(what, path string) error {
	return fmt.Errorf("%s %s: %w", what, path, ErrNotFound)
}

// notExist reports whether err means the path is absent.
func notExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
