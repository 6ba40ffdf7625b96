package fs

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"rfi-go/internal/rfi"
)

// IgnoreFileName is the per-project exclusion file read from the working root.
const IgnoreFileName = ".rfiignore"

// defaultIgnorePatterns are always applied regardless of config or .rfiignore.
var defaultIgnorePatterns = []string{IgnoreFileName}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against path components
}

// IgnoreMatcher checks relative file paths against a set of exclusion patterns.
// Patterns without '/' match any single path component, so "target" excludes
// everything below a target directory. Patterns with '/' match the relative
// path or any of its leading directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings plus the
// default patterns. Blank lines and lines starting with '#' are skipped, as
// are patterns that filepath.Match rejects.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range append(append([]string{}, defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.Trim(raw, "/")
		if _, err := filepath.Match(raw, ""); err != nil {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the given relative path is excluded.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	if normalized == "" {
		return false
	}
	components := strings.Split(normalized, "/")

	for _, p := range m.patterns {
		if p.matchPath {
			for i := len(components); i > 0; i-- {
				if ok, _ := filepath.Match(p.pattern, strings.Join(components[:i], "/")); ok {
					return true
				}
			}
			continue
		}
		for _, c := range components {
			if ok, _ := filepath.Match(p.pattern, c); ok {
				return true
			}
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

// Compile-time check that IgnoreMatcher implements rfi.Matcher
var _ rfi.Matcher = (*IgnoreMatcher)(nil)
