// Package validation checks names that come from remote catalogs before they
// are used to build local paths.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for names that would escape their directory.
var ErrUnsafePath = errors.New("unsafe path")

// ValidateFilename accepts a single path element: not empty, no separator of
// either platform, no NUL byte and not "..".
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty file name: %w", ErrUnsafePath)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("file name %q contains a null byte: %w", name, ErrUnsafePath)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("file name %q contains a path separator: %w", name, ErrUnsafePath)
	case name == "." || name == "..":
		return fmt.Errorf("file name %q: %w", name, ErrUnsafePath)
	}
	return nil
}

// ValidatePathInDirectory checks that path, resolved against baseDir when
// relative, stays inside baseDir.
//
//	ValidatePathInDirectory("../../etc/passwd", "/tmp/dl") // error
//	ValidatePathInDirectory("sub/file.txt", "/tmp/dl")     // ok
func ValidatePathInDirectory(path, baseDir string) error {
	if path == "" || baseDir == "" {
		return fmt.Errorf("path %q in %q: %w", path, baseDir, ErrUnsafePath)
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}
	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("path %q in %q: %w", path, baseDir, ErrUnsafePath)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes %q: %w", path, baseDir, ErrUnsafePath)
	}
	return nil
}
