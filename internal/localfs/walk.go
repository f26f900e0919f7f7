// Package localfs holds the local filesystem helpers shared by the local catalog
// and by transfers between the local disk and remote catalogs: directory
// listing, tree walking and receiving downloaded files.
package localfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileEntry represents a file or directory in the local filesystem.
type FileEntry struct {
	Path    string      // Full path to the file
	Rel     string      // Path relative to the walk root, slash separated ("" for the root)
	Name    string      // Base name of the file
	Size    int64       // Size in bytes (0 for directories)
	IsDir   bool        // True if this is a directory
	ModTime time.Time   // Last modification time
	Mode    fs.FileMode // File mode/permissions
}

// ListDirectory returns the contents of a directory in the filesystem's
// native (name) order. Hidden entries are included.
func ListDirectory(path string) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info
			continue
		}

		name := entry.Name()
		result = append(result, FileEntry{
			Path:    filepath.Join(path, name),
			Rel:     name,
			Name:    name,
			Size:    sizeOf(info),
			IsDir:   entry.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}

	return result, nil
}

// WalkFunc is the callback signature for Walk.
// Return filepath.SkipDir to skip a directory, or any other error to stop walking.
type WalkFunc func(entry FileEntry) error

// Walk traverses a directory tree depth-first, calling fn for each file and
// directory (the root included, with Rel ""). Directories are visited before
// their contents. The first unreadable entry stops the walk.
func Walk(root string, fn WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		}

		return fn(FileEntry{
			Path:    path,
			Rel:     filepath.ToSlash(rel),
			Name:    d.Name(),
			Size:    sizeOf(info),
			IsDir:   d.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	})
}

// TreeStats counts the regular files under the given roots and their
// cumulated size. Used to size transfers before they start.
func TreeStats(roots []string) (files int, size int64, err error) {
	for _, root := range roots {
		err = Walk(root, func(e FileEntry) error {
			if !e.IsDir {
				files++
				size += e.Size
			}
			return nil
		})
		if err != nil {
			return 0, 0, err
		}
	}
	return files, size, nil
}

func sizeOf(info fs.FileInfo) int64 {
	if info.IsDir() {
		return 0
	}
	return info.Size()
}
