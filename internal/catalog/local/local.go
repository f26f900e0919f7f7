// Package local implements a catalog backed by the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	cp "github.com/otiai10/copy"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/localfs"
)

// TypeName is the profile catalog_type of this backend.
const TypeName = "os"

var (
	errIsDirectory = errors.New("is a directory")
	errSameTree    = errors.New("source and destination are the same directory")
	errSameFile    = errors.New("source and destination are the same file")
)

// Catalog presents the local filesystem. Relative catalog paths resolve
// against Root; absolute paths are used as they are.
type Catalog struct {
	Root string
}

// New returns a local catalog rooted at root.
func New(root string) *Catalog {
	return &Catalog{Root: root}
}

// Type returns the registry entry for the local backend.
func Type() catalog.Type {
	return catalog.Type{
		Name:        TypeName,
		Description: "Local filesystem",
		Fields:      ConfigFields,
		Open: func(_ context.Context, root string, _ form.Values) (catalog.Catalog, error) {
			return New(root), nil
		},
	}
}

// ConfigFields is empty: the local backend needs no connection parameters.
func ConfigFields() *form.Fields { return form.NewFields() }

func (c *Catalog) ConfigFields() *form.Fields { return ConfigFields() }

func (c *Catalog) resolve(p string) string {
	if filepath.IsAbs(p) || c.Root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}

func (c *Catalog) Join(segments ...string) string {
	return filepath.Join(segments...)
}

func (c *Catalog) Stat(_ context.Context, p string) (catalog.Entry, error) {
	path := c.resolve(p)
	info, err := os.Lstat(path)
	if err != nil {
		return catalog.Entry{}, catalog.WrapError("stat", p, err)
	}
	uid, err := owner(path)
	if err != nil {
		return catalog.Entry{}, catalog.WrapError("stat", p, err)
	}
	return catalog.Entry{
		Path:    p,
		Owner:   uid,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

func (c *Catalog) ListDirectory(_ context.Context, p string) ([]string, error) {
	path := c.resolve(p)
	if err := requireDir("listdir", p, path); err != nil {
		return nil, err
	}
	entries, err := localfs.ListDirectory(path)
	if err != nil {
		return nil, catalog.WrapError("listdir", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	slices.Sort(names)
	return names, nil
}

func (c *Catalog) IsDirectory(_ context.Context, p string) (bool, error) {
	info, err := os.Stat(c.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, catalog.WrapError("isdir", p, err)
	}
	return info.IsDir(), nil
}

// DownloadFiles copies catalog files into the local directory destDir,
// preserving mode and modification time.
func (c *Catalog) DownloadFiles(ctx context.Context, sources []string, destDir string) catalog.Seq {
	return catalog.Each(ctx, sources, func(_ context.Context, src string) error {
		return copyFile("download", c.resolve(src), destDir)
	})
}

// DownloadDirectories copies each source tree to destDir/<basename>, removing
// any existing tree of that name first.
func (c *Catalog) DownloadDirectories(ctx context.Context, sources []string, destDir string) catalog.Seq {
	return catalog.Each(ctx, sources, func(_ context.Context, src string) error {
		return replaceTree("download", c.resolve(src), destDir)
	})
}

func (c *Catalog) UploadFiles(ctx context.Context, localPaths []string, destPath string) catalog.Seq {
	return catalog.Each(ctx, localPaths, func(_ context.Context, src string) error {
		return copyFile("upload", src, c.resolve(destPath))
	})
}

func (c *Catalog) UploadDirectories(ctx context.Context, localPaths []string, destPath string) catalog.Seq {
	return catalog.Each(ctx, localPaths, func(_ context.Context, src string) error {
		return replaceTree("upload", src, c.resolve(destPath))
	})
}

func (c *Catalog) DeleteFiles(ctx context.Context, paths []string) catalog.Seq {
	return catalog.Each(ctx, paths, func(_ context.Context, p string) error {
		path := c.resolve(p)
		info, err := os.Lstat(path)
		if err != nil {
			return catalog.WrapError("delete", p, err)
		}
		if info.IsDir() {
			return &catalog.PathError{Op: "delete", Path: p, Err: errIsDirectory}
		}
		return catalog.WrapError("delete", p, os.Remove(path))
	})
}

func (c *Catalog) DeleteDirectories(ctx context.Context, paths []string) catalog.Seq {
	return catalog.Each(ctx, paths, func(_ context.Context, p string) error {
		path := c.resolve(p)
		if err := requireDir("rmtree", p, path); err != nil {
			return err
		}
		return catalog.WrapError("rmtree", p, os.RemoveAll(path))
	})
}

func (c *Catalog) MakeDirectory(_ context.Context, p string) error {
	return catalog.WrapError("mkdir", p, os.Mkdir(c.resolve(p), 0755))
}

// requireDir classifies path as missing, not a directory, or fine.
func requireDir(op, display, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return catalog.WrapError(op, display, err)
	}
	if !info.IsDir() {
		return catalog.NewError(op, display, catalog.ErrNotADirectory)
	}
	return nil
}

var copyOptions = cp.Options{
	OnSymlink:     func(string) cp.SymlinkAction { return cp.Deep },
	PreserveTimes: true,
}

// copyFile copies the regular file src into the existing directory destDir.
func copyFile(op, src, destDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return catalog.WrapError(op, src, err)
	}
	if info.IsDir() {
		return &catalog.PathError{Op: op, Path: src, Err: errIsDirectory}
	}
	if err := requireDir(op, destDir, destDir); err != nil {
		return err
	}
	dest := filepath.Join(destDir, filepath.Base(src))
	if sameFile(info, dest) {
		return &catalog.PathError{Op: op, Path: src, Err: errSameFile}
	}
	if err := cp.Copy(src, dest, copyOptions); err != nil {
		return catalog.WrapError(op, src, fmt.Errorf("copy to %s: %w", dest, err))
	}
	return nil
}

// replaceTree copies the directory src to destDir/<basename>, deleting an
// existing destination first so that the result mirrors src exactly.
func replaceTree(op, src, destDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return catalog.WrapError(op, src, err)
	}
	if !info.IsDir() {
		return catalog.NewError(op, src, catalog.ErrNotADirectory)
	}
	dest := filepath.Join(destDir, filepath.Base(filepath.Clean(src)))
	if sameFile(info, dest) {
		return &catalog.PathError{Op: op, Path: src, Err: errSameTree}
	}
	if err := os.RemoveAll(dest); err != nil {
		return catalog.WrapError(op, dest, err)
	}
	if err := cp.Copy(src, dest, copyOptions); err != nil {
		return catalog.WrapError(op, src, fmt.Errorf("copy to %s: %w", dest, err))
	}
	return nil
}

// sameFile reports whether path exists and is the file described by src.
// Copying onto the source would truncate it before reading.
func sameFile(src fs.FileInfo, path string) bool {
	dest, err := os.Stat(path)
	return err == nil && os.SameFile(src, dest)
}

var _ catalog.Catalog = (*Catalog)(nil)
