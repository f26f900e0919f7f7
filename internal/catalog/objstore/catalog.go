package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/localfs"
	"github.com/rescale/brocoli/internal/validation"
)

var (
	errIsDirectory = errors.New("is a directory")
	errRoot        = errors.New("refusing to delete the catalog root")
)

// Options tune a Catalog.
type Options struct {
	// Name is used as the local directory name when the root itself is
	// downloaded. Backends pass the bucket or container name.
	Name string
	// Fields returns the connection fields of the backend type.
	Fields func() *form.Fields
}

// Catalog exposes a Store as a catalog. Catalog paths are relative to Root;
// a leading '/' is ignored.
type Catalog struct {
	store  Store
	root   string
	name   string
	fields func() *form.Fields
}

// New wraps store, rooting every path under the key prefix root.
func New(store Store, root string, opts Options) *Catalog {
	name := opts.Name
	if name == "" {
		name = "root"
	}
	fields := opts.Fields
	if fields == nil {
		fields = form.NewFields
	}
	return &Catalog{
		store:  store,
		root:   cleanKey(root),
		name:   name,
		fields: fields,
	}
}

func (c *Catalog) ConfigFields() *form.Fields { return c.fields() }

// cleanKey normalises p into an object key: no leading or trailing '/',
// "" for the bucket root.
func cleanKey(p string) string {
	k := strings.Trim(path.Clean("/"+filepath.ToSlash(p)), "/")
	if k == "." {
		return ""
	}
	return k
}

func (c *Catalog) key(p string) string {
	return cleanKey(path.Join(c.root, cleanKey(p)))
}

func dirPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

func baseName(key, fallback string) string {
	if key == "" {
		return fallback
	}
	return path.Base(key)
}

func (c *Catalog) Join(segments ...string) string {
	return path.Join(segments...)
}

// isDir reports whether key names a directory: the catalog root, a marker
// object or a non-empty prefix.
func (c *Catalog) isDir(ctx context.Context, key string) (bool, error) {
	if key == c.root {
		return true, nil
	}
	if _, err := c.store.Head(ctx, dirPrefix(key)); err == nil {
		return true, nil
	} else if !catalog.IsNotFound(err) {
		return false, err
	}
	objs, prefixes, err := c.store.List(ctx, dirPrefix(key), false)
	if err != nil {
		return false, err
	}
	return len(objs) > 0 || len(prefixes) > 0, nil
}

// isFile reports whether key names an object.
func (c *Catalog) isFile(ctx context.Context, key string) (Object, bool, error) {
	if key == "" {
		return Object{}, false, nil
	}
	obj, err := c.store.Head(ctx, key)
	if catalog.IsNotFound(err) {
		return Object{}, false, nil
	}
	if err != nil {
		return Object{}, false, err
	}
	return obj, true, nil
}

// requireDir classifies key as missing, not a directory, or fine.
func (c *Catalog) requireDir(ctx context.Context, op, p, key string) error {
	if _, ok, err := c.isFile(ctx, key); err != nil {
		return catalog.WrapError(op, p, err)
	} else if ok {
		return catalog.NewError(op, p, catalog.ErrNotADirectory)
	}
	ok, err := c.isDir(ctx, key)
	if err != nil {
		return catalog.WrapError(op, p, err)
	}
	if !ok {
		return catalog.NewError(op, p, catalog.ErrNotFound)
	}
	return nil
}

func (c *Catalog) Stat(ctx context.Context, p string) (catalog.Entry, error) {
	key := c.key(p)
	obj, ok, err := c.isFile(ctx, key)
	if err != nil {
		return catalog.Entry{}, catalog.WrapError("stat", p, err)
	}
	if ok {
		return catalog.Entry{Path: p, Owner: obj.Owner, Size: obj.Size, ModTime: obj.ModTime}, nil
	}
	if key != "" {
		if marker, err := c.store.Head(ctx, dirPrefix(key)); err == nil {
			return catalog.Entry{Path: p, Owner: marker.Owner, ModTime: marker.ModTime, IsDir: true}, nil
		}
	}
	dir, err := c.isDir(ctx, key)
	if err != nil {
		return catalog.Entry{}, catalog.WrapError("stat", p, err)
	}
	if !dir {
		return catalog.Entry{}, catalog.NewError("stat", p, catalog.ErrNotFound)
	}
	return catalog.Entry{Path: p, IsDir: true}, nil
}

func (c *Catalog) ListDirectory(ctx context.Context, p string) ([]string, error) {
	key := c.key(p)
	if err := c.requireDir(ctx, "listdir", p, key); err != nil {
		return nil, err
	}
	prefix := dirPrefix(key)
	objs, prefixes, err := c.store.List(ctx, prefix, false)
	if err != nil {
		return nil, catalog.WrapError("listdir", p, err)
	}
	names := make([]string, 0, len(objs)+len(prefixes))
	for _, o := range objs {
		if name := strings.TrimPrefix(o.Key, prefix); name != "" {
			names = append(names, name)
		}
	}
	for _, sub := range prefixes {
		if name := strings.TrimSuffix(strings.TrimPrefix(sub, prefix), "/"); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func (c *Catalog) IsDirectory(ctx context.Context, p string) (bool, error) {
	key := c.key(p)
	if _, ok, err := c.isFile(ctx, key); err != nil {
		return false, catalog.WrapError("isdir", p, err)
	} else if ok {
		return false, nil
	}
	ok, err := c.isDir(ctx, key)
	if err != nil {
		return false, catalog.WrapError("isdir", p, err)
	}
	return ok, nil
}

// DownloadFiles writes each object into destDir, keeping its modification time.
func (c *Catalog) DownloadFiles(ctx context.Context, sources []string, destDir string) catalog.Seq {
	return catalog.Each(ctx, sources, func(ctx context.Context, src string) error {
		key := c.key(src)
		obj, ok, err := c.isFile(ctx, key)
		if err != nil {
			return catalog.WrapError("download", src, err)
		}
		if !ok {
			if dir, _ := c.isDir(ctx, key); dir {
				return &catalog.PathError{Op: "download", Path: src, Err: errIsDirectory}
			}
			return catalog.NewError("download", src, catalog.ErrNotFound)
		}
		if err := catalog.RequireLocalDir("download", destDir); err != nil {
			return err
		}
		return catalog.WrapError("download", src, c.fetch(ctx, obj, filepath.Join(destDir, path.Base(key))))
	})
}

// DownloadDirectories mirrors every object below each source prefix into
// destDir/<basename>, replacing an existing local tree.
func (c *Catalog) DownloadDirectories(ctx context.Context, sources []string, destDir string) catalog.Seq {
	return catalog.Each(ctx, sources, func(ctx context.Context, src string) error {
		key := c.key(src)
		if err := c.requireDir(ctx, "download", src, key); err != nil {
			return err
		}
		if err := catalog.RequireLocalDir("download", destDir); err != nil {
			return err
		}
		dest := filepath.Join(destDir, baseName(key, c.name))
		if err := os.RemoveAll(dest); err != nil {
			return catalog.WrapError("download", dest, err)
		}
		if err := os.MkdirAll(dest, 0755); err != nil {
			return catalog.WrapError("download", dest, err)
		}
		prefix := dirPrefix(key)
		objs, _, err := c.store.List(ctx, prefix, true)
		if err != nil {
			return catalog.WrapError("download", src, err)
		}
		slices.SortFunc(objs, func(a, b Object) int { return strings.Compare(a.Key, b.Key) })
		for _, obj := range objs {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel := strings.TrimPrefix(obj.Key, prefix)
			if rel == "" {
				continue
			}
			local := filepath.FromSlash(strings.TrimSuffix(rel, "/"))
			if err := validation.ValidatePathInDirectory(local, dest); err != nil {
				return catalog.WrapError("download", obj.Key, err)
			}
			target := filepath.Join(dest, local)
			if strings.HasSuffix(rel, "/") {
				if err := os.MkdirAll(target, 0755); err != nil {
					return catalog.WrapError("download", obj.Key, err)
				}
				continue
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return catalog.WrapError("download", obj.Key, err)
			}
			if err := c.fetch(ctx, obj, target); err != nil {
				return catalog.WrapError("download", obj.Key, err)
			}
		}
		return nil
	})
}

func (c *Catalog) fetch(ctx context.Context, obj Object, localPath string) error {
	return localfs.Receive(localPath, obj.Size, obj.ModTime, func(w io.Writer) error {
		if err := c.store.Get(ctx, obj.Key, w); err != nil {
			return fmt.Errorf("get %s: %w", obj.Key, err)
		}
		return nil
	})
}

func (c *Catalog) UploadFiles(ctx context.Context, localPaths []string, destPath string) catalog.Seq {
	return catalog.Each(ctx, localPaths, func(ctx context.Context, src string) error {
		destKey := c.key(destPath)
		if err := c.requireDir(ctx, "upload", destPath, destKey); err != nil {
			return err
		}
		info, err := os.Stat(src)
		if err != nil {
			return catalog.WrapError("upload", src, err)
		}
		if info.IsDir() {
			return &catalog.PathError{Op: "upload", Path: src, Err: errIsDirectory}
		}
		return catalog.WrapError("upload", src, c.put(ctx, src, dirPrefix(destKey)+filepath.Base(src), info.Size()))
	})
}

// UploadDirectories copies each local tree to destPath/<basename>, hidden
// files included, after deleting whatever the destination held.
func (c *Catalog) UploadDirectories(ctx context.Context, localPaths []string, destPath string) catalog.Seq {
	return catalog.Each(ctx, localPaths, func(ctx context.Context, src string) error {
		destKey := c.key(destPath)
		if err := c.requireDir(ctx, "upload", destPath, destKey); err != nil {
			return err
		}
		if err := catalog.RequireLocalDir("upload", src); err != nil {
			return err
		}
		target := path.Join(destKey, filepath.Base(filepath.Clean(src)))
		if err := c.deleteTree(ctx, target); err != nil {
			return catalog.WrapError("upload", destPath, err)
		}
		err := localfs.Walk(src, func(e localfs.FileEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := target
			if e.Rel != "" {
				key = target + "/" + e.Rel
			}
			if e.IsDir {
				return c.store.Put(ctx, key+"/", bytes.NewReader(nil), 0)
			}
			return c.put(ctx, e.Path, key, e.Size)
		})
		return catalog.WrapError("upload", src, err)
	})
}

func (c *Catalog) put(ctx context.Context, localPath, key string, size int64) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := c.store.Put(ctx, key, f, size); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (c *Catalog) DeleteFiles(ctx context.Context, paths []string) catalog.Seq {
	return catalog.Each(ctx, paths, func(ctx context.Context, p string) error {
		key := c.key(p)
		_, ok, err := c.isFile(ctx, key)
		if err != nil {
			return catalog.WrapError("delete", p, err)
		}
		if !ok {
			if dir, _ := c.isDir(ctx, key); dir {
				return &catalog.PathError{Op: "delete", Path: p, Err: errIsDirectory}
			}
			return catalog.NewError("delete", p, catalog.ErrNotFound)
		}
		return catalog.WrapError("delete", p, c.store.Delete(ctx, key))
	})
}

func (c *Catalog) DeleteDirectories(ctx context.Context, paths []string) catalog.Seq {
	return catalog.Each(ctx, paths, func(ctx context.Context, p string) error {
		key := c.key(p)
		if key == c.root {
			return &catalog.PathError{Op: "rmtree", Path: p, Err: errRoot}
		}
		if err := c.requireDir(ctx, "rmtree", p, key); err != nil {
			return err
		}
		return catalog.WrapError("rmtree", p, c.deleteTree(ctx, key))
	})
}

// deleteTree removes every object under key/, the marker included.
func (c *Catalog) deleteTree(ctx context.Context, key string) error {
	objs, _, err := c.store.List(ctx, dirPrefix(key), true)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		if err := c.store.Delete(ctx, obj.Key); err != nil && !catalog.IsNotFound(err) {
			return fmt.Errorf("delete %s: %w", obj.Key, err)
		}
	}
	return nil
}

// MakeDirectory writes a "dir/" marker. The parent must already exist.
func (c *Catalog) MakeDirectory(ctx context.Context, p string) error {
	key := c.key(p)
	if key == c.root {
		return catalog.NewError("mkdir", p, catalog.ErrAlreadyExists)
	}
	if _, ok, err := c.isFile(ctx, key); err != nil {
		return catalog.WrapError("mkdir", p, err)
	} else if ok {
		return catalog.NewError("mkdir", p, catalog.ErrAlreadyExists)
	}
	if ok, err := c.isDir(ctx, key); err != nil {
		return catalog.WrapError("mkdir", p, err)
	} else if ok {
		return catalog.NewError("mkdir", p, catalog.ErrAlreadyExists)
	}
	if parent := path.Dir(key); parent != "." {
		ok, err := c.isDir(ctx, parent)
		if err != nil {
			return catalog.WrapError("mkdir", p, err)
		}
		if !ok {
			return catalog.NewError("mkdir", p, catalog.ErrNotFound)
		}
	}
	return catalog.WrapError("mkdir", p, c.store.Put(ctx, key+"/", bytes.NewReader(nil), 0))
}

var _ catalog.Catalog = (*Catalog)(nil)
