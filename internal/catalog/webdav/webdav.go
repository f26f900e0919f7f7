// Package webdav implements the "webdav" catalog type: a WebDAV collection
// reached over HTTP(S) through gowebdav.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/localfs"
	"github.com/rescale/brocoli/internal/logging"
	"github.com/rescale/brocoli/internal/validation"
)

// TypeName is the profile catalog_type of this backend.
const TypeName = "webdav"

// Field names.
const (
	FieldURL      = "url"
	FieldUser     = "user"
	FieldPassword = "password"
)

var (
	errIsDirectory = errors.New("is a directory")
	errRoot        = errors.New("refusing to delete the catalog root")
)

// Type returns the registry entry for the WebDAV backend.
func Type() catalog.Type {
	return catalog.Type{
		Name:        TypeName,
		Description: "WebDAV server (Nextcloud, Apache mod_dav, ...)",
		Fields:      ConfigFields,
		Open:        Open,
	}
}

// ConfigFields declares the WebDAV connection parameters.
func ConfigFields() *form.Fields {
	fs := form.NewFields().
		Add(FieldURL, form.NewText("collection URL:", "https://")).
		Add(FieldUser, form.NewText("user:", ""))
	return catalog.AddSecret(fs, FieldPassword, "password:")
}

// Open connects to the collection URL of values. Nothing is sent before
// the first operation.
func Open(ctx context.Context, root string, values form.Values) (catalog.Catalog, error) {
	fs, err := catalog.LoadFields(Type(), values)
	if err != nil {
		return nil, err
	}
	if err := catalog.Require(fs, FieldURL); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx).Named(TypeName)

	base, err := http.ClientFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	client, err := NewClient(fs.String(FieldURL), fs.String(FieldUser), fs.Secret(FieldPassword),
		http.NewRetryClient(base, http.DefaultRetryConfig(), logger))
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("url", fs.String(FieldURL)).
		Str("user", fs.String(FieldUser)).
		Str("root", root).
		Msg("opened WebDAV catalog")
	return New(client, root), nil
}

// Catalog presents a WebDAV collection. Catalog paths are relative to Root.
type Catalog struct {
	client *Client
	root   string
}

// New returns a catalog rooted at root below the client's base URL.
func New(client *Client, root string) *Catalog {
	return &Catalog{client: client, root: clean(root)}
}

func (c *Catalog) ConfigFields() *form.Fields { return ConfigFields() }

func clean(p string) string {
	p = strings.Trim(path.Clean("/"+filepath.ToSlash(p)), "/")
	if p == "." {
		return ""
	}
	return p
}

func (c *Catalog) resolve(p string) string {
	return clean(path.Join(c.root, clean(p)))
}

func (c *Catalog) Join(segments ...string) string {
	return path.Join(segments...)
}

// remote is the request path of a resolved catalog path.
func remote(resolved string) string {
	return "/" + resolved
}

// name is the local directory name used when target is downloaded.
func (c *Catalog) name(target string) string {
	if target == "" {
		if u := strings.Trim(c.client.base.Path, "/"); u != "" {
			return path.Base(u)
		}
		return c.client.base.Hostname()
	}
	return path.Base(target)
}

func (c *Catalog) stat(op, p string) (iofs.FileInfo, error) {
	info, err := c.client.Stat(remote(c.resolve(p)))
	if err != nil {
		return nil, catalog.WrapError(op, p, classify(err))
	}
	return info, nil
}

func (c *Catalog) requireDir(op, p string) error {
	info, err := c.stat(op, p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return catalog.NewError(op, p, catalog.ErrNotADirectory)
	}
	return nil
}

// Stat reports size and modification time. WebDAV servers do not expose an
// owner through the properties gowebdav reads, so Owner stays empty.
func (c *Catalog) Stat(ctx context.Context, p string) (catalog.Entry, error) {
	info, err := c.stat("stat", p)
	if err != nil {
		return catalog.Entry{}, err
	}
	e := catalog.Entry{Path: p, ModTime: info.ModTime(), IsDir: info.IsDir()}
	if !info.IsDir() {
		e.Size = info.Size()
	}
	return e, nil
}

func (c *Catalog) ListDirectory(ctx context.Context, p string) ([]string, error) {
	children, err := c.children("listdir", p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(children))
	for _, info := range children {
		names = append(names, info.Name())
	}
	slices.Sort(names)
	return names, nil
}

// children lists the members of collection p, which must exist.
func (c *Catalog) children(op, p string) ([]iofs.FileInfo, error) {
	if err := c.requireDir(op, p); err != nil {
		return nil, err
	}
	infos, err := c.client.ReadDir(remote(c.resolve(p)))
	if err != nil {
		return nil, catalog.WrapError(op, p, classify(err))
	}
	return infos, nil
}

func (c *Catalog) IsDirectory(ctx context.Context, p string) (bool, error) {
	info, err := c.stat("isdir", p)
	if catalog.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// DownloadFiles GETs each file into destDir, keeping its modification time.
func (c *Catalog) DownloadFiles(ctx context.Context, sources []string, destDir string) catalog.Seq {
	return catalog.Each(ctx, sources, func(ctx context.Context, src string) error {
		info, err := c.stat("download", src)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return &catalog.PathError{Op: "download", Path: src, Err: errIsDirectory}
		}
		if err := catalog.RequireLocalDir("download", destDir); err != nil {
			return err
		}
		target := c.resolve(src)
		return catalog.WrapError("download", src, c.fetch(target, info, filepath.Join(destDir, path.Base(target))))
	})
}

// DownloadDirectories mirrors each collection into destDir/<basename>,
// replacing an existing local tree.
func (c *Catalog) DownloadDirectories(ctx context.Context, sources []string, destDir string) catalog.Seq {
	return catalog.Each(ctx, sources, func(ctx context.Context, src string) error {
		if err := c.requireDir("download", src); err != nil {
			return err
		}
		if err := catalog.RequireLocalDir("download", destDir); err != nil {
			return err
		}
		target := c.resolve(src)
		dest := filepath.Join(destDir, c.name(target))
		if err := os.RemoveAll(dest); err != nil {
			return catalog.WrapError("download", dest, err)
		}
		return c.mirror(ctx, target, dest)
	})
}

// mirror copies the collection dir (a resolved path) into local.
func (c *Catalog) mirror(ctx context.Context, dir, local string) error {
	if err := os.MkdirAll(local, 0755); err != nil {
		return catalog.WrapError("download", local, err)
	}
	infos, err := c.client.ReadDir(remote(dir))
	if err != nil {
		return catalog.WrapError("download", dir, classify(err))
	}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := info.Name()
		child := path.Join(dir, name)
		if err := validation.ValidateFilename(name); err != nil {
			return catalog.WrapError("download", child, err)
		}
		dest := filepath.Join(local, name)
		if info.IsDir() {
			if err := c.mirror(ctx, child, dest); err != nil {
				return err
			}
			continue
		}
		if err := c.fetch(child, info, dest); err != nil {
			return catalog.WrapError("download", child, err)
		}
	}
	return nil
}

func (c *Catalog) fetch(target string, info iofs.FileInfo, localPath string) error {
	return localfs.Receive(localPath, info.Size(), info.ModTime(), func(w io.Writer) error {
		body, err := c.client.ReadStream(remote(target))
		if err != nil {
			return classify(err)
		}
		defer body.Close()
		_, err = io.Copy(w, body)
		return err
	})
}

func (c *Catalog) UploadFiles(ctx context.Context, localPaths []string, destPath string) catalog.Seq {
	return catalog.Each(ctx, localPaths, func(ctx context.Context, src string) error {
		if err := c.requireDir("upload", destPath); err != nil {
			return err
		}
		info, err := os.Stat(src)
		if err != nil {
			return catalog.WrapError("upload", src, err)
		}
		if info.IsDir() {
			return &catalog.PathError{Op: "upload", Path: src, Err: errIsDirectory}
		}
		target := path.Join(c.resolve(destPath), filepath.Base(src))
		return catalog.WrapError("upload", src, c.put(src, target))
	})
}

// UploadDirectories copies each local tree to destPath/<basename>, hidden
// files included, after deleting whatever the destination held.
func (c *Catalog) UploadDirectories(ctx context.Context, localPaths []string, destPath string) catalog.Seq {
	return catalog.Each(ctx, localPaths, func(ctx context.Context, src string) error {
		if err := c.requireDir("upload", destPath); err != nil {
			return err
		}
		if err := catalog.RequireLocalDir("upload", src); err != nil {
			return err
		}
		target := path.Join(c.resolve(destPath), filepath.Base(filepath.Clean(src)))
		if err := c.client.RemoveAll(remote(target)); err != nil {
			return catalog.WrapError("upload", destPath, classify(err))
		}
		err := localfs.Walk(src, func(e localfs.FileEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dest := target
			if e.Rel != "" {
				dest = target + "/" + e.Rel
			}
			if e.IsDir {
				return classify(c.client.Mkdir(remote(dest), 0755))
			}
			return c.put(e.Path, dest)
		})
		return catalog.WrapError("upload", src, err)
	})
}

func (c *Catalog) put(localPath, target string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return classify(c.client.WriteStream(remote(target), f, 0644))
}

func (c *Catalog) DeleteFiles(ctx context.Context, paths []string) catalog.Seq {
	return catalog.Each(ctx, paths, func(ctx context.Context, p string) error {
		info, err := c.stat("delete", p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return &catalog.PathError{Op: "delete", Path: p, Err: errIsDirectory}
		}
		return catalog.WrapError("delete", p, classify(c.client.Remove(remote(c.resolve(p)))))
	})
}

func (c *Catalog) DeleteDirectories(ctx context.Context, paths []string) catalog.Seq {
	return catalog.Each(ctx, paths, func(ctx context.Context, p string) error {
		target := c.resolve(p)
		if target == c.root {
			return &catalog.PathError{Op: "rmtree", Path: p, Err: errRoot}
		}
		if err := c.requireDir("rmtree", p); err != nil {
			return err
		}
		return catalog.WrapError("rmtree", p, classify(c.client.RemoveAll(remote(target))))
	})
}

// MakeDirectory issues MKCOL. The parent must already exist.
func (c *Catalog) MakeDirectory(ctx context.Context, p string) error {
	target := c.resolve(p)
	if target == c.root {
		return catalog.NewError("mkdir", p, catalog.ErrAlreadyExists)
	}
	if _, err := c.stat("mkdir", p); err == nil {
		return catalog.NewError("mkdir", p, catalog.ErrAlreadyExists)
	} else if !catalog.IsNotFound(err) {
		return err
	}
	return catalog.WrapError("mkdir", p, classify(c.client.Mkdir(remote(target), 0755)))
}

var _ catalog.Catalog = (*Catalog)(nil)
