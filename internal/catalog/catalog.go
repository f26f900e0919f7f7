// Package catalog defines the contract every storage backend implements.
// A catalog presents a hierarchical namespace of files and directories with
// inspection, bulk transfer and bulk deletion. Bulk operations are lazy: they do
// their work one item at a time while the caller ranges over the returned Seq,
// so the caller controls pacing and can stop early.
package catalog

import (
	"context"
	"iter"
	"time"

	"github.com/rescale/brocoli/internal/form"
)

// Entry is a snapshot of a path's metadata taken by Stat.
type Entry struct {
	Path    string
	Owner   string // numeric uid for local files, account or user name for remote ones
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Progress is emitted once per processed item of a bulk operation.
// Total is fixed for the whole operation; Done counts up from 1 to Total.
type Progress struct {
	Done  int
	Total int
}

// Fraction returns Done/Total in [0,1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Seq is a lazy bulk operation. A failing item yields a zero Progress and the
// error, then the sequence ends. Ranging again restarts from the first item.
type Seq = iter.Seq2[Progress, error]

// Inspector covers the read-only half of a catalog.
type Inspector interface {
	// Stat fails with ErrNotFound if path does not exist.
	Stat(ctx context.Context, path string) (Entry, error)

	// ListDirectory returns the sorted entry names (not paths) of a directory.
	ListDirectory(ctx context.Context, path string) ([]string, error)

	// IsDirectory reports false without error for missing paths.
	IsDirectory(ctx context.Context, path string) (bool, error)

	// Join composes path segments using the backend's own rules.
	Join(segments ...string) string
}

// Transferer moves files and directory trees between a catalog and the local
// filesystem. Directory transfers replace an existing destination tree.
type Transferer interface {
	DownloadFiles(ctx context.Context, sources []string, destDir string) Seq
	DownloadDirectories(ctx context.Context, sources []string, destDir string) Seq
	UploadFiles(ctx context.Context, localPaths []string, destPath string) Seq
	UploadDirectories(ctx context.Context, localPaths []string, destPath string) Seq
}

// Catalog is the full backend capability set.
type Catalog interface {
	Inspector
	Transferer

	DeleteFiles(ctx context.Context, paths []string) Seq
	DeleteDirectories(ctx context.Context, paths []string) Seq

	// MakeDirectory creates one directory. It fails with ErrAlreadyExists if
	// path exists and ErrNotFound if the parent does not.
	MakeDirectory(ctx context.Context, path string) error

	// ConfigFields declares the connection parameters of this backend type.
	ConfigFields() *form.Fields
}
