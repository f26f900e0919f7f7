// Package objstore implements a catalog on top of a flat object store
// (S3, Azure Blob, MinIO). Keys are '/'-separated; a directory is any key
// prefix, optionally materialised by a zero-byte "dir/" marker object.
package objstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rescale/brocoli/internal/catalog"
)

// Object describes one stored object.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
	Owner   string
}

// Store is the minimal set of object operations a backend provides.
//
// Head must return an error satisfying errors.Is(err, catalog.ErrNotFound)
// when the key does not exist; NotFound builds one from an SDK error.
type Store interface {
	Head(ctx context.Context, key string) (Object, error)
	// List returns the objects whose key starts with prefix. Unless recursive,
	// keys with a further '/' after the prefix are folded into common
	// prefixes (returned with their trailing '/').
	List(ctx context.Context, prefix string, recursive bool) ([]Object, []string, error)
	Get(ctx context.Context, key string, w io.Writer) error
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
}

// NotFound marks err as a missing-object error while keeping the SDK cause.
func NotFound(err error) error {
	return fmt.Errorf("%w: %w", catalog.ErrNotFound, err)
}
