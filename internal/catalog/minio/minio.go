// Package minio implements the "minio" catalog type with minio-go.
package minio

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/catalog/objstore"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/logging"
)

// TypeName is the profile catalog_type of this backend.
const TypeName = "minio"

// Field names.
const (
	FieldEndpoint  = "endpoint"
	FieldPort      = "port"
	FieldUseSSL    = "use_ssl"
	FieldBucket    = "bucket"
	FieldRegion    = "region"
	FieldAccessKey = "access_key"
	FieldSecretKey = "secret_key"
)

// DefaultPort is the MinIO server default.
const DefaultPort = 9000

// Type returns the registry entry for the MinIO backend.
func Type() catalog.Type {
	return catalog.Type{
		Name:        TypeName,
		Description: "MinIO object storage server",
		Fields:      ConfigFields,
		Open:        Open,
	}
}

// ConfigFields declares the MinIO connection parameters.
func ConfigFields() *form.Fields {
	fs := form.NewFields().
		Add(FieldEndpoint, form.NewHostname("host:", "localhost")).
		Add(FieldPort, form.NewInteger("port:", DefaultPort)).
		Add(FieldUseSSL, form.NewBoolean("use TLS", true)).
		Add(FieldBucket, form.NewText("bucket:", "")).
		Add(FieldRegion, form.NewText("region (optional):", "")).
		Add(FieldAccessKey, form.NewText("access key:", ""))
	return catalog.AddSecret(fs, FieldSecretKey, "secret key:")
}

// Open connects to the bucket named in values.
func Open(ctx context.Context, root string, values form.Values) (catalog.Catalog, error) {
	fs, err := catalog.LoadFields(Type(), values)
	if err != nil {
		return nil, err
	}
	if err := catalog.Require(fs, FieldEndpoint, FieldBucket, FieldAccessKey, FieldSecretKey); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx).Named(TypeName)

	httpClient, err := http.ClientFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	endpoint := net.JoinHostPort(fs.String(FieldEndpoint), strconv.Itoa(fs.Int(FieldPort)))
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(fs.String(FieldAccessKey), fs.Secret(FieldSecretKey), ""),
		Secure:    fs.Bool(FieldUseSSL),
		Region:    fs.String(FieldRegion),
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := fs.String(FieldBucket)
	logger.Debug().
		Str("endpoint", endpoint).
		Bool("tls", fs.Bool(FieldUseSSL)).
		Str("bucket", bucket).
		Str("root", root).
		Msg("opened MinIO catalog")

	return objstore.New(NewStore(client, bucket), root, objstore.Options{
		Name:   bucket,
		Fields: ConfigFields,
	}), nil
}

// Store adapts one bucket to objstore.Store.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore returns a Store for bucket.
func NewStore(client *minio.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) Head(ctx context.Context, key string) (objstore.Object, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return objstore.Object{}, classify(err)
	}
	return toObject(info), nil
}

func (s *Store) List(ctx context.Context, prefix string, recursive bool) ([]objstore.Object, []string, error) {
	var infos []minio.ObjectInfo
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    recursive,
	}) {
		if info.Err != nil {
			return nil, nil, classify(info.Err)
		}
		infos = append(infos, info)
	}
	objects, prefixes := fold(infos, prefix, recursive)
	return objects, prefixes, nil
}

// fold separates a non-recursive listing into objects and common prefixes;
// minio-go reports both as ObjectInfo.
func fold(infos []minio.ObjectInfo, prefix string, recursive bool) ([]objstore.Object, []string) {
	var (
		objects  []objstore.Object
		prefixes []string
	)
	for _, info := range infos {
		if !recursive && info.Key != prefix && strings.HasSuffix(info.Key, "/") {
			prefixes = append(prefixes, info.Key)
			continue
		}
		objects = append(objects, toObject(info))
	}
	return objects, prefixes
}

func toObject(info minio.ObjectInfo) objstore.Object {
	owner := info.Owner.DisplayName
	if owner == "" {
		owner = info.Owner.ID
	}
	return objstore.Object{
		Key:     info.Key,
		Size:    info.Size,
		ModTime: info.LastModified,
		Owner:   owner,
	}
}

func (s *Store) Get(ctx context.Context, key string, w io.Writer) error {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return classify(err)
	}
	defer obj.Close()
	// GetObject is lazy: a missing key surfaces on the first read.
	if _, err := io.Copy(w, obj); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps missing keys and buckets to catalog.ErrNotFound.
func classify(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return objstore.NotFound(err)
	}
	return err
}

var _ objstore.Store = (*Store)(nil)
