// Package s3 implements the "s3" catalog type on AWS S3 and S3-compatible
// endpoints.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/catalog/objstore"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/logging"
)

// TypeName is the profile catalog_type of this backend.
const TypeName = "s3"

// Field names.
const (
	FieldUseEnv    = "use_env_credentials"
	FieldBucket    = "bucket"
	FieldRegion    = "region"
	FieldEndpoint  = "endpoint"
	FieldPathStyle = "path_style"
	FieldAccessKey = "access_key_id"
	FieldSecretKey = "secret_access_key"
)

const inlineTag = "inline"

// Type returns the registry entry for the S3 backend.
func Type() catalog.Type {
	return catalog.Type{
		Name:        TypeName,
		Description: "Amazon S3 or S3-compatible object storage",
		Fields:      ConfigFields,
		Open:        Open,
	}
}

// ConfigFields declares the S3 connection parameters. Setting
// use_env_credentials hands credential lookup to the SDK default chain
// (environment, shared config, instance role).
func ConfigFields() *form.Fields {
	fs := form.NewFields().
		Add(FieldUseEnv, form.NewBoolean("use environment credentials", false, form.BoolOptions{Disables: []string{inlineTag}})).
		Add(FieldBucket, form.NewText("bucket:", "")).
		Add(FieldRegion, form.NewText("region:", "us-east-1")).
		Add(FieldEndpoint, form.NewText("endpoint URL (optional):", "")).
		Add(FieldPathStyle, form.NewBoolean("path-style addressing", false)).
		Add(FieldAccessKey, form.NewText("access key id:", "", form.Options{Tags: []string{inlineTag}}))
	return catalog.AddSecret(fs, FieldSecretKey, "secret access key:", inlineTag)
}

// Open connects to the bucket named in values.
func Open(ctx context.Context, root string, values form.Values) (catalog.Catalog, error) {
	fs, err := catalog.LoadFields(Type(), values)
	if err != nil {
		return nil, err
	}
	if err := catalog.Require(fs, FieldBucket); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx).Named(TypeName)

	httpClient, err := http.ClientFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(fs.String(FieldRegion)),
		config.WithHTTPClient(httpClient),
	}
	if !fs.Bool(FieldUseEnv) {
		if err := catalog.Require(fs, FieldAccessKey, FieldSecretKey); err != nil {
			return nil, err
		}
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			fs.String(FieldAccessKey),
			fs.Secret(FieldSecretKey),
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fs.String(FieldEndpoint)
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = fs.Bool(FieldPathStyle)
	})

	bucket := fs.String(FieldBucket)
	logger.Debug().
		Str("bucket", bucket).
		Str("region", cfg.Region).
		Str("endpoint", endpoint).
		Str("root", root).
		Msg("opened S3 catalog")

	return objstore.New(NewStore(client, bucket), root, objstore.Options{
		Name:   bucket,
		Fields: ConfigFields,
	}), nil
}

// API is the subset of the S3 client used by Store.
type API interface {
	awss3.HeadObjectAPIClient
	awss3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Store adapts one bucket to objstore.Store.
type Store struct {
	client API
	bucket string
}

// NewStore returns a Store for bucket.
func NewStore(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) Head(ctx context.Context, key string) (objstore.Object, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return objstore.Object{}, classify(err)
	}
	return objstore.Object{
		Key:     key,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

func (s *Store) List(ctx context.Context, prefix string, recursive bool) ([]objstore.Object, []string, error) {
	in := &awss3.ListObjectsV2Input{
		Bucket:     aws.String(s.bucket),
		Prefix:     aws.String(prefix),
		FetchOwner: aws.Bool(true),
	}
	if !recursive {
		in.Delimiter = aws.String("/")
	}

	var (
		objects  []objstore.Object
		prefixes []string
	)
	pager := awss3.NewListObjectsV2Paginator(s.client, in)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, nil, classify(err)
		}
		for _, o := range page.Contents {
			obj := objstore.Object{
				Key:     aws.ToString(o.Key),
				Size:    aws.ToInt64(o.Size),
				ModTime: aws.ToTime(o.LastModified),
			}
			if o.Owner != nil {
				obj.Owner = aws.ToString(o.Owner.DisplayName)
				if obj.Owner == "" {
					obj.Owner = aws.ToString(o.Owner.ID)
				}
			}
			objects = append(objects, obj)
		}
		for _, p := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(p.Prefix))
		}
	}
	return objects, prefixes, nil
}

func (s *Store) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	in := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps S3 "does not exist" responses to catalog.ErrNotFound.
func classify(err error) error {
	var (
		notFound  *types.NotFound
		noSuchKey *types.NoSuchKey
		noBucket  *types.NoSuchBucket
	)
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noBucket) {
		return objstore.NotFound(err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch strings.ToLower(apiErr.ErrorCode()) {
		case "notfound", "nosuchkey", "nosuchbucket":
			return objstore.NotFound(err)
		}
	}
	return err
}

var _ objstore.Store = (*Store)(nil)
