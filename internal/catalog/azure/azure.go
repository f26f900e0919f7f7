// Package azure implements the "azure" catalog type on Azure Blob Storage.
// A connection addresses one container; blob names are catalog keys.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/catalog/objstore"
	"github.com/rescale/brocoli/internal/form"
	bhttp "github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/logging"
)

// TypeName is the profile catalog_type of this backend.
const TypeName = "azure"

// Field names.
const (
	FieldAccount    = "account_name"
	FieldContainer  = "container"
	FieldServiceURL = "service_url"
	FieldAccountKey = "account_key"
)

// Type returns the registry entry for the Azure backend.
func Type() catalog.Type {
	return catalog.Type{
		Name:        TypeName,
		Description: "Azure Blob Storage container",
		Fields:      ConfigFields,
		Open:        Open,
	}
}

// ConfigFields declares the Azure connection parameters.
func ConfigFields() *form.Fields {
	fs := form.NewFields().
		Add(FieldAccount, form.NewText("storage account:", "")).
		Add(FieldContainer, form.NewText("container:", "")).
		Add(FieldServiceURL, form.NewText("service URL (optional):", ""))
	return catalog.AddSecret(fs, FieldAccountKey, "account key:")
}

// ServiceURL returns the blob endpoint of account unless override is set.
func ServiceURL(account, override string) string {
	if override != "" {
		return strings.TrimSuffix(override, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
}

// Open connects to the container named in values with a shared key.
func Open(ctx context.Context, root string, values form.Values) (catalog.Catalog, error) {
	fs, err := catalog.LoadFields(Type(), values)
	if err != nil {
		return nil, err
	}
	if err := catalog.Require(fs, FieldAccount, FieldContainer, FieldAccountKey); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx).Named(TypeName)

	httpClient, err := bhttp.ClientFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	account := fs.String(FieldAccount)
	cred, err := azblob.NewSharedKeyCredential(account, fs.Secret(FieldAccountKey))
	if err != nil {
		return nil, fmt.Errorf("invalid account key: %w", err)
	}

	serviceURL := ServiceURL(account, fs.String(FieldServiceURL))
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	name := fs.String(FieldContainer)
	logger.Debug().
		Str("service_url", serviceURL).
		Str("container", name).
		Str("root", root).
		Msg("opened Azure catalog")

	return objstore.New(NewStore(client, name), root, objstore.Options{
		Name:   name,
		Fields: ConfigFields,
	}), nil
}

// Store adapts one container to objstore.Store.
type Store struct {
	client    *azblob.Client
	container *container.Client
	name      string
}

// NewStore returns a Store for the named container of client.
func NewStore(client *azblob.Client, containerName string) *Store {
	return &Store{
		client:    client,
		container: client.ServiceClient().NewContainerClient(containerName),
		name:      containerName,
	}
}

func (s *Store) Head(ctx context.Context, key string) (objstore.Object, error) {
	props, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return objstore.Object{}, classify(err)
	}
	obj := objstore.Object{Key: key}
	if props.ContentLength != nil {
		obj.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		obj.ModTime = *props.LastModified
	}
	return obj, nil
}

func (s *Store) List(ctx context.Context, prefix string, recursive bool) ([]objstore.Object, []string, error) {
	var (
		objects  []objstore.Object
		prefixes []string
	)
	if recursive {
		pager := s.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, nil, classify(err)
			}
			for _, item := range page.Segment.BlobItems {
				objects = append(objects, toObject(item))
			}
		}
		return objects, nil, nil
	}

	pager := s.container.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, nil, classify(err)
		}
		for _, item := range page.Segment.BlobItems {
			objects = append(objects, toObject(item))
		}
		for _, p := range page.Segment.BlobPrefixes {
			if p.Name != nil {
				prefixes = append(prefixes, *p.Name)
			}
		}
	}
	return objects, prefixes, nil
}

func toObject(item *container.BlobItem) objstore.Object {
	obj := objstore.Object{}
	if item.Name != nil {
		obj.Key = *item.Name
	}
	if p := item.Properties; p != nil {
		if p.ContentLength != nil {
			obj.Size = *p.ContentLength
		}
		if p.LastModified != nil {
			obj.ModTime = *p.LastModified
		}
		if p.Owner != nil {
			obj.Owner = *p.Owner
		}
	}
	return obj
}

func (s *Store) Get(ctx context.Context, key string, w io.Writer) error {
	resp, err := s.client.DownloadStream(ctx, s.name, key, nil)
	if err != nil {
		return classify(err)
	}
	body := resp.NewRetryReader(ctx, &azblob.RetryReaderOptions{})
	defer body.Close()
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("failed to read blob body: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	if _, err := s.client.UploadStream(ctx, s.name, key, r, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteBlob(ctx, s.name, key, nil); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps missing blobs and containers to catalog.ErrNotFound.
func classify(err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return objstore.NotFound(err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return objstore.NotFound(err)
	}
	return err
}

var _ objstore.Store = (*Store)(nil)
