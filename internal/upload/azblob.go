package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// AzureBlobStore writes results into one Azure Blob Storage container.
type AzureBlobStore struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobStore connects with a storage connection string such as the
// one in AzureWebJobsStorage.
func NewAzureBlobStore(connectionString, container string) (*AzureBlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob client: %w", err)
	}
	return &AzureBlobStore{client: client, container: container}, nil
}

func (s *AzureBlobStore) Put(ctx context.Context, obj Object) error {
	var opts *azblob.UploadStreamOptions
	if obj.ContentType != "" {
		ct := obj.ContentType
		opts = &azblob.UploadStreamOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
		}
	}
	if _, err := s.client.UploadStream(ctx, s.container, obj.Key, obj.Body, opts); err != nil {
		return fmt.Errorf("upload blob %s/%s: %w", s.container, obj.Key, err)
	}
	return nil
}

// Open downloads a blob from any container in the same account.
func (s *AzureBlobStore) Open(ctx context.Context, container, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return nil, fmt.Errorf("download blob %s/%s: %w", container, key, err)
	}
	return resp.Body, nil
}
