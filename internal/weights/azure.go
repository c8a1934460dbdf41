package weights

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureSource downloads weight assets from an Azure Blob Storage container,
// for deployments that mirror weights privately instead of pulling from the
// public internet.
type AzureSource struct {
	client    *azblob.Client
	container string
}

// NewAzureSource creates a blob-backed source using shared key credentials.
func NewAzureSource(accountName, accountKey, container string) (*AzureSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &AzureSource{client: client, container: container}, nil
}

// Download fetches the blob named after the asset file into dst.
func (s *AzureSource) Download(ctx context.Context, asset Asset, dst string) error {
	file, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer file.Close()

	if _, err := s.client.DownloadFile(ctx, s.container, asset.File, file, nil); err != nil {
		return fmt.Errorf("blob download failed: %w", err)
	}
	return nil
}
