package objstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// azureStore reads and writes azure://container/blob objects. The storage
// account comes from AZURE_STORAGE_ACCOUNT.
type azureStore struct {
	client *azblob.Client
}

func newAzure() (*azureStore, error) {
	account := os.Getenv("AZURE_STORAGE_ACCOUNT")
	if account == "" {
		return nil, fmt.Errorf("AZURE_STORAGE_ACCOUNT is not set")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return &azureStore{client: client}, nil
}

// Load implements Store.
func (a *azureStore) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	container, blob, err := splitBucketPath(path, SchemeAzure)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("objstore: azure download %s: %w", path, err)
	}
	return resp.Body, nil
}

// Save implements Store.
func (a *azureStore) Save(ctx context.Context, content []byte, path string) error {
	container, blob, err := splitBucketPath(path, SchemeAzure)
	if err != nil {
		return err
	}
	if _, err := a.client.UploadBuffer(ctx, container, blob, content, nil); err != nil {
		return fmt.Errorf("objstore: azure upload %s: %w", path, err)
	}
	return nil
}
