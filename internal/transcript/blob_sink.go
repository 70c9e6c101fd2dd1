package transcript

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// ConnectionStringEnv names the variable read for azblob:// destinations.
const ConnectionStringEnv = "AZURE_STORAGE_CONNECTION_STRING"

// BlobSink uploads the snapshot to a single Azure Storage blob.
type BlobSink struct {
	client    *azblob.Client
	container string
	blob      string
}

func NewBlobSink(client *azblob.Client, container, blob string) (*BlobSink, error) {
	if container == "" || blob == "" {
		return nil, fmt.Errorf("blob destination needs both a container and a blob name")
	}
	return &BlobSink{client: client, container: container, blob: blob}, nil
}

// NewBlobSinkFromConnectionString authenticates with a storage connection string.
func NewBlobSinkFromConnectionString(connStr, container, blob string) (*BlobSink, error) {
	if connStr == "" {
		return nil, fmt.Errorf("%s is not set", ConnectionStringEnv)
	}
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return NewBlobSink(client, container, blob)
}

// NewBlobSinkFromURL authenticates with the default Azure credential chain.
// The URL path is /<container>/<blob>.
func NewBlobSinkFromURL(_ context.Context, u *url.URL) (*BlobSink, error) {
	container, blob, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	serviceURL := u.Scheme + "://" + u.Host + "/"
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return NewBlobSink(client, container, blob)
}

func (s *BlobSink) Write(ctx context.Context, data []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.container, s.blob, data, nil)
	return err
}

func (s *BlobSink) Close() error { return nil }

func (s *BlobSink) String() string {
	return "blob " + s.container + "/" + s.blob
}
