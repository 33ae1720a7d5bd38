package filesource

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/http"
	"github.com/jobson/jobson-cli/internal/logging"
)

// azureOpener keeps one client per storage account endpoint. Blob URLs carry
// their own SAS token, so no shared credential is configured.
type azureOpener struct {
	options *azblob.ClientOptions

	mu      sync.Mutex
	clients map[string]*azblob.Client
}

func newAzureOpener(cfg *config.Config, log *logging.Logger) (*azureOpener, error) {
	httpClient, err := http.CreateTransferClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return &azureOpener{
		options: &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Transport: httpClient,
			},
		},
		clients: make(map[string]*azblob.Client),
	}, nil
}

func (o *azureOpener) client(serviceURL string) (*azblob.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.clients[serviceURL]; ok {
		return c, nil
	}
	c, err := azblob.NewClientWithNoCredential(serviceURL, o.options)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	o.clients[serviceURL] = c
	return c, nil
}

func (o *azureOpener) open(ctx context.Context, loc Location) (io.ReadCloser, int64, error) {
	client, err := o.client(loc.ServiceURL)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.DownloadStream(ctx, loc.Bucket, loc.Path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to download blob %s/%s: %w", loc.Bucket, loc.Path, err)
	}
	var size int64
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}
