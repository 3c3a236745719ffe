package connectors

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

type AzureSettings struct {
	Account   string `yaml:"account" mapstructure:"account"`
	Key       string `yaml:"key" mapstructure:"key"`
	Container string `yaml:"container" mapstructure:"container"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	// ServiceURL overrides the public endpoint, e.g. for Azurite.
	ServiceURL string `yaml:"service_url" mapstructure:"service_url"`
}

type azureConnector struct {
	client    *azblob.Client
	container string
	prefix    string
}

func NewAzureBlobConnector(cfg AzureSettings) (Connector, error) {
	if cfg.Account == "" || cfg.Key == "" || cfg.Container == "" {
		return nil, errors.New("azure connector requires account, key and container")
	}
	credential, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("build shared key credential: %w", err)
	}
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &azureConnector{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

func (a *azureConnector) Name() string { return "azure" }

func (a *azureConnector) Open(context.Context) (Session, error) {
	return azureSession{a}, nil
}

type azureSession struct {
	*azureConnector
}

func (a azureSession) Close() error { return nil }

func (a azureSession) Store(ctx context.Context, key string, body io.ReadSeeker, _ int64) error {
	ct := contentType(key)
	_, err := a.client.UploadStream(ctx, a.container, remoteKey(a.prefix, key), body, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", key, err)
	}
	return nil
}
