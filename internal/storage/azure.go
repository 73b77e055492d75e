package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/heimdex/heimdex-notes/internal/logging"
	"github.com/heimdex/heimdex-notes/internal/services"
)

// AzureStore is a Store backed by an Azure storage account.
type AzureStore struct {
	client   *azblob.Client
	authMode string
	cfg      Config
	logger   *slog.Logger
}

// NewAzureStore connects with a connection string (key auth) or with
// DefaultAzureCredential (aad auth).
func NewAzureStore(cfg Config, logger *slog.Logger) (*AzureStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	var (
		client *azblob.Client
		err    error
	)
	switch cfg.authMode() {
	case AuthAAD:
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, services.Wrap(services.ErrConfiguration, "storage", "credential", "default azure credential unavailable", credErr)
		}
		serviceURL := cfg.ServiceURL
		if serviceURL == "" {
			serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
	default:
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "connect", "create blob client", err)
	}
	return &AzureStore{
		client:   client,
		authMode: cfg.authMode(),
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "storage"),
	}, nil
}

func (s *AzureStore) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.CreateContainer(ctx, container, nil)
	if err == nil {
		s.logger.Info("container created", "container", container)
		return nil
	}
	if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil
	}
	return wrapAzure("ensure container", container, "", err)
}

func (s *AzureStore) Put(ctx context.Context, container, name string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	if contentType == "" {
		contentType = ContentType(name)
	}
	_, err := s.client.UploadBuffer(ctx, container, name, data, &azblob.UploadBufferOptions{
		BlockSize:   s.cfg.BlockSize,
		Concurrency: uint16(s.cfg.UploadConcurrency),
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return wrapAzure("upload", container, name, err)
	}
	s.logger.Debug("blob uploaded", "container", container, "blob", name, "bytes", len(data))
	return nil
}

func (s *AzureStore) PutFile(ctx context.Context, container, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", logging.SanitizePath(localPath), err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", logging.SanitizePath(localPath), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	bar := newProgressBar(s.cfg.Progress, info.Size(), "upload "+name)
	opts := &azblob.UploadFileOptions{
		BlockSize:   s.cfg.BlockSize,
		Concurrency: uint16(s.cfg.UploadConcurrency),
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(ContentType(name))},
	}
	if bar != nil {
		opts.Progress = func(n int64) { _ = bar.Set64(n) }
	}
	s.logger.Info("uploading file",
		"container", container,
		"blob", name,
		"path", logging.SanitizePath(localPath),
		"bytes", info.Size(),
	)
	if _, err := s.client.UploadFile(ctx, container, name, f, opts); err != nil {
		return wrapAzure("upload file", container, name, err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

func (s *AzureStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		return nil, wrapAzure("download", container, name, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, wrapAzure("download", container, name, err)
	}
	return buf.Bytes(), nil
}

func (s *AzureStore) List(ctx context.Context, container, prefix string) ([]string, error) {
	pager := s.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: to.Ptr(prefix)})
	var names []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapAzure("list", container, prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

// ReadURL signs a read-only SAS URL. Key auth signs with the account key;
// aad auth requests a user delegation key valid for the same window.
func (s *AzureStore) ReadURL(ctx context.Context, container, name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.cfg.SASTTL
	}
	blobClient := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(name)
	expiry := time.Now().UTC().Add(ttl)

	if s.authMode != AuthAAD {
		u, err := blobClient.GetSASURL(sas.BlobPermissions{Read: true}, expiry, nil)
		if err != nil {
			return "", services.Wrap(services.ErrConfiguration, "storage", "sas",
				"no account key in connection string; key auth must be enabled", err)
		}
		return u, nil
	}

	start := time.Now().UTC().Add(-5 * time.Minute)
	udc, err := s.client.ServiceClient().GetUserDelegationCredential(ctx, service.KeyInfo{
		Start:  to.Ptr(start.Format(sas.TimeFormat)),
		Expiry: to.Ptr(expiry.Format(sas.TimeFormat)),
	}, nil)
	if err != nil {
		return "", wrapAzure("user delegation key", container, name, err)
	}
	qp, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     start,
		ExpiryTime:    expiry,
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: container,
		BlobName:      name,
	}.SignWithUserDelegation(udc)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "storage", "sas", "sign with user delegation key", err)
	}
	return blobClient.URL() + "?" + qp.Encode(), nil
}

func wrapAzure(op, container, name string, err error) error {
	marker := services.ErrRemoteCall
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		marker = services.ErrNotFound
	}
	target := container
	if name != "" {
		target = container + "/" + strings.TrimPrefix(name, "/")
	}
	return services.Wrap(marker, "storage", op, target, err)
}
