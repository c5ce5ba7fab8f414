package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/tracing/azotel"
	"github.com/otakit/otastore/internal/trace"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultContainerName is used when AzureConfig.ContainerName is empty.
	DefaultContainerName = "expo-updates"

	defaultAzurePageSize     = 50
	defaultCopyPollInterval  = 500 * time.Millisecond
	azureExistsCheckPageSize = 1
)

// AzureConfig holds the settings for AzureBlob.
//
// Exactly one credential path is used: ConnectionString when set, otherwise
// AccountURL combined with the default Azure credential chain (environment,
// workload identity, managed identity, Azure CLI).
type AzureConfig struct {
	ContainerName    string        `yaml:"container_name" json:"container_name"`
	ConnectionString string        `yaml:"connection_string" json:"connection_string"`
	AccountURL       string        `yaml:"account_url" json:"account_url"`
	PageSize         int32         `yaml:"page_size" json:"page_size"`
	CopyPollInterval time.Duration `yaml:"copy_poll_interval" json:"copy_poll_interval"`
}

// Validate checks that a credential path is available. It performs no I/O.
func (c AzureConfig) Validate() error {
	if c.ConnectionString == "" && c.AccountURL == "" {
		return fmt.Errorf("%w: expected an Azure storage connection string or account URL", ErrInvalidConfiguration)
	}
	if c.PageSize < 0 {
		return fmt.Errorf("%w: page size must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

func (c AzureConfig) withDefaults() AzureConfig {
	if c.ContainerName == "" {
		c.ContainerName = DefaultContainerName
	}
	if c.PageSize == 0 {
		c.PageSize = defaultAzurePageSize
	}
	if c.CopyPollInterval <= 0 {
		c.CopyPollInterval = defaultCopyPollInterval
	}
	return c
}

// AzureBlob implements the Storage interface using Azure Blob Storage
type AzureBlob struct {
	client           *azblob.Client
	containerName    string
	pageSize         int32
	copyPollInterval time.Duration
}

// Ensure AzureBlob implements the Backend interface
var _ Backend = (*AzureBlob)(nil)

// NewAzureBlob creates a new AzureBlob from cfg. Credentials are resolved
// here so a missing configuration fails before the first request.
func NewAzureBlob(cfg AzureConfig) (*AzureBlob, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	clientOpts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			TracingProvider: azotel.NewTracingProvider(otel.GetTracerProvider(), nil),
		},
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		if cfg.AccountURL != "" {
			log.Debug().Msg("both connection string and account URL set, using connection string")
		}
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse connection string: %w", ErrInvalidConfiguration, err)
		}
	default:
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("%w: failed to create default Azure credential: %w", ErrInvalidConfiguration, credErr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Azure client: %w", ErrInvalidConfiguration, err)
		}
	}

	log.Debug().
		Str("container", cfg.ContainerName).
		Str("account_url", client.URL()).
		Int32("page_size", cfg.PageSize).
		Msg("configured Azure blob container")

	return &AzureBlob{
		client:           client,
		containerName:    cfg.ContainerName,
		pageSize:         cfg.PageSize,
		copyPollInterval: cfg.CopyPollInterval,
	}, nil
}

// Close releases nothing; the Azure client holds no per-store resources.
func (b *AzureBlob) Close() error { return nil }

// UploadFile uploads content as a block blob, overwriting any existing blob.
func (b *AzureBlob) UploadFile(ctx context.Context, path string, content []byte) (string, error) {
	ctx, span := trace.Start(ctx, "AzureBlob.UploadFile")
	defer span.End()

	if err := validatePath(path); err != nil {
		return "", err
	}

	start := time.Now()

	_, err := b.client.UploadBuffer(ctx, b.containerName, path, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentTypeFor(path))},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %s: %w", path, err)
	}

	span.SetAttributes(
		attribute.String("blob_key", path),
		attribute.Int("bytes_transferred", len(content)),
		attribute.String("transfer_speed", fmt.Sprintf("%.2fMB/s", calculateTransferSpeedMBps(int64(len(content)), time.Since(start)))),
	)

	return path, nil
}

// DownloadFile downloads the full blob at path.
func (b *AzureBlob) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	ctx, span := trace.Start(ctx, "AzureBlob.DownloadFile")
	defer span.End()

	start := time.Now()

	resp, err := b.client.DownloadStream(ctx, b.containerName, path, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("failed to download blob %s: %w: %w", path, ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to download blob %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var buf bytes.Buffer
	n, err := buf.ReadFrom(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}

	span.SetAttributes(
		attribute.String("blob_key", path),
		attribute.Int64("bytes_transferred", n),
		attribute.String("transfer_speed", fmt.Sprintf("%.2fMB/s", calculateTransferSpeedMBps(n, time.Since(start)))),
	)

	return buf.Bytes(), nil
}

// FileExists reports whether any blob name starts with path.
func (b *AzureBlob) FileExists(ctx context.Context, path string) (bool, error) {
	ctx, span := trace.Start(ctx, "AzureBlob.FileExists")
	defer span.End()

	span.SetAttributes(attribute.String("prefix", path))

	pager := b.client.NewListBlobsFlatPager(b.containerName, &azblob.ListBlobsFlatOptions{
		Prefix:     optionalString(path),
		MaxResults: to.Ptr(int32(azureExistsCheckPageSize)),
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list blobs with prefix %s: %w", path, err)
		}
		if page.Segment != nil && len(page.Segment.BlobItems) > 0 {
			return true, nil
		}
	}

	return false, nil
}

// ListFiles lists every blob below directory, one page at a time.
func (b *AzureBlob) ListFiles(ctx context.Context, directory string) ([]FileRecord, error) {
	ctx, span := trace.Start(ctx, "AzureBlob.ListFiles")
	defer span.End()

	prefix := directoryPrefix(directory)

	pager := b.client.NewListBlobsFlatPager(b.containerName, &azblob.ListBlobsFlatOptions{
		Prefix:     optionalString(prefix),
		MaxResults: to.Ptr(b.pageSize),
	})

	files := []FileRecord{}
	pages := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs in %s: %w", directory, err)
		}
		pages++

		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			files = append(files, azureFileRecord(*item.Name, prefix, item.Properties))
		}
	}

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("pages", pages),
		attribute.Int("files", len(files)),
	)

	return files, nil
}

// ListDirectories lists the virtual directories one level below directory.
func (b *AzureBlob) ListDirectories(ctx context.Context, directory string) ([]string, error) {
	ctx, span := trace.Start(ctx, "AzureBlob.ListDirectories")
	defer span.End()

	prefix := directoryPrefix(directory)

	pager := b.client.ServiceClient().NewContainerClient(b.containerName).
		NewListBlobsHierarchyPager(pathSeparator, &container.ListBlobsHierarchyOptions{
			Prefix:     optionalString(prefix),
			MaxResults: to.Ptr(b.pageSize),
		})

	directories := []string{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list directories in %s: %w", directory, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, p := range page.Segment.BlobPrefixes {
			if p == nil || p.Name == nil {
				continue
			}
			directories = append(directories, directoryName(*p.Name, prefix))
		}
	}

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("directories", len(directories)),
	)

	return directories, nil
}

// CopyFile starts a server side copy and polls the destination until the copy
// is no longer pending.
func (b *AzureBlob) CopyFile(ctx context.Context, sourcePath, destinationPath string) error {
	ctx, span := trace.Start(ctx, "AzureBlob.CopyFile")
	defer span.End()

	span.SetAttributes(
		attribute.String("source_key", sourcePath),
		attribute.String("destination_key", destinationPath),
	)

	containerClient := b.client.ServiceClient().NewContainerClient(b.containerName)
	source := containerClient.NewBlobClient(sourcePath)
	destination := containerClient.NewBlobClient(destinationPath)

	resp, err := destination.StartCopyFromURL(ctx, source.URL(), nil)
	if err != nil {
		return fmt.Errorf("failed to start copy from %s to %s: %w", sourcePath, destinationPath, err)
	}

	if resp.CopyID != nil {
		span.SetAttributes(attribute.String("copy_id", *resp.CopyID))
	}

	if resp.CopyStatus != nil && *resp.CopyStatus == blob.CopyStatusTypeSuccess {
		return nil
	}

	err = waitForCopy(ctx, b.copyPollInterval, func(ctx context.Context) (blob.CopyStatusType, string, error) {
		props, err := destination.GetProperties(ctx, nil)
		if err != nil {
			return "", "", err
		}
		var status blob.CopyStatusType
		if props.CopyStatus != nil {
			status = *props.CopyStatus
		}
		var description string
		if props.CopyStatusDescription != nil {
			description = *props.CopyStatusDescription
		}
		return status, description, nil
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", sourcePath, destinationPath, err)
	}

	return nil
}

type copyStatusFunc func(ctx context.Context) (status blob.CopyStatusType, description string, err error)

// waitForCopy polls status every interval until the copy leaves the pending
// state or ctx is done.
func waitForCopy(ctx context.Context, interval time.Duration, status copyStatusFunc) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, description, err := status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get copy status: %w", err)
		}

		switch st {
		case blob.CopyStatusTypeSuccess, "":
			// blobs written without a copy operation report no status
			return nil
		case blob.CopyStatusTypeAborted, blob.CopyStatusTypeFailed:
			return fmt.Errorf("copy %s: %s", st, description)
		}

		log.Debug().Str("status", string(st)).Msg("waiting for blob copy")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func azureFileRecord(name, prefix string, props *container.BlobProperties) FileRecord {
	record := FileRecord{Name: relativeName(name, prefix)}
	if props == nil {
		return record
	}

	if props.LastModified != nil {
		record.UpdatedAt = props.LastModified.UTC()
	}
	record.CreatedAt = record.UpdatedAt
	if props.CreationTime != nil {
		record.CreatedAt = props.CreationTime.UTC()
	}
	if props.ContentLength != nil {
		record.Metadata.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		record.Metadata.MimeType = *props.ContentType
	}

	return record
}

func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
