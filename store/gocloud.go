package store

import (
	"context"
	"fmt"
	"time"

	"github.com/otakit/otastore/internal/trace"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob" // Azure blob driver
	_ "gocloud.dev/blob/fileblob"  // Local file driver
	_ "gocloud.dev/blob/memblob"   // In memory driver for testing
	_ "gocloud.dev/blob/s3blob"    // AWS S3 driver
	"gocloud.dev/gcerrors"
)

const defaultGocloudPageSize = 50

// GocloudBlob implements the Storage interface using gocloud.dev
type GocloudBlob struct {
	bucket   *blob.Bucket
	pageSize int
}

// Ensure GocloudBlob implements the Backend interface
var _ Backend = (*GocloudBlob)(nil)

// NewGocloudBlob creates a new GocloudBlob instance using a blob URL
// For S3: "s3://bucket-name?region=us-east-1"
// For local development: "file:///path/to/directory"
// For tests: "mem://"
// For Azure: "azblob://container-name"
func NewGocloudBlob(ctx context.Context, blobURL string) (*GocloudBlob, error) {
	if blobURL == "" {
		return nil, fmt.Errorf("%w: blob URL cannot be empty", ErrInvalidConfiguration)
	}

	bucket, err := blob.OpenBucket(ctx, blobURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open blob bucket: %w", ErrInvalidConfiguration, err)
	}

	log.Debug().Str("url", blobURL).Msg("opened gocloud bucket")

	return &GocloudBlob{
		bucket:   bucket,
		pageSize: defaultGocloudPageSize,
	}, nil
}

// Close closes the underlying bucket connection
func (b *GocloudBlob) Close() error {
	return b.bucket.Close()
}

// UploadFile writes content to the bucket, replacing any existing object
func (b *GocloudBlob) UploadFile(ctx context.Context, path string, content []byte) (string, error) {
	ctx, span := trace.Start(ctx, "GocloudBlob.UploadFile")
	defer span.End()

	if err := validatePath(path); err != nil {
		return "", err
	}

	start := time.Now()

	err := b.bucket.WriteAll(ctx, path, content, &blob.WriterOptions{
		ContentType: contentTypeFor(path),
	})
	if err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", path, err)
	}

	span.SetAttributes(
		attribute.Int("bytes_transferred", len(content)),
		attribute.String("transfer_speed", fmt.Sprintf("%.2fMB/s", calculateTransferSpeedMBps(int64(len(content)), time.Since(start)))),
		attribute.String("blob_key", path),
	)

	return path, nil
}

// DownloadFile reads the whole object at path
func (b *GocloudBlob) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	ctx, span := trace.Start(ctx, "GocloudBlob.DownloadFile")
	defer span.End()

	content, err := b.bucket.ReadAll(ctx, path)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("failed to read blob %s: %w: %w", path, ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}

	span.SetAttributes(
		attribute.Int("bytes_transferred", len(content)),
		attribute.String("blob_key", path),
	)

	return content, nil
}

// FileExists reports whether any key starts with path
func (b *GocloudBlob) FileExists(ctx context.Context, path string) (bool, error) {
	ctx, span := trace.Start(ctx, "GocloudBlob.FileExists")
	defer span.End()

	span.SetAttributes(attribute.String("prefix", path))

	token := blob.FirstPageToken
	for token != nil {
		objs, next, err := b.bucket.ListPage(ctx, token, 1, &blob.ListOptions{Prefix: path})
		if err != nil {
			return false, fmt.Errorf("failed to list blobs with prefix %s: %w", path, err)
		}
		if len(objs) > 0 {
			return true, nil
		}
		token = next
	}

	return false, nil
}

// ListFiles lists every object below directory
func (b *GocloudBlob) ListFiles(ctx context.Context, directory string) ([]FileRecord, error) {
	ctx, span := trace.Start(ctx, "GocloudBlob.ListFiles")
	defer span.End()

	prefix := directoryPrefix(directory)

	files := []FileRecord{}
	token := blob.FirstPageToken
	for token != nil {
		objs, next, err := b.bucket.ListPage(ctx, token, b.pageSize, &blob.ListOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs in %s: %w", directory, err)
		}

		for _, obj := range objs {
			if obj.IsDir {
				continue
			}

			record := FileRecord{
				Name:      relativeName(obj.Key, prefix),
				UpdatedAt: obj.ModTime.UTC(),
				CreatedAt: obj.ModTime.UTC(),
				Metadata:  FileMetadata{Size: obj.Size},
			}

			attrs, err := b.bucket.Attributes(ctx, obj.Key)
			if err != nil {
				return nil, fmt.Errorf("failed to read attributes of %s: %w", obj.Key, err)
			}
			record.Metadata.MimeType = attrs.ContentType
			if !attrs.CreateTime.IsZero() {
				record.CreatedAt = attrs.CreateTime.UTC()
			}

			files = append(files, record)
		}

		token = next
	}

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("files", len(files)),
	)

	return files, nil
}

// ListDirectories lists the directories one level below directory
func (b *GocloudBlob) ListDirectories(ctx context.Context, directory string) ([]string, error) {
	ctx, span := trace.Start(ctx, "GocloudBlob.ListDirectories")
	defer span.End()

	prefix := directoryPrefix(directory)

	directories := []string{}
	token := blob.FirstPageToken
	for token != nil {
		objs, next, err := b.bucket.ListPage(ctx, token, b.pageSize, &blob.ListOptions{
			Prefix:    prefix,
			Delimiter: pathSeparator,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list directories in %s: %w", directory, err)
		}

		for _, obj := range objs {
			if obj.IsDir {
				directories = append(directories, directoryName(obj.Key, prefix))
			}
		}

		token = next
	}

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("directories", len(directories)),
	)

	return directories, nil
}

// CopyFile copies sourcePath to destinationPath; Bucket.Copy returns once the copy is complete
func (b *GocloudBlob) CopyFile(ctx context.Context, sourcePath, destinationPath string) error {
	ctx, span := trace.Start(ctx, "GocloudBlob.CopyFile")
	defer span.End()

	span.SetAttributes(
		attribute.String("source_key", sourcePath),
		attribute.String("destination_key", destinationPath),
	)

	if err := b.bucket.Copy(ctx, destinationPath, sourcePath, nil); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", sourcePath, destinationPath, err)
	}

	return nil
}
