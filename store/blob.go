package store

import (
	"context"
	"fmt"
	"io"
)

// Storage is the capability set every storage backend provides to the update server.
type Storage interface {
	// UploadFile stores content at path, replacing any existing object, and returns the path.
	UploadFile(ctx context.Context, path string, content []byte) (string, error)

	// DownloadFile returns the full content stored at path, or ErrNotFound.
	DownloadFile(ctx context.Context, path string) ([]byte, error)

	// FileExists reports whether any object key starts with path.
	FileExists(ctx context.Context, path string) (bool, error)

	// ListFiles returns every object below directory with names relative to it.
	ListFiles(ctx context.Context, directory string) ([]FileRecord, error)

	// ListDirectories returns the immediate child directories of directory.
	ListDirectories(ctx context.Context, directory string) ([]string, error)

	// CopyFile copies sourcePath to destinationPath server side, returning once
	// the copy has completed.
	CopyFile(ctx context.Context, sourcePath, destinationPath string) error
}

// Backend is a Storage holding resources that must be released with Close.
type Backend interface {
	Storage
	io.Closer
}

// NewBlobStore creates a URL configured backend. Azure is configured through
// AzureConfig and NewAzureBlob instead.
func NewBlobStore(ctx context.Context, store string, bucketURL string) (Backend, error) {
	switch store {
	case S3Store:
		return NewS3Blob(ctx, bucketURL)
	case GocloudStore:
		return NewGocloudBlob(ctx, bucketURL)
	case LocalFileStore:
		return NewLocalFileBlob(ctx, bucketURL)
	case AzureStore:
		return nil, fmt.Errorf("%w: azure store is configured with AzureConfig", ErrInvalidConfiguration)
	default:
		return nil, fmt.Errorf("%w: unsupported store type: %s", ErrInvalidConfiguration, store)
	}
}
