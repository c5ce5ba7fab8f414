package store

import (
	"errors"
	"mime"
	"path"
	"strings"
	"time"
)

const (
	// azure blob storage store type
	AzureStore = "azure"
	// s3 store type
	S3Store = "s3"
	// gocloud.dev portable bucket store type
	GocloudStore = "gocloud"
	// local file store type
	LocalFileStore = "local_file"
)

const (
	// pathSeparator splits blob keys into directory segments
	pathSeparator = "/"

	defaultContentType = "application/octet-stream"
)

var (
	// ErrNotFound is returned by DownloadFile when no object exists at the path.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidConfiguration is returned at construction time when a backend
	// cannot be configured, before any network call is attempted.
	ErrInvalidConfiguration = errors.New("invalid storage configuration")
)

// FileMetadata describes the stored object.
type FileMetadata struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
}

// FileRecord is a single entry returned by ListFiles. Name is relative to the
// listed directory.
type FileRecord struct {
	Name      string       `json:"name"`
	UpdatedAt time.Time    `json:"updated_at"`
	CreatedAt time.Time    `json:"created_at"`
	Metadata  FileMetadata `json:"metadata"`
}

func IsValidStore(storeType string) bool {
	switch storeType {
	case AzureStore, S3Store, GocloudStore, LocalFileStore:
		return true
	default:
		return false
	}
}

// directoryPrefix turns a directory path into a listing prefix with exactly one
// trailing separator. The empty directory lists the whole container.
func directoryPrefix(directory string) string {
	directory = strings.TrimPrefix(directory, pathSeparator)
	if directory == "" {
		return ""
	}
	return strings.TrimRight(directory, pathSeparator) + pathSeparator
}

// relativeName strips the directory prefix and any following separator from a key.
func relativeName(key, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), pathSeparator)
}

// directoryName converts a common prefix returned by a delimited listing into
// the name of the child directory.
func directoryName(commonPrefix, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(commonPrefix, prefix), pathSeparator)
}

// contentTypeFor guesses the content type from the extension of the key.
func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return defaultContentType
}

func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// calculateTransferSpeedMBps calculates transfer speed in MB/s (decimal megabytes)
// using the formula: bytes / duration_in_seconds / 1,000,000
func calculateTransferSpeedMBps(bytes int64, duration time.Duration) float64 {
	return float64(bytes) / duration.Seconds() / 1000 / 1000
}
