package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/otakit/otastore/internal/trace"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	dataSuffix     = ".blob"
	metadataSuffix = ".attrs.json"
	tempFilePrefix = ".otastore-"

	metadataVersion = 1
)

// LocalFileBlob implements the Storage interface on the local filesystem.
// Every key segment is path escaped, with dots escaped as well, so escaped
// names never contain a dot and never clash with the suffixes below.
//
// Storage layout:
//   - Data files: <root>/<escaped dirs>/<escaped name>.blob
//   - Metadata files: <root>/<escaped dirs>/<escaped name>.attrs.json
//   - Directories: <root>/<escaped dirs>/
//
// A key such as updates/1 and a key below it such as updates/1/bundle.js can
// therefore be stored side by side.
//
// Writes go to a temp file in the destination directory and are renamed into
// place, so readers never observe partial content.
type LocalFileBlob struct {
	root string // Absolute path to the root storage directory
}

// Ensure LocalFileBlob implements the Backend interface
var _ Backend = (*LocalFileBlob)(nil)

// ObjectMetadata is persisted as compact JSON in a sidecar file alongside each data file.
type ObjectMetadata struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256,omitempty"`
	CreatedAt   string `json:"created_at"` // RFC3339Nano
	Version     int    `json:"version"`
}

// NewLocalFileBlob creates a new local file storage backend from a file:// URL.
//
// Supported URL formats:
//   - file:///absolute/path/to/updates
//   - file://~/updates (expands to user's home directory)
//
// The root directory will be created if it doesn't exist.
func NewLocalFileBlob(ctx context.Context, fileURL string) (*LocalFileBlob, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse file URL: %w", ErrInvalidConfiguration, err)
	}

	if u.Scheme != "file" {
		return nil, fmt.Errorf("%w: invalid URL scheme %q: must be file", ErrInvalidConfiguration, u.Scheme)
	}

	// file://~/x parses with "~" as the host
	p := u.Path
	if u.Host == "~" {
		p = "~" + p
	}
	if p == "" {
		return nil, fmt.Errorf("%w: file URL path cannot be empty", ErrInvalidConfiguration)
	}

	if strings.HasPrefix(p, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		p = strings.TrimPrefix(p, "~")
		p = strings.TrimPrefix(p, "/")
		p = filepath.Join(homeDir, p)
	}

	root := filepath.Clean(filepath.FromSlash(p))
	if root == "" || root == "/" || root == "." {
		return nil, fmt.Errorf("%w: invalid root directory: %s", ErrInvalidConfiguration, root)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	log.Debug().Str("root", root).Msg("configured local file store")

	return &LocalFileBlob{root: root}, nil
}

// Close is a no-op for the local file store.
func (b *LocalFileBlob) Close() error { return nil }

// UploadFile writes content to the data file for path and refreshes its sidecar.
func (b *LocalFileBlob) UploadFile(ctx context.Context, path string, content []byte) (string, error) {
	_, span := trace.Start(ctx, "LocalFileBlob.UploadFile")
	defer span.End()

	dataPath, metaPath, err := b.keyToPaths(path, true)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(content)
	metadata := ObjectMetadata{
		Key:         path,
		Size:        int64(len(content)),
		ContentType: contentTypeFor(path),
		SHA256:      hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Version:     metadataVersion,
	}

	if err := b.writeObject(dataPath, metaPath, content, metadata); err != nil {
		return "", err
	}

	span.SetAttributes(
		attribute.Int("bytes_transferred", len(content)),
		attribute.String("key", path),
	)

	return path, nil
}

// DownloadFile reads the data file for path.
func (b *LocalFileBlob) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	_, span := trace.Start(ctx, "LocalFileBlob.DownloadFile")
	defer span.End()

	dataPath, _, err := b.keyToPaths(path, false)
	if err != nil {
		return nil, err
	}

	content, err := readDataFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	span.SetAttributes(
		attribute.Int("bytes_transferred", len(content)),
		attribute.String("key", path),
	)

	return content, nil
}

// FileExists reports whether any stored key starts with path.
func (b *LocalFileBlob) FileExists(ctx context.Context, path string) (bool, error) {
	_, span := trace.Start(ctx, "LocalFileBlob.FileExists")
	defer span.End()

	span.SetAttributes(attribute.String("prefix", path))

	found := false
	err := b.walkKeys(path, func(key string, _ fs.DirEntry) error {
		found = true
		return fs.SkipAll
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

// ListFiles returns the stored files below directory in lexical order.
func (b *LocalFileBlob) ListFiles(ctx context.Context, directory string) ([]FileRecord, error) {
	_, span := trace.Start(ctx, "LocalFileBlob.ListFiles")
	defer span.End()

	prefix := directoryPrefix(directory)

	files := []FileRecord{}
	err := b.walkKeys(prefix, func(key string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", key, err)
		}

		modified := info.ModTime().UTC()
		record := FileRecord{
			Name:      relativeName(key, prefix),
			UpdatedAt: modified,
			CreatedAt: modified,
			Metadata: FileMetadata{
				Size:     info.Size(),
				MimeType: contentTypeFor(key),
			},
		}

		if meta, ok := b.readMetadata(key); ok {
			if meta.ContentType != "" {
				record.Metadata.MimeType = meta.ContentType
			}
			if created, err := time.Parse(time.RFC3339Nano, meta.CreatedAt); err == nil {
				record.CreatedAt = created
			}
		}

		files = append(files, record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// escaping changes the on disk order
	slices.SortFunc(files, func(x, y FileRecord) int { return strings.Compare(x.Name, y.Name) })

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("files", len(files)),
	)

	return files, nil
}

// ListDirectories returns the child directories of directory holding at least one file.
func (b *LocalFileBlob) ListDirectories(ctx context.Context, directory string) ([]string, error) {
	_, span := trace.Start(ctx, "LocalFileBlob.ListDirectories")
	defer span.End()

	prefix := directoryPrefix(directory)
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(b.root, escapeDir(prefix)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", directory, err)
	}

	directories := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, err := url.PathUnescape(entry.Name())
		if err != nil {
			log.Warn().Str("directory", entry.Name()).Err(err).Msg("skipping directory with an invalid name")
			continue
		}
		child := prefix + name + pathSeparator
		hasFiles := false
		if err := b.walkKeys(child, func(string, fs.DirEntry) error {
			hasFiles = true
			return fs.SkipAll
		}); err != nil {
			return nil, err
		}
		if hasFiles {
			directories = append(directories, name)
		}
	}

	slices.Sort(directories)

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("directories", len(directories)),
	)

	return directories, nil
}

// CopyFile copies the data file and sidecar of sourcePath to destinationPath.
func (b *LocalFileBlob) CopyFile(ctx context.Context, sourcePath, destinationPath string) error {
	_, span := trace.Start(ctx, "LocalFileBlob.CopyFile")
	defer span.End()

	span.SetAttributes(
		attribute.String("source_key", sourcePath),
		attribute.String("destination_key", destinationPath),
	)

	srcData, _, err := b.keyToPaths(sourcePath, false)
	if err != nil {
		return err
	}

	content, err := readDataFile(srcData)
	if err != nil {
		return fmt.Errorf("failed to read copy source %s: %w", sourcePath, err)
	}

	dstData, dstMeta, err := b.keyToPaths(destinationPath, true)
	if err != nil {
		return err
	}

	metadata, ok := b.readMetadata(sourcePath)
	if !ok {
		sum := sha256.Sum256(content)
		metadata = ObjectMetadata{
			Size:        int64(len(content)),
			ContentType: contentTypeFor(sourcePath),
			SHA256:      hex.EncodeToString(sum[:]),
			Version:     metadataVersion,
		}
	}
	metadata.Key = destinationPath
	metadata.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	return b.writeObject(dstData, dstMeta, content, metadata)
}

func (b *LocalFileBlob) writeObject(dataPath, metaPath string, content []byte, metadata ObjectMetadata) error {
	if err := writeFileAtomic(dataPath, content); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := writeFileAtomic(metaPath, encoded); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// readMetadata loads the sidecar for key. Missing or corrupt sidecars are not fatal.
func (b *LocalFileBlob) readMetadata(key string) (ObjectMetadata, bool) {
	_, metaPath, err := b.keyToPaths(key, false)
	if err != nil {
		return ObjectMetadata{}, false
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return ObjectMetadata{}, false
	}

	var metadata ObjectMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		log.Warn().Str("path", metaPath).Err(err).Msg("failed to parse metadata file")
		return ObjectMetadata{}, false
	}

	return metadata, true
}

// walkKeys calls fn for every stored key starting with prefix.
func (b *LocalFileBlob) walkKeys(prefix string, fn func(key string, d fs.DirEntry) error) error {
	prefix = strings.TrimPrefix(prefix, "/")
	if err := validatePrefix(prefix); err != nil {
		return err
	}

	// start at the deepest directory the prefix fully names
	startDir := ""
	if i := strings.LastIndex(prefix, pathSeparator); i >= 0 {
		startDir = prefix[:i]
	}
	start := filepath.Join(b.root, escapeDir(startDir))

	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), dataSuffix) {
			return nil
		}

		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return fmt.Errorf("failed to compute relative path: %w", err)
		}
		key, err := unescapeKey(strings.TrimSuffix(filepath.ToSlash(rel), dataSuffix))
		if err != nil {
			log.Warn().Str("path", p).Err(err).Msg("skipping file with an invalid name")
			return nil
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		return fn(key, d)
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return fmt.Errorf("failed to walk %s: %w", start, err)
	}

	return nil
}

func (b *LocalFileBlob) keyToPaths(key string, create bool) (dataPath, metaPath string, err error) {
	if err := validateFileKey(key); err != nil {
		return "", "", err
	}

	k := strings.TrimPrefix(key, "/")
	if k == "" {
		return "", "", fmt.Errorf("invalid key: resolves to empty path")
	}

	dir, name := "", k
	if i := strings.LastIndex(k, pathSeparator); i >= 0 {
		dir, name = k[:i], k[i+1:]
	}

	base := filepath.Join(b.root, escapeDir(dir), escapeSegment(name))
	dataPath = base + dataSuffix
	metaPath = base + metadataSuffix

	if create {
		if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create parent directory: %w", err)
		}
	}

	return dataPath, metaPath, nil
}

// escapeSegment escapes a single key segment. The result holds no dot or separator.
func escapeSegment(segment string) string {
	return strings.ReplaceAll(url.PathEscape(segment), ".", "%2E")
}

// escapeDir escapes every segment of a slash separated directory and joins
// them with the OS separator. Empty segments are dropped.
func escapeDir(dir string) string {
	segments := []string{}
	for _, segment := range strings.Split(dir, pathSeparator) {
		if segment == "" {
			continue
		}
		segments = append(segments, escapeSegment(segment))
	}
	return filepath.Join(segments...)
}

func unescapeKey(escaped string) (string, error) {
	segments := strings.Split(escaped, pathSeparator)
	for i, segment := range segments {
		unescaped, err := url.PathUnescape(segment)
		if err != nil {
			return "", err
		}
		segments[i] = unescaped
	}
	return strings.Join(segments, pathSeparator), nil
}

func readDataFile(dataPath string) ([]byte, error) {
	info, err := os.Stat(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, dataPath)
	}

	return os.ReadFile(dataPath)
}

// writeFileAtomic writes content to a temp file next to dest and renames it into place.
func writeFileAtomic(dest string, content []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()

	cleanup := true
	defer func() {
		_ = tmpFile.Close()
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Remove existing file before rename (required for Windows atomicity)
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	cleanup = false

	return nil
}

func validateFileKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if len(key) > 1024 {
		return fmt.Errorf("key too long (max 1024 characters)")
	}

	if strings.HasSuffix(key, "/") {
		return fmt.Errorf("key cannot end with a separator")
	}

	return validatePrefix(key)
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}

	for _, segment := range strings.Split(prefix, "/") {
		switch segment {
		case "..":
			return fmt.Errorf("path contains path traversal sequence")
		case ".":
			return fmt.Errorf("path contains a relative segment")
		}
	}

	if strings.Contains(prefix, "//") {
		return fmt.Errorf("path contains an empty segment")
	}

	return nil
}
