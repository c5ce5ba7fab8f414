// Package otastore provides storage backends for an over-the-air update
// server. Every backend implements store.Storage: upload, download, prefix
// existence checks, recursive listing, one level directory listing and server
// side copy.
//
// The main entry point is Open, which selects and constructs a backend from
// a Config. Backends are safe for concurrent use by multiple goroutines.
//
// Basic usage:
//
//	backend, err := otastore.Open(ctx, otastore.Config{
//	    Store: store.AzureStore,
//	    Azure: store.AzureConfig{
//	        ContainerName:    "expo-updates",
//	        ConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	// Publish an update manifest
//	_, err = backend.UploadFile(ctx, "updates/1/metadata.json", manifest)
//
//	// List the published runtime versions
//	versions, err := backend.ListDirectories(ctx, "updates")
package otastore

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/otakit/otastore/configuration"
	"github.com/otakit/otastore/store"
	"github.com/rs/zerolog/log"
)

// Sentinel errors for common scenarios
var (
	// ErrNotFound is returned when a downloaded object does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrInvalidConfiguration is returned when a backend cannot be
	// constructed from the supplied configuration.
	ErrInvalidConfiguration = store.ErrInvalidConfiguration
)

// Config holds all configuration for opening a backend.
//
// Store defaults to azure. The azure store reads Azure, every other store
// reads BucketURL, and local_file also accepts a plain Root directory.
type Config = configuration.Config

// Open constructs the backend selected by cfg.Store. No request is made to
// the storage service.
func Open(ctx context.Context, cfg Config) (store.Backend, error) {
	storeType := strings.ToLower(strings.TrimSpace(cfg.Store))
	if storeType == "" {
		storeType = store.AzureStore
	}

	log.Debug().Str("store", storeType).Msg("opening storage backend")

	switch storeType {
	case store.AzureStore:
		return store.NewAzureBlob(cfg.Azure)
	case store.LocalFileStore:
		bucketURL, err := localFileURL(cfg)
		if err != nil {
			return nil, err
		}
		return store.NewBlobStore(ctx, storeType, bucketURL)
	case store.S3Store, store.GocloudStore:
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("%w: bucket URL is required for the %s store", ErrInvalidConfiguration, storeType)
		}
		return store.NewBlobStore(ctx, storeType, cfg.BucketURL)
	default:
		return nil, fmt.Errorf("%w: unsupported store type: %s", ErrInvalidConfiguration, storeType)
	}
}

// OpenFromEnv resolves the configuration from the process environment and
// opens the selected backend.
func OpenFromEnv(ctx context.Context) (store.Backend, error) {
	cfg, err := configuration.ResolveFromOS()
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

func localFileURL(cfg Config) (string, error) {
	if cfg.BucketURL != "" {
		return cfg.BucketURL, nil
	}
	if cfg.Root == "" {
		return "", fmt.Errorf("%w: a bucket URL or root directory is required for the %s store", ErrInvalidConfiguration, store.LocalFileStore)
	}

	// home relative roots are expanded by the local file store
	if strings.HasPrefix(cfg.Root, "~") {
		return (&url.URL{Scheme: "file", Host: "~", Path: strings.TrimPrefix(filepath.ToSlash(cfg.Root), "~")}).String(), nil
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve root directory: %w", ErrInvalidConfiguration, err)
	}

	p := filepath.ToSlash(root)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return (&url.URL{Scheme: "file", Path: p}).String(), nil
}
