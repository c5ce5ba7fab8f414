// Package configuration resolves the storage backend settings from
// environment variables.
package configuration

import (
	"fmt"
	"os"
	"strings"

	"github.com/otakit/otastore/store"
)

// Environment variables read by Resolve.
const (
	EnvStore                 = "OTASTORE_STORE"
	EnvAzureContainerName    = "AZURE_STORAGE_CONTAINER_NAME"
	EnvAzureConnectionString = "AZURE_STORAGE_CONNECTION_STRING"
	EnvAzureAccountURL       = "AZURE_STORAGE_ACCOUNT_URL"
	EnvBucketURL             = "OTASTORE_BUCKET_URL"
	EnvRoot                  = "OTASTORE_ROOT"
)

// Config selects a storage backend and carries its settings.
type Config struct {
	// Store is one of the store.*Store constants, defaults to store.AzureStore.
	Store string `yaml:"store" json:"store"`

	// Azure configures the azure store.
	Azure store.AzureConfig `yaml:"azure" json:"azure"`

	// BucketURL is the URL for the s3, gocloud and local_file stores.
	// Examples: "s3://bucket-name?region=us-east-1", "mem://", "file:///var/lib/updates"
	BucketURL string `yaml:"bucket_url" json:"bucket_url"`

	// Root is a plain directory for the local_file store, used when BucketURL is empty.
	Root string `yaml:"root" json:"root"`
}

/*
Resolve maps the recognised variables in env to a Config. It does not touch
the process environment, so callers control exactly what is read.

Unset or blank variables leave the corresponding field empty, which
downstream constructors replace with their defaults. An unknown store type
is reported as store.ErrInvalidConfiguration.
*/
func Resolve(env map[string]string) (Config, error) {
	cfg := Config{
		Store:     lookup(env, EnvStore),
		BucketURL: lookup(env, EnvBucketURL),
		Root:      lookup(env, EnvRoot),
		Azure: store.AzureConfig{
			ContainerName:    lookup(env, EnvAzureContainerName),
			ConnectionString: lookup(env, EnvAzureConnectionString),
			AccountURL:       lookup(env, EnvAzureAccountURL),
		},
	}

	if cfg.Store == "" {
		cfg.Store = store.AzureStore
	}

	cfg.Store = strings.ToLower(cfg.Store)
	if !store.IsValidStore(cfg.Store) {
		return Config{}, fmt.Errorf("%w: unsupported store type %q in %s", store.ErrInvalidConfiguration, cfg.Store, EnvStore)
	}

	return cfg, nil
}

// ResolveFromOS calls Resolve with the process environment.
func ResolveFromOS() (Config, error) {
	return Resolve(environ())
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env
}

func lookup(env map[string]string, key string) string {
	return strings.TrimSpace(env[key])
}
