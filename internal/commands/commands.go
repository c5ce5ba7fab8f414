package commands

import (
	"fmt"
	"io"
	"math"

	"github.com/otakit/otastore/internal/console"
	"github.com/otakit/otastore/store"
)

// StoreFlags select and configure the storage backend.
type StoreFlags struct {
	Store            string `flag:"store" help:"The storage backend to use." enum:"azure,s3,gocloud,local_file" default:"azure" env:"OTASTORE_STORE"`
	ContainerName    string `flag:"container-name" help:"The Azure blob container holding updates." default:"${default_container_name}" env:"AZURE_STORAGE_CONTAINER_NAME"`
	ConnectionString string `flag:"connection-string" help:"The Azure storage connection string." env:"AZURE_STORAGE_CONNECTION_STRING"`
	AccountURL       string `flag:"account-url" help:"The Azure storage account URL, used with the default Azure credential." env:"AZURE_STORAGE_ACCOUNT_URL"`
	BucketURL        string `flag:"bucket-url" help:"The bucket URL for the s3, gocloud and local_file stores." env:"OTASTORE_BUCKET_URL"`
	Root             string `flag:"root" help:"The root directory for the local_file store." env:"OTASTORE_ROOT"`
}

type Globals struct {
	Debug   bool
	Version string
	Storage store.Storage
	Printer *console.Printer
	Stdin   io.Reader
	Stdout  io.Writer
}

// Int64ToUint64 converts an int64 to uint64, handling negative values and max int64
func Int64ToUint64(x int64) uint64 {
	if x < 0 {
		return 0
	}
	if x == math.MaxInt64 {
		return math.MaxUint64
	}
	return uint64(x)
}

// printResult writes a command result line to stdout.
func printResult(globals *Globals, format string, a ...any) error {
	_, err := fmt.Fprintf(globals.Stdout, format+"\n", a...)
	return err
}
