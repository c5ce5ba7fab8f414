//go:build integration

package store_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/otakit/otastore/store"
	"github.com/otakit/otastore/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/azurite"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

const devstoreAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

var bucketCounter atomic.Int64

// uniqueName returns a lower case name valid as both an S3 bucket and an Azure container.
func uniqueName() string {
	return fmt.Sprintf("otastore-%d-%d", time.Now().Unix(), bucketCounter.Add(1))
}

func TestAzureBlob_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := azurite.Run(ctx, "mcr.microsoft.com/azure-storage/azurite:3.34.0")
	require.NoError(t, err, "failed to start Azurite")
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "10000/tcp")
	require.NoError(t, err)

	connectionString := fmt.Sprintf(
		"DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=%s;BlobEndpoint=http://%s:%s/devstoreaccount1;",
		devstoreAccountKey, host, port.Port(),
	)

	admin, err := azblob.NewClientFromConnectionString(connectionString, nil)
	require.NoError(t, err)

	storetest.RunConformance(t, func(t *testing.T) store.Storage {
		name := uniqueName()
		_, err := admin.CreateContainer(ctx, name, nil)
		require.NoError(t, err)

		b, err := store.NewAzureBlob(store.AzureConfig{
			ContainerName:    name,
			ConnectionString: connectionString,
			PageSize:         7,
			CopyPollInterval: 50 * time.Millisecond,
		})
		require.NoError(t, err)
		return b
	})

	t.Run("missing container is not found", func(t *testing.T) {
		b, err := store.NewAzureBlob(store.AzureConfig{
			ContainerName:    "missing-container",
			ConnectionString: connectionString,
		})
		require.NoError(t, err)

		_, err = b.DownloadFile(ctx, "updates/1/metadata.json")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestS3Blob_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := localstack.RunContainer(ctx,
		testcontainers.WithImage("localstack/localstack:3.0"),
	)
	require.NoError(t, err, "failed to start LocalStack")
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}()

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err)

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")

	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	admin := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	for _, prefix := range []string{"", "expo/"} {
		t.Run("prefix="+strings.TrimSuffix(prefix, "/"), func(t *testing.T) {
			storetest.RunConformance(t, func(t *testing.T) store.Storage {
				name := uniqueName()
				_, err := admin.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
				require.NoError(t, err)

				b, err := store.NewS3Blob(ctx, fmt.Sprintf(
					"s3://%s/%s?region=us-east-1&endpoint=%s&use_path_style=true&page_size=7",
					name, prefix, endpoint,
				))
				require.NoError(t, err)
				return b
			})
		})
	}
}
