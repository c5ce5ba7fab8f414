package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		want        *Options
		wantErr     bool
		errContains string
	}{
		{
			name: "simple s3 bucket",
			url:  "s3://my-bucket",
			want: &Options{
				Bucket:   "my-bucket",
				Region:   "us-east-1", // default
				PageSize: defaultS3PageSize,
			},
		},
		{
			name: "s3 bucket with prefix",
			url:  "s3://my-bucket/expo/updates",
			want: &Options{
				Bucket:   "my-bucket",
				Region:   "us-east-1",
				Prefix:   "expo/updates",
				PageSize: defaultS3PageSize,
			},
		},
		{
			name: "s3 bucket with trailing slash in prefix",
			url:  "s3://my-bucket/expo/updates/",
			want: &Options{
				Bucket:   "my-bucket",
				Region:   "us-east-1",
				Prefix:   "expo/updates",
				PageSize: defaultS3PageSize,
			},
		},
		{
			name: "s3 bucket with region query param",
			url:  "s3://my-bucket?region=us-west-2",
			want: &Options{
				Bucket:   "my-bucket",
				Region:   "us-west-2",
				PageSize: defaultS3PageSize,
			},
		},
		{
			name: "s3 bucket with all options",
			url:  "s3://my-bucket/prefix/path?region=ap-southeast-2&endpoint=http://localhost:9000&use_path_style=true&page_size=200",
			want: &Options{
				Bucket:       "my-bucket",
				Region:       "ap-southeast-2",
				Prefix:       "prefix/path",
				S3Endpoint:   "http://localhost:9000",
				UsePathStyle: true,
				PageSize:     200,
			},
		},
		{
			name: "use_path_style=false is ignored",
			url:  "s3://my-bucket?use_path_style=false",
			want: &Options{
				Bucket:   "my-bucket",
				Region:   "us-east-1",
				PageSize: defaultS3PageSize,
			},
		},
		{
			name:        "invalid page_size value",
			url:         "s3://my-bucket?page_size=abc",
			wantErr:     true,
			errContains: "invalid page_size value",
		},
		{
			name:        "page_size exceeds maximum",
			url:         "s3://my-bucket?page_size=1001",
			wantErr:     true,
			errContains: "page_size must be between 1 and 1000",
		},
		{
			name:        "page_size of zero",
			url:         "s3://my-bucket?page_size=0",
			wantErr:     true,
			errContains: "page_size must be between 1 and 1000",
		},
		{
			name:        "wrong scheme",
			url:         "gs://my-bucket",
			wantErr:     true,
			errContains: "must be s3",
		},
		{
			name:        "missing bucket",
			url:         "s3:///prefix",
			wantErr:     true,
			errContains: "has no bucket",
		},
		{
			name:        "invalid URL",
			url:         "://invalid",
			wantErr:     true,
			errContains: "failed to parse S3 URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OptionsFromURL(tt.url)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetFullKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{
			name:   "no prefix",
			prefix: "",
			key:    "updates/1/metadata.json",
			want:   "updates/1/metadata.json",
		},
		{
			name:   "with prefix",
			prefix: "expo",
			key:    "updates/1/metadata.json",
			want:   "expo/updates/1/metadata.json",
		},
		{
			name:   "key with leading slash",
			prefix: "expo",
			key:    "/updates/1/metadata.json",
			want:   "expo/updates/1/metadata.json",
		},
		{
			name:   "directory prefix keeps trailing slash",
			prefix: "expo",
			key:    "updates/",
			want:   "expo/updates/",
		},
		{
			name:   "empty key with prefix lists the prefix",
			prefix: "expo",
			key:    "",
			want:   "expo/",
		},
		{
			name:   "empty prefix and key",
			prefix: "",
			key:    "",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := &S3Blob{
				prefix: tt.prefix,
			}
			assert.Equal(t, tt.want, blob.getFullKey(tt.key))
		})
	}
}

func TestCopySource(t *testing.T) {
	assert.Equal(t, "my-bucket/updates/1/metadata.json", copySource("my-bucket", "updates/1/metadata.json"))
	assert.Equal(t, "my-bucket/updates/release%201/a+b.json", copySource("my-bucket", "updates/release 1/a+b.json"))
}

func TestS3FileRecord(t *testing.T) {
	modified := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	record := s3FileRecord(types.Object{
		Key:          aws.String("expo/updates/1/metadata.json"),
		LastModified: aws.Time(modified),
		Size:         aws.Int64(128),
	}, "expo/updates/1/")

	assert.Equal(t, FileRecord{
		Name:      "metadata.json",
		UpdatedAt: modified,
		CreatedAt: modified,
		Metadata:  FileMetadata{Size: 128, MimeType: "application/json"},
	}, record)
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "no such key", err: fmt.Errorf("get object: %w", &types.NoSuchKey{}), want: true},
		{name: "head not found", err: &smithy.GenericAPIError{Code: "NotFound"}, want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "transport error", err: errors.New("dial tcp: connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isS3NotFound(tt.err))
		})
	}
}
