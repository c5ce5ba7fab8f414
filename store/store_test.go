package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryPrefix(t *testing.T) {
	tests := []struct {
		directory string
		want      string
	}{
		{directory: "", want: ""},
		{directory: "/", want: ""},
		{directory: "updates", want: "updates/"},
		{directory: "updates/", want: "updates/"},
		{directory: "/updates/1", want: "updates/1/"},
		{directory: "updates/1//", want: "updates/1/"},
	}

	for _, tt := range tests {
		t.Run(tt.directory, func(t *testing.T) {
			assert.Equal(t, tt.want, directoryPrefix(tt.directory))
		})
	}
}

func TestRelativeName(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		prefix string
		want   string
	}{
		{name: "direct child", key: "updates/1/metadata.json", prefix: "updates/1/", want: "metadata.json"},
		{name: "nested child", key: "updates/1/assets/icon.png", prefix: "updates/1/", want: "assets/icon.png"},
		{name: "prefix without separator", key: "updates/1/metadata.json", prefix: "updates/1", want: "metadata.json"},
		{name: "empty prefix", key: "metadata.json", prefix: "", want: "metadata.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relativeName(tt.key, tt.prefix))
		})
	}
}

func TestDirectoryName(t *testing.T) {
	assert.Equal(t, "x", directoryName("dir/x/", "dir/"))
	assert.Equal(t, "updates", directoryName("updates/", ""))
	assert.Equal(t, "1.0.0", directoryName("updates/1.0.0/", "updates/"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeFor("updates/1/metadata.json"))
	assert.Equal(t, "image/png", contentTypeFor("updates/1/assets/icon.png"))
	assert.Equal(t, defaultContentType, contentTypeFor("updates/1/bundles/android-5f2c.hbc"))
	assert.Equal(t, defaultContentType, contentTypeFor("updates/1/asset"))
}

func TestIsValidStore(t *testing.T) {
	for _, s := range []string{AzureStore, S3Store, GocloudStore, LocalFileStore} {
		assert.True(t, IsValidStore(s), s)
	}
	assert.False(t, IsValidStore("local_hosted_agents"))
	assert.False(t, IsValidStore(""))
}

func TestFileRecordJSON(t *testing.T) {
	assert := require.New(t)

	modified := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	record := FileRecord{
		Name:      "metadata.json",
		UpdatedAt: modified,
		CreatedAt: modified,
		Metadata:  FileMetadata{Size: 42, MimeType: "application/json"},
	}

	raw, err := json.Marshal(record)
	assert.NoError(err)
	assert.JSONEq(`{
		"name": "metadata.json",
		"updated_at": "2024-05-01T10:30:00Z",
		"created_at": "2024-05-01T10:30:00Z",
		"metadata": {"size": 42, "mimetype": "application/json"}
	}`, string(raw))
}

func TestCalculateTransferSpeedMBps(t *testing.T) {
	tests := []struct {
		name         string
		bytes        int64
		duration     time.Duration
		expectedMBps float64
	}{
		{
			name:         "1MB in 1 second",
			bytes:        1_000_000,
			duration:     time.Second,
			expectedMBps: 1.0,
		},
		{
			name:         "10MB in 2 seconds",
			bytes:        10_000_000,
			duration:     2 * time.Second,
			expectedMBps: 5.0,
		},
		{
			name:         "Zero bytes",
			bytes:        0,
			duration:     time.Second,
			expectedMBps: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actualMBps := calculateTransferSpeedMBps(tt.bytes, tt.duration)

			if actualMBps != tt.expectedMBps {
				t.Errorf("Expected %.6f MB/s, got %.6f MB/s", tt.expectedMBps, actualMBps)
			}
		})
	}
}
