// Package storetest provides a conformance suite that every store.Storage
// implementation is expected to pass.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/otakit/otastore/store"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty storage backend for a single sub test.
type Factory func(t *testing.T) store.Storage

// RunConformance runs the shared behaviour tests against backends created by newStorage.
func RunConformance(t *testing.T, newStorage Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Storage)
	}{
		{"upload then download round trips", testRoundTrip},
		{"upload overwrites existing object", testOverwrite},
		{"upload rejects empty path", testUploadEmptyPath},
		{"download missing object is not found", testDownloadNotFound},
		{"file exists matches prefixes", testFileExists},
		{"list files strips directory prefix", testListFiles},
		{"list files iterates every page", testListFilesPagination},
		{"list files on missing directory is empty", testListFilesEmpty},
		{"list directories returns immediate children", testListDirectories},
		{"copy file is readable at destination", testCopyFile},
		{"copy missing source fails", testCopyMissingSource},
		{"keys keep spaces and special characters", testSpecialCharacterKeys},
		{"object and directory may share a name", testObjectAndDirectorySharedName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStorage(t))
		})
	}
}

func testRoundTrip(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	content := []byte{0x00, 0x01, 0xfe, 0xff, 'o', 't', 'a', 0x00}

	path, err := s.UploadFile(ctx, "updates/1/bundles/android.js", content)
	assert.NoError(err)
	assert.Equal("updates/1/bundles/android.js", path)

	got, err := s.DownloadFile(ctx, "updates/1/bundles/android.js")
	assert.NoError(err)
	assert.True(bytes.Equal(content, got), "downloaded content should match the upload")
}

func testOverwrite(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	_, err := s.UploadFile(ctx, "updates/metadata.json", []byte(`{"v":1}`))
	assert.NoError(err)
	_, err = s.UploadFile(ctx, "updates/metadata.json", []byte(`{"v":2}`))
	assert.NoError(err)

	got, err := s.DownloadFile(ctx, "updates/metadata.json")
	assert.NoError(err)
	assert.Equal(`{"v":2}`, string(got))
}

func testUploadEmptyPath(t *testing.T, s store.Storage) {
	_, err := s.UploadFile(context.Background(), "", []byte("data"))
	require.Error(t, err)
}

func testDownloadNotFound(t *testing.T, s store.Storage) {
	assert := require.New(t)

	_, err := s.DownloadFile(context.Background(), "updates/missing.json")
	assert.Error(err)
	assert.True(errors.Is(err, store.ErrNotFound), "expected ErrNotFound, got %v", err)
}

func testFileExists(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	_, err := s.UploadFile(ctx, "updates/1/bundle.js", []byte("bundle"))
	assert.NoError(err)

	for _, p := range []string{"updates/1/bundle.js", "updates/1/bun", "updates/1/", "updates/1", "updates"} {
		exists, err := s.FileExists(ctx, p)
		assert.NoError(err)
		assert.True(exists, "expected %q to exist", p)
	}

	for _, p := range []string{"updates/2", "other", "updates/1/bundle.js.map"} {
		exists, err := s.FileExists(ctx, p)
		assert.NoError(err)
		assert.False(exists, "expected %q not to exist", p)
	}
}

func testListFiles(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	for _, key := range []string{"dir/a.json", "dir/b.js", "dir/sub/c.png", "directory/d.txt", "other/e.txt"} {
		_, err := s.UploadFile(ctx, key, []byte(key))
		assert.NoError(err)
	}

	for _, dir := range []string{"dir", "dir/"} {
		files, err := s.ListFiles(ctx, dir)
		assert.NoError(err)

		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name)
			assert.False(f.UpdatedAt.IsZero(), "updated_at should be set for %s", f.Name)
			assert.False(f.CreatedAt.IsZero(), "created_at should be set for %s", f.Name)
			assert.Equal(int64(len("dir/"+f.Name)), f.Metadata.Size)
			assert.NotEmpty(f.Metadata.MimeType)
		}
		assert.ElementsMatch([]string{"a.json", "b.js", "sub/c.png"}, names, "listing %q", dir)
	}
}

func testListFilesPagination(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	const count = 120

	want := make([]string, 0, count)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("asset-%03d.bin", i)
		want = append(want, name)
		_, err := s.UploadFile(ctx, "assets/"+name, []byte{byte(i)})
		assert.NoError(err)
	}

	files, err := s.ListFiles(ctx, "assets")
	assert.NoError(err)

	got := make([]string, 0, len(files))
	for _, f := range files {
		got = append(got, f.Name)
	}
	assert.ElementsMatch(want, got)
}

func testListFilesEmpty(t *testing.T, s store.Storage) {
	assert := require.New(t)

	files, err := s.ListFiles(context.Background(), "nothing-here")
	assert.NoError(err)
	assert.Empty(files)

	dirs, err := s.ListDirectories(context.Background(), "nothing-here")
	assert.NoError(err)
	assert.Empty(dirs)
}

func testListDirectories(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	for _, key := range []string{"dir/x/1", "dir/y/2", "dir/y/deep/3", "dir/file", "directory/z/4"} {
		_, err := s.UploadFile(ctx, key, []byte(key))
		assert.NoError(err)
	}

	dirs, err := s.ListDirectories(ctx, "dir")
	assert.NoError(err)
	assert.ElementsMatch([]string{"x", "y"}, dirs)

	dirs, err = s.ListDirectories(ctx, "dir/y/")
	assert.NoError(err)
	assert.ElementsMatch([]string{"deep"}, dirs)

	dirs, err = s.ListDirectories(ctx, "")
	assert.NoError(err)
	assert.ElementsMatch([]string{"dir", "directory"}, dirs)
}

func testCopyFile(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	content := bytes.Repeat([]byte("launch-asset"), 1024)

	_, err := s.UploadFile(ctx, "updates/1/asset.bin", content)
	assert.NoError(err)

	err = s.CopyFile(ctx, "updates/1/asset.bin", "updates/2/asset.bin")
	assert.NoError(err)

	got, err := s.DownloadFile(ctx, "updates/2/asset.bin")
	assert.NoError(err)
	assert.True(bytes.Equal(content, got), "copied content should match the source")

	got, err = s.DownloadFile(ctx, "updates/1/asset.bin")
	assert.NoError(err)
	assert.True(bytes.Equal(content, got), "source should be left in place")
}

func testCopyMissingSource(t *testing.T, s store.Storage) {
	err := s.CopyFile(context.Background(), "updates/missing.bin", "updates/copy.bin")
	require.Error(t, err)
}

func testSpecialCharacterKeys(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	keys := []string{
		"updates/my asset.png",
		"updates/100% done/a+b=c@d.json",
		"updates/ünïcödé/资源.png",
	}

	for _, key := range keys {
		path, err := s.UploadFile(ctx, key, []byte(key))
		assert.NoError(err)
		assert.Equal(key, path)

		got, err := s.DownloadFile(ctx, key)
		assert.NoError(err)
		assert.Equal(key, string(got))

		exists, err := s.FileExists(ctx, key)
		assert.NoError(err)
		assert.True(exists, "expected %q to exist", key)
	}

	files, err := s.ListFiles(ctx, "updates")
	assert.NoError(err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch([]string{"my asset.png", "100% done/a+b=c@d.json", "ünïcödé/资源.png"}, names)

	dirs, err := s.ListDirectories(ctx, "updates")
	assert.NoError(err)
	assert.ElementsMatch([]string{"100% done", "ünïcödé"}, dirs)

	err = s.CopyFile(ctx, "updates/100% done/a+b=c@d.json", "copies/my copy #1.json")
	assert.NoError(err)

	got, err := s.DownloadFile(ctx, "copies/my copy #1.json")
	assert.NoError(err)
	assert.Equal("updates/100% done/a+b=c@d.json", string(got))
}

func testObjectAndDirectorySharedName(t *testing.T, s store.Storage) {
	assert := require.New(t)
	ctx := context.Background()

	_, err := s.UploadFile(ctx, "updates/1", []byte("object"))
	assert.NoError(err)
	_, err = s.UploadFile(ctx, "updates/1/bundle.js", []byte("bundle"))
	assert.NoError(err)

	got, err := s.DownloadFile(ctx, "updates/1")
	assert.NoError(err)
	assert.Equal("object", string(got))

	got, err = s.DownloadFile(ctx, "updates/1/bundle.js")
	assert.NoError(err)
	assert.Equal("bundle", string(got))

	files, err := s.ListFiles(ctx, "updates")
	assert.NoError(err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch([]string{"1", "1/bundle.js"}, names)

	dirs, err := s.ListDirectories(ctx, "updates")
	assert.NoError(err)
	assert.ElementsMatch([]string{"1"}, dirs)
}
