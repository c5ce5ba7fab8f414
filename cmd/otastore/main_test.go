package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/otakit/otastore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI parses args into a fresh CLI and runs the selected command with
// stdin, stdout and stderr captured.
func runCLI(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cli = CLI{}
	stdin = strings.NewReader(input)
	stdout = &out
	stderr = &errOut
	t.Cleanup(func() {
		cli = CLI{}
		stdin = os.Stdin
		stdout = os.Stdout
		stderr = os.Stderr
	})

	ctx := context.Background()

	parser, err := newParser(ctx, &cli)
	require.NoError(t, err)

	cmd, err := parser.Parse(args)
	require.NoError(t, err)

	err = Run(ctx, cmd)

	return out.String(), errOut.String(), err
}

func TestRunLocalFile(t *testing.T) {
	root := t.TempDir()
	local := func(args ...string) []string {
		return append([]string{"--store", "local_file", "--root", root}, args...)
	}

	manifest := `{"id":"0754dad0-d200-d634-113c-ef1f26106028"}`

	out, errOut, err := runCLI(t, manifest, local("upload", "updates/1/metadata.json")...)
	require.NoError(t, err)
	assert.Equal(t, "updates/1/metadata.json\n", out)
	assert.Contains(t, errOut, "completed successfully")

	out, _, err = runCLI(t, "", local("download", "updates/1/metadata.json")...)
	require.NoError(t, err)
	assert.Equal(t, manifest, out)

	out, _, err = runCLI(t, "", local("exists", "updates/1")...)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, _, err = runCLI(t, "", local("exists", "updates/2")...)
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	out, _, err = runCLI(t, "", local("cp", "updates/1/metadata.json", "updates/2/metadata.json")...)
	require.NoError(t, err)
	assert.Equal(t, "updates/2/metadata.json\n", out)

	out, _, err = runCLI(t, "", local("ls", "updates", "--json")...)
	require.NoError(t, err)

	var files []store.FileRecord
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
		assert.Equal(t, int64(len(manifest)), f.Metadata.Size)
		assert.Equal(t, "application/json", f.Metadata.MimeType)
	}
	assert.Equal(t, []string{"1/metadata.json", "2/metadata.json"}, names)

	out, _, err = runCLI(t, "", local("dirs", "updates")...)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", out)
}

func TestRunReportsCommandFailure(t *testing.T) {
	root := t.TempDir()

	out, errOut, err := runCLI(t, "", "--store", "local_file", "--root", root, "--quiet", "download", "updates/missing.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound), "expected ErrNotFound, got %v", err)
	assert.Empty(t, out)

	// quiet hides progress but never errors
	assert.NotContains(t, errOut, "Downloading")
	assert.Contains(t, errOut, "❌")
	assert.Contains(t, errOut, "failed after")
}

func TestRunReportsOpenFailure(t *testing.T) {
	_, errOut, err := runCLI(t, "", "--store", "local_file", "--root", "", "exists", "updates")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInvalidConfiguration))
	assert.Contains(t, errOut, "Failed to open the local_file store")
}

func TestRunForceColor(t *testing.T) {
	t.Setenv("CLICOLOR_FORCE", "")

	_, _, err := runCLI(t, "", "--store", "local_file", "--root", t.TempDir(), "--force-color", "exists", "updates")
	require.NoError(t, err)
	assert.Equal(t, "1", os.Getenv("CLICOLOR_FORCE"))
}
