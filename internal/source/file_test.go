package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dump.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestFileSource_Open_FromStart(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, testPayload)

	src, err := New(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, path, src.Location())

	body, err := src.Open(context.Background(), 0)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, testPayload, string(data))
}

func TestFileSource_Open_Seek(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, testPayload)

	src, err := New(path, Options{})
	require.NoError(t, err)

	body, err := src.Open(context.Background(), 5)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, testPayload[5:], string(data))
}

func TestFileSource_Open_Missing(t *testing.T) {
	t.Parallel()

	src, err := New(filepath.Join(t.TempDir(), "absent.xml"), Options{})
	require.NoError(t, err)

	_, err = src.Open(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestFileSource_Probe(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, testPayload)

	src, err := New(path, Options{})
	require.NoError(t, err)

	id, err := src.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, id.AcceptsRanges)
	assert.Contains(t, id.Fingerprint, "file-")

	// Growing the file changes the fingerprint.
	require.NoError(t, os.WriteFile(path, []byte(testPayload+"more"), 0o600))

	grown, err := src.Probe(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, id.Fingerprint, grown.Fingerprint)
}

func TestFileSource_FileScheme(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, testPayload)

	src, err := New("file://"+path, Options{})
	require.NoError(t, err)

	body, err := src.Open(context.Background(), 0)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, testPayload, string(data))
}
